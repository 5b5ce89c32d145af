package postgres

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{
		URL:      "redis://" + mr.Addr() + "/0",
		PoolSize: 3,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 3, client.Options().PoolSize)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), RedisConfig{URL: "://bad"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + addr})
	assert.Error(t, err)
}
