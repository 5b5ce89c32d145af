package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	var order []string
	sm.Register("database", func(context.Context) error {
		order = append(order, "database")
		return nil
	})
	sm.Register("cron", func(context.Context) error {
		order = append(order, "cron")
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"cron", "database"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	closed := false
	sm.Register("redis", func(context.Context) error {
		closed = true
		return nil
	})
	sm.Register("otel", func(context.Context) error {
		return errors.New("exporter unreachable")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otel")
	assert.True(t, closed, "later failures must not skip earlier resources")
}

func TestShutdownManager_WaitStopsServer(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm.RegisterServer(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}
