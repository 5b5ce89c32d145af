package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "reconcile")
		panic("nil map write")
	})
	assert.Contains(t, buf.String(), "nil map write")
	assert.Contains(t, buf.String(), `"context":"reconcile"`)
}

func TestPanicError(t *testing.T) {
	assert.NoError(t, PanicError(nil))
	assert.EqualError(t, PanicError("boom"), "panic: boom")
}
