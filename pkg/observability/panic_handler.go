package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. Call it deferred.
// The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "subscription reconcile")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// PanicError converts a recovered value into an error, or nil if r is nil.
//
//	defer func() {
//	    if err := observability.PanicError(recover()); err != nil { ... }
//	}()
func PanicError(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
