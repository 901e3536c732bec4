package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic turns a value returned by recover() into a fatal INTERNAL error
// for stage, so retry loops stop at once. It returns nil for a nil value.
func RecoverPanic(r interface{}, stage string) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithStage(stage).
		WithDetail("panic", true).
		WithDetail("panic_type", fmt.Sprintf("%T", r)).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}
