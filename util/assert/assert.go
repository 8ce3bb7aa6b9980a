// Package assert provides lightweight invariant checks. Unlike error
// returns, which model conditions a caller can recover from, an assertion
// failure means the program reached a state its own logic says is
// impossible — a bug, not a runtime condition to handle. Assertions panic;
// they are not a substitute for validating external input.
package assert

import "fmt"

// Assert panics with the formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// IsNil panics with the formatted message if v is a non-nil error.
func IsNil(v error, format string, args ...any) {
	if v != nil {
		panic(fmt.Sprintf(format, args...) + ": " + v.Error())
	}
}

// IsNotNil panics with the formatted message if v is nil.
func IsNotNil(v any, format string, args ...any) {
	if v == nil {
		panic(fmt.Sprintf(format, args...))
	}
}

// Never panics unconditionally. Used after a call that should already have
// terminated the program (e.g. logger.Errorf), to satisfy control-flow
// analysis and to fail loudly if it somehow didn't.
func Never() {
	panic("unreachable code was reached")
}
