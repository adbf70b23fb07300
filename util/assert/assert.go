// Package assert checks programming invariants at runtime.
// A failed check panics. Callers are not expected to recover.
package assert

import (
	"fmt"
	"reflect"
	"strings"
)

// Assert panics with the formatted message if condition is false.
// Example: assert.Assert(first <= last, "invalid range [%d, %d]", first, last)
func Assert(condition bool, format string, args ...any) {
	if !condition {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// IsNil panics if v is not nil. Mostly used on errors that cannot happen.
func IsNil(v any, msg ...string) {
	if isNil(v) {
		return
	}
	if len(msg) == 0 {
		panic(fmt.Sprintf("expected nil: got %v", v))
	}
	panic("expected nil: " + strings.Join(msg, " "))
}

// IsNotNil panics if v is nil, including typed nil pointers inside an interface.
func IsNotNil(v any, msg ...string) {
	if !isNil(v) {
		return
	}
	if len(msg) == 0 {
		panic("unexpected nil")
	}
	panic("unexpected nil: " + strings.Join(msg, " "))
}

// Never marks code that must not be reached.
func Never(format string, args ...any) {
	panic("unreachable code reached: " + fmt.Sprintf(format, args...))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
