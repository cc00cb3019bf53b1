// Package errors maps arbitrary errors onto small label sets for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/sony/gobreaker"
)

// Well-known classes. Anything else is labelled with its concrete type name.
const (
	ClassTimeout     = "timeout"
	ClassCanceled    = "canceled"
	ClassCircuitOpen = "circuit_open"
	ClassUnknown     = "unknown"
)

// Classify returns a normalized error class suitable for tagging metrics and logs.
// Timeouts, cancellations and an open backend circuit get fixed names; any other
// error is reduced to the snake_case type name of its innermost cause.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, gobreaker.ErrOpenState), goerrors.Is(err, gobreaker.ErrTooManyRequests):
		return ClassCircuitOpen
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}
	return typeName(err)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return ClassUnknown
	}
	return name
}
