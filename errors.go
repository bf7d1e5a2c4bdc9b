package swrcache

import (
	"errors"
	"fmt"
	"reflect"
)

var ErrClosed = errors.New("swrcache: cache closed")

// TypeError reports a stored (or in-flight) value whose dynamic type differs
// from the type requested by the call site.
type TypeError struct {
	Key  string
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("swrcache: key %q holds %v, requested %v", e.Key, e.Got, e.Want)
}

// PanicError is returned to every waiter of a fetch that panicked.
type PanicError struct {
	Key   string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("swrcache: fetch for %q panicked: %v", e.Key, e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
