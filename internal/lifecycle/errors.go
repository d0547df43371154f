package lifecycle

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

var kinds = []error{
	ErrNotFound,
	ErrForbidden,
	ErrInvalidState,
	ErrInvalidInput,
	ErrInvalidTransition,
	ErrDependencyUnavailable,
}

// Error is a failure of one lifecycle operation. Its message is safe to
// show to the caller; Kind is one of the Err* values above.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// classify leaves domain errors untouched and marks everything else as a
// persistence failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return &Error{Kind: ErrDependencyUnavailable, Msg: "storage unavailable", Err: err}
}

// publicMessage returns the text safe to hand back to a client. Storage
// failures keep their cause out of it.
func publicMessage(err error) string {
	var le *Error
	if errors.As(err, &le) && le.Kind == ErrDependencyUnavailable {
		return le.Msg
	}
	return err.Error()
}
