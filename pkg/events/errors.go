package events

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by operations that require an open source.
var ErrClosed = errors.New("event source is closed")

// OpenError reports an unreadable or inconsistent file at chunk open.
// The caller decides whether to skip the chunk or abort the run.
type OpenError struct {
	File string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening %s: %s", e.File, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SelectionError reports a malformed or unevaluable selection expression.
// The stored eventlist is never modified when one is returned.
type SelectionError struct {
	Expr string
	Err  error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selection %q: %s", e.Expr, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }
