// Package builderr defines the error kinds of §7: sentinel errors the
// resolver and scheduler return, plus a composite aggregate that lets
// resolution collect every failure for a run instead of stopping at the
// first one.
package builderr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds, matched with errors.Is against the Kind wrapped inside a
// *Error.
var (
	MissingRule     = errors.New("missing rule")
	MissingInput    = errors.New("missing input")
	AmbiguousRule   = errors.New("ambiguous rule")
	CyclicGraph     = errors.New("cyclic graph")
	CreateRule      = errors.New("duplicate rule name")
	UnknownRule     = errors.New("unknown rule")
	NoRules         = errors.New("workflow has no rules")
	ProtectedOutput = errors.New("protected output")
	MissingOutput   = errors.New("missing output")
)

// Error pairs one of the sentinel kinds above with a message describing the
// specific file, rule, or job that triggered it.
type Error struct {
	Kind    error
	Message string
}

func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Aggregate is the composite "Rule" error of §7: a container of one or more
// failures collected during resolution, surfaced to the caller in one pass.
type Aggregate struct {
	Errors []error
}

func (a *Aggregate) Add(err error) {
	if err == nil {
		return
	}
	a.Errors = append(a.Errors, err)
}

func (a *Aggregate) Empty() bool { return len(a.Errors) == 0 }

// AsError returns nil if no errors were collected, the lone error if exactly
// one was, or the aggregate itself otherwise.
func (a *Aggregate) AsError() error {
	switch len(a.Errors) {
	case 0:
		return nil
	case 1:
		return a.Errors[0]
	default:
		return a
	}
}

func (a *Aggregate) Error() string {
	parts := make([]string, len(a.Errors))
	for i, err := range a.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d resolution error(s):\n  %s", len(a.Errors), strings.Join(parts, "\n  "))
}

// Unwrap lets errors.Is/errors.As reach any member of the aggregate.
func (a *Aggregate) Unwrap() []error { return a.Errors }
