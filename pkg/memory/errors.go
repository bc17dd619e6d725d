package memory

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// Handle errors, local to the failing dereference.
	CodeNullDereference Code = "NULL_DEREFERENCE"
	CodeReclaimed       Code = "RECLAIMED"

	// Protocol violations. These poison the collector.
	CodeNegativeRootCount Code = "NEGATIVE_ROOT_COUNT"
	CodeDuplicateEdge     Code = "DUPLICATE_EDGE"
	CodeMissingEdge       Code = "MISSING_EDGE"
	CodeReclaimedNode     Code = "RECLAIMED_NODE"

	CodeReentrantCollect Code = "REENTRANT_COLLECT"
)

// Error is a structured collector error.
type Error struct {
	Code    Code
	Message string
	Node    NodeID // node the error is about, 0 if none
	Event   *Event // event being applied, for protocol violations
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Event != nil:
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Event)
	case e.Node != 0:
		return fmt.Sprintf("%s: %s (node %d)", e.Code, e.Message, e.Node)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Is matches any *Error carrying the same code, so errors.Is works against
// the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNullDereference   = &Error{Code: CodeNullDereference, Message: "dereference of null pointer"}
	ErrReclaimed         = &Error{Code: CodeReclaimed, Message: "node was reclaimed"}
	ErrNegativeRootCount = &Error{Code: CodeNegativeRootCount, Message: "root count would become negative"}
	ErrDuplicateEdge     = &Error{Code: CodeDuplicateEdge, Message: "edge already connected"}
	ErrMissingEdge       = &Error{Code: CodeMissingEdge, Message: "edge not connected"}
	ErrReclaimedNode     = &Error{Code: CodeReclaimedNode, Message: "event references a reclaimed node"}
	ErrReentrantCollect  = &Error{Code: CodeReentrantCollect, Message: "collect called while a pass is finalizing"}
)

// IsCode reports whether err has the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsViolation reports whether err is a protocol violation, i.e. a bookkeeping
// bug that leaves the collector unusable.
func IsViolation(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodeNegativeRootCount, CodeDuplicateEdge, CodeMissingEdge, CodeReclaimedNode:
		return true
	}
	return false
}

func violation(code Code, ev Event, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Event:   &ev,
	}
}
