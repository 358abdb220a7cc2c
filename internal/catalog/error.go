package catalog

import (
	"errors"
	"fmt"
)

// ErrorKind classifies catalog failures.
type ErrorKind uint8

const (
	// ErrSyntax is a malformed type expression.
	ErrSyntax ErrorKind = iota + 1
	// ErrUnknownName references an undeclared struct, interface or function.
	ErrUnknownName
	// ErrDuplicate declares the same name twice.
	ErrDuplicate
	// ErrInvalid is a well-formed declaration with an unusable value.
	ErrInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrUnknownName:
		return "unknown name"
	case ErrDuplicate:
		return "duplicate declaration"
	case ErrInvalid:
		return "invalid declaration"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error reports a problem with one catalog entry.
type Error struct {
	Kind    ErrorKind
	Section string // "struct", "fn", ...; empty for type expressions
	Item    string // declaration name or the offending expression
	Pos     int    // byte offset inside a type expression, -1 otherwise
	Msg     string
}

func (e *Error) Error() string {
	where := e.Item
	if e.Section != "" {
		where = "[" + e.Section + "] " + e.Item
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s at %d: %s", where, e.Kind, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", where, e.Kind, e.Msg)
}

func declError(kind ErrorKind, section, item, format string, args ...any) *Error {
	return &Error{Kind: kind, Section: section, Item: item, Pos: -1, Msg: fmt.Sprintf(format, args...)}
}

// within attaches a declaration to an error raised by a type expression.
func within(err error, section, item string) error {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Section == "" {
		wrapped := *cerr
		wrapped.Section = section
		wrapped.Msg = fmt.Sprintf("%s (in %q)", cerr.Msg, cerr.Item)
		wrapped.Item = item
		return &wrapped
	}
	return err
}
