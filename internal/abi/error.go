package abi

import "fmt"

// ErrorKind enumerates classification failures.
type ErrorKind uint8

const (
	// ErrUnsupportedArch means no classifier exists for the target.
	ErrUnsupportedArch ErrorKind = iota + 1
	// ErrLayout means a parameter or return type has no usable layout.
	ErrLayout
	// ErrUnsized means an unsized value was passed by value.
	ErrUnsized
)

// Error reports why a signature could not be classified.
type Error struct {
	Kind ErrorKind
	Fn   string // signature name, may be empty
	Arch string
	Pos  int // argument index, -1 for the return value
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	where := "return value"
	if e.Pos >= 0 {
		where = fmt.Sprintf("argument %d", e.Pos)
	}
	prefix := ""
	if e.Fn != "" {
		prefix = e.Fn + ": "
	}
	switch e.Kind {
	case ErrUnsupportedArch:
		return fmt.Sprintf("%sno calling convention classifier for arch %q", prefix, e.Arch)
	case ErrLayout:
		return fmt.Sprintf("%s%s: %v", prefix, where, e.Err)
	case ErrUnsized:
		return fmt.Sprintf("%s%s is unsized and cannot be passed by value", prefix, where)
	default:
		return fmt.Sprintf("%sabi error kind=%d", prefix, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
