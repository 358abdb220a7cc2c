package vm

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an interpreter failure. Codes are stable; the
// thousands digit selects the kind.
type ErrorCode int

const (
	CodeTooGeneric ErrorCode = 1001 // INV1001: generic input where a concrete one is required
	CodeLayout     ErrorCode = 1002 // INV1002: layout query failed

	CodeDanglingPointer  ErrorCode = 2001 // UB2001: address outside every live allocation
	CodeOutOfBounds      ErrorCode = 2002 // UB2002: access past the end of an allocation
	CodeMisaligned       ErrorCode = 2003 // UB2003: access below the required alignment
	CodeUninitRead       ErrorCode = 2004 // UB2004: read of uninitialized bytes
	CodeInvalidFnPointer ErrorCode = 2005 // UB2005: value is not a function pointer
	CodeNotAnInstance    ErrorCode = 2006 // UB2006: function value has no instance
	CodeInvalidVtable    ErrorCode = 2007 // UB2007: table contents out of range
	CodePointerAsBits    ErrorCode = 2008 // UB2008: pointer used where raw bits are required
	CodePartialPointer   ErrorCode = 2009 // UB2009: read overlaps part of a stored pointer
	CodeUseAfterFree     ErrorCode = 2010 // UB2010: access to a freed allocation
	CodeInvalidDealloc   ErrorCode = 2011 // UB2011: bad deallocation request

	CodeReadOnlyWrite    ErrorCode = 3001 // UNS3001: write to immutable memory
	CodeAddressExhausted ErrorCode = 3002 // UNS3002: allocation does not fit the address space
)

// String returns the code as "UB2001" format.
func (c ErrorCode) String() string {
	switch c / 1000 {
	case 1:
		return fmt.Sprintf("INV%d", int(c))
	case 2:
		return fmt.Sprintf("UB%d", int(c))
	case 3:
		return fmt.Sprintf("UNS%d", int(c))
	default:
		return fmt.Sprintf("VM%d", int(c))
	}
}

// Sentinel kinds; match with errors.Is.
var (
	ErrTooGeneric        = errors.New("too generic")
	ErrInvalidProgram    = errors.New("invalid program")
	ErrUndefinedBehavior = errors.New("undefined behavior")
	ErrUnsupported       = errors.New("unsupported operation")
)

// InterpError is a failed interpreter operation.
type InterpError struct {
	Code    ErrorCode
	Message string
	Err     error // underlying cause, if any
}

// Kind returns the sentinel the code belongs to.
func (e *InterpError) Kind() error {
	switch {
	case e.Code == CodeTooGeneric:
		return ErrTooGeneric
	case e.Code/1000 == 1:
		return ErrInvalidProgram
	case e.Code/1000 == 2:
		return ErrUndefinedBehavior
	default:
		return ErrUnsupported
	}
}

func (e *InterpError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Kind())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the kind sentinels.
func (e *InterpError) Is(target error) bool {
	if target == ErrInvalidProgram && e.Code == CodeTooGeneric {
		return true
	}
	return e.Kind() == target
}

func (e *InterpError) Unwrap() error {
	return e.Err
}

func makeError(code ErrorCode, format string, args ...any) *InterpError {
	return &InterpError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func tooGeneric(what string) *InterpError {
	return makeError(CodeTooGeneric, "%s still needs substitution", what)
}
