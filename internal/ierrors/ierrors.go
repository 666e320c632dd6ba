// Package ierrors defines the error kinds the interpreter can surface, and
// wraps them with call-site context the way the compiler's ambient error
// handling does throughout the pipeline.
package ierrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the interpreter error kinds. It is a closed set:
// every interpreter failure is exactly one of these.
type Kind int

const (
	UnboundTemporary Kind = iota
	UnboundLabel
	TypeMismatch
	InvalidMalloc
	InvalidRead
	InvalidWrite
	InvalidChar
	OutOfMemory
	DivideByZero
	CallMismatch
)

func (k Kind) String() string {
	switch k {
	case UnboundTemporary:
		return "UnboundTemporary"
	case UnboundLabel:
		return "UnboundLabel"
	case TypeMismatch:
		return "TypeMismatch"
	case InvalidMalloc:
		return "InvalidMalloc"
	case InvalidRead:
		return "InvalidRead"
	case InvalidWrite:
		return "InvalidWrite"
	case InvalidChar:
		return "InvalidChar"
	case OutOfMemory:
		return "OutOfMemory"
	case DivideByZero:
		return "DivideByZero"
	case CallMismatch:
		return "CallMismatch"
	default:
		return "Unknown"
	}
}

// InterpretError is raised by the HIR/LIR interpreter. It aborts
// interpretation; there is no recovery path inside the core.
type InterpretError struct {
	Kind    Kind
	Detail  string
}

func New(kind Kind, detail string, args ...interface{}) *InterpretError {
	return &InterpretError{Kind: kind, Detail: fmt.Sprintf(detail, args...)}
}

func (e *InterpretError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Wrap attaches call-site context to err, typically the function being
// interpreted when the failure surfaced.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, context)
}

// Wrapf is Wrap with a formatted context message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, fmt.Sprintf(format, args...))
}

// As reports whether err is (or wraps) an *InterpretError, returning it.
func As(err error) (*InterpretError, bool) {
	var ie *InterpretError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
