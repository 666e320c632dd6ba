package interpret

import (
	"xic/internal/ierrors"
	"xic/internal/operand"
)

// Frame holds one function activation's temporary bindings. HIR/LIR
// trees are interpreted by direct recursive descent, so a Frame is just
// the binding environment; the Go call stack itself serves as the stack
// of activations.
type Frame struct {
	temps map[operand.Temporary]int64
}

// NewFrame creates a frame with arguments bound to Argument(0..len-1).
func NewFrame(args []int64) *Frame {
	f := &Frame{temps: make(map[operand.Temporary]int64, len(args))}
	for i, a := range args {
		f.temps[operand.Argument(i)] = a
	}
	return f
}

// Get looks up a temporary's current value.
func (f *Frame) Get(t operand.Temporary) (int64, error) {
	v, ok := f.temps[t]
	if !ok {
		return 0, ierrors.New(ierrors.UnboundTemporary, "%s", t)
	}
	return v, nil
}

// Set binds (or rebinds) a temporary.
func (f *Frame) Set(t operand.Temporary, v int64) {
	f.temps[t] = v
}
