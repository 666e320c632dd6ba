package interpret

import (
	"xic/internal/ierrors"
	"xic/internal/operand"
)

// ValueKind tags the variant of a Value.
type ValueKind int

const (
	ValInt ValueKind = iota
	ValLabel
	ValTemp
)

// Value is whatever an expression evaluates to before it is forced down
// to a concrete integer: a literal, an unresolved label (a call target),
// or a temporary reference (an lvalue, pending a Frame lookup).
type Value struct {
	Kind  ValueKind
	Int   int64
	Label operand.Label
	Temp  operand.Temporary
}

func IntValue(i int64) Value               { return Value{Kind: ValInt, Int: i} }
func LabelValue(l operand.Label) Value     { return Value{Kind: ValLabel, Label: l} }
func TempValue(t operand.Temporary) Value  { return Value{Kind: ValTemp, Temp: t} }

// ExtractLabel requires v to be a label value (a call or jump target).
func (v Value) ExtractLabel() (operand.Label, error) {
	if v.Kind != ValLabel {
		return operand.Label{}, ierrors.New(ierrors.TypeMismatch, "expected a name, got %v", v.Kind)
	}
	return v.Label, nil
}

// ExtractTemp requires v to be a temporary value (an lvalue about to be
// defined by a Move).
func (v Value) ExtractTemp() (operand.Temporary, error) {
	if v.Kind != ValTemp {
		return operand.Temporary{}, ierrors.New(ierrors.TypeMismatch, "expected a temporary, got %v", v.Kind)
	}
	return v.Temp, nil
}

// ExtractInt resolves v to a concrete integer, looking up temporaries in
// frame.
func (v Value) ExtractInt(frame *Frame) (int64, error) {
	switch v.Kind {
	case ValInt:
		return v.Int, nil
	case ValTemp:
		return frame.Get(v.Temp)
	default:
		return 0, ierrors.New(ierrors.TypeMismatch, "expected an integer, got %v", v.Kind)
	}
}

// ExtractBool resolves v to a boolean, per the canonical 0/1 encoding.
func (v Value) ExtractBool(frame *Frame) (bool, error) {
	i, err := v.ExtractInt(frame)
	if err != nil {
		return false, err
	}
	switch i {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ierrors.New(ierrors.TypeMismatch, "expected a boolean (0/1), got %d", i)
	}
}
