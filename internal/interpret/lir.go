package interpret

import (
	"io"

	"xic/internal/ierrors"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/xlog"
)

// InterpretLIR runs unit's entry function over the canonicalized,
// already-flat LIR representation.
// Every optimization and the canonizer itself must preserve this
// interpreter's observable output.
func InterpretLIR(unit *lir.Unit, entry string, args []int64, stdin io.Reader, stdout io.Writer, heapWords int) ([]int64, error) {
	global := NewGlobal(unit.Data, heapWords, stdin, stdout)
	in := &lirInterp{unit: unit, global: global}
	return in.call(entry, args)
}

type lirInterp struct {
	unit   *lir.Unit
	global *Global
}

func (in *lirInterp) call(name string, args []int64) ([]int64, error) {
	if rets, ok, err := in.global.InterpretLibrary(name, args); ok {
		return rets, err
	}

	fn, ok := in.unit.Functions[name]
	if !ok {
		// A call target may also name a function by its enter label.
		for _, cand := range in.unit.Functions {
			if cand.Enter.String() == name {
				fn, ok = cand, true
				break
			}
		}
	}
	if !ok {
		return nil, ierrors.New(ierrors.UnboundLabel, "function %q", name)
	}
	if len(args) != fn.Arguments {
		return nil, ierrors.New(ierrors.CallMismatch, "%s takes %d argument(s), got %d", name, fn.Arguments, len(args))
	}

	xlog.Infof("calling lir function %s with arguments %v", name, args)

	labels := make(map[operand.Label]int, len(fn.Stmts))
	for i, s := range fn.Stmts {
		if l, ok := s.(lir.LabelStmt); ok {
			labels[l.Label] = i
		}
	}

	frame := NewFrame(args)
	pc := 0
	for pc < len(fn.Stmts) {
		next, rets, err := in.execStmt(frame, fn.Stmts[pc], pc, labels)
		if err != nil {
			return nil, ierrors.Wrapf(err, "interpreting lir function %s", name)
		}
		if rets != nil {
			return rets, nil
		}
		pc = next
	}
	return nil, nil
}

// execStmt interprets one LIR statement. Unlike HIR, every statement is
// already in this flat form (no ESEQ, no embedded Call), so there is no
// recursive statement case.
func (in *lirInterp) execStmt(frame *Frame, s lir.Stmt, pc int, labels map[operand.Label]int) (int, []int64, error) {
	switch st := s.(type) {
	case lir.LabelStmt:
		return pc + 1, nil, nil

	case lir.Jump:
		target, ok := labels[st.Target]
		if !ok {
			return 0, nil, ierrors.New(ierrors.UnboundLabel, "%s", st.Target)
		}
		return target, nil, nil

	case lir.CJump:
		condVal, err := in.evalExpr(frame, st.Cond)
		if err != nil {
			return 0, nil, err
		}
		cond, err := condVal.ExtractBool(frame)
		if err != nil {
			return 0, nil, err
		}
		if cond {
			target, ok := labels[st.True]
			if !ok {
				return 0, nil, ierrors.New(ierrors.UnboundLabel, "%s", st.True)
			}
			return target, nil, nil
		}
		// False falls through to the next statement.
		return pc + 1, nil, nil

	case lir.Move:
		if mem, isMem := st.Dst.(lir.Mem); isMem {
			addrVal, err := in.evalExpr(frame, mem.Addr)
			if err != nil {
				return 0, nil, err
			}
			addr, err := addrVal.ExtractInt(frame)
			if err != nil {
				return 0, nil, err
			}
			srcVal, err := in.evalExpr(frame, st.Src)
			if err != nil {
				return 0, nil, err
			}
			v, err := srcVal.ExtractInt(frame)
			if err != nil {
				return 0, nil, err
			}
			if err := in.global.Heap.Store(addr, v); err != nil {
				return 0, nil, err
			}
			return pc + 1, nil, nil
		}

		dstTemp, ok := st.Dst.(lir.Temp)
		if !ok {
			return 0, nil, ierrors.New(ierrors.TypeMismatch, "move destination %T is not a temporary or memory", st.Dst)
		}
		srcVal, err := in.evalExpr(frame, st.Src)
		if err != nil {
			return 0, nil, err
		}
		v, err := srcVal.ExtractInt(frame)
		if err != nil {
			return 0, nil, err
		}
		frame.Set(dstTemp.Temp, v)
		return pc + 1, nil, nil

	case lir.Call:
		args := make([]int64, len(st.Args))
		for i, a := range st.Args {
			val, err := in.evalExpr(frame, a)
			if err != nil {
				return 0, nil, err
			}
			v, err := val.ExtractInt(frame)
			if err != nil {
				return 0, nil, err
			}
			args[i] = v
		}

		targetVal, err := in.evalExpr(frame, st.Target)
		if err != nil {
			return 0, nil, err
		}
		label, err := targetVal.ExtractLabel()
		if err != nil {
			return 0, nil, err
		}

		rets, err := in.call(label.String(), args)
		if err != nil {
			return 0, nil, ierrors.Wrapf(err, "calling %s", label)
		}
		for i, r := range rets {
			frame.Set(operand.Return(i), r)
		}
		return pc + 1, nil, nil

	case lir.Return:
		rets := make([]int64, len(st.Values))
		for i, v := range st.Values {
			val, err := in.evalExpr(frame, v)
			if err != nil {
				return 0, nil, err
			}
			iv, err := val.ExtractInt(frame)
			if err != nil {
				return 0, nil, err
			}
			rets[i] = iv
		}
		if rets == nil {
			rets = []int64{}
		}
		return 0, rets, nil

	default:
		return 0, nil, ierrors.New(ierrors.TypeMismatch, "unexpected lir statement %T", s)
	}
}

func (in *lirInterp) evalExpr(frame *Frame, e lir.Expr) (Value, error) {
	switch ex := e.(type) {
	case lir.Integer:
		return IntValue(ex.Value), nil

	case lir.LabelExpr:
		return LabelValue(ex.Label), nil

	case lir.Temp:
		return TempValue(ex.Temp), nil

	case lir.Mem:
		addrVal, err := in.evalExpr(frame, ex.Addr)
		if err != nil {
			return Value{}, err
		}
		addr, err := addrVal.ExtractInt(frame)
		if err != nil {
			return Value{}, err
		}
		v, err := in.global.Heap.Read(addr)
		if err != nil {
			return Value{}, err
		}
		return IntValue(v), nil

	case lir.Binary:
		lv, err := in.evalExpr(frame, ex.Left)
		if err != nil {
			return Value{}, err
		}
		l, err := lv.ExtractInt(frame)
		if err != nil {
			return Value{}, err
		}
		rv, err := in.evalExpr(frame, ex.Right)
		if err != nil {
			return Value{}, err
		}
		r, err := rv.ExtractInt(frame)
		if err != nil {
			return Value{}, err
		}
		v, err := evalBinOp(ex.Op, l, r)
		if err != nil {
			return Value{}, err
		}
		return IntValue(v), nil

	default:
		return Value{}, ierrors.New(ierrors.TypeMismatch, "unexpected lir expression %T", e)
	}
}
