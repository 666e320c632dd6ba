package interpret

import (
	"io"
	"math/bits"

	"xic/internal/hir"
	"xic/internal/ierrors"
	"xic/internal/operand"
	"xic/internal/xlog"
)

// InterpretHIR runs unit's entry function as the oracle for HIR-level
// semantics. It is the untransformed
// reference every canonization and optimization must agree with.
func InterpretHIR(unit *hir.Unit, entry string, args []int64, stdin io.Reader, stdout io.Writer, heapWords int) ([]int64, error) {
	global := NewGlobal(unit.Data, heapWords, stdin, stdout)
	in := &hirInterp{unit: unit, global: global}
	return in.call(entry, args)
}

type hirInterp struct {
	unit   *hir.Unit
	global *Global
}

// flattenHIR lowers a (possibly nested) hir.Block into one linear
// statement list so jumps and labels resolve by index. HIR trees remain
// otherwise unflattened: ESEQ is evaluated recursively in place, since
// it is still embedded in expressions at this stage.
func flattenHIR(s hir.Stmt) []hir.Stmt {
	if b, ok := s.(hir.Block); ok {
		var out []hir.Stmt
		for _, inner := range b.Stmts {
			out = append(out, flattenHIR(inner)...)
		}
		return out
	}
	return []hir.Stmt{s}
}

func (in *hirInterp) call(name string, args []int64) ([]int64, error) {
	if rets, ok, err := in.global.InterpretLibrary(name, args); ok {
		return rets, err
	}

	fn, ok := in.unit.Functions[name]
	if !ok {
		return nil, ierrors.New(ierrors.UnboundLabel, "function %q", name)
	}
	if len(args) != fn.Arguments {
		return nil, ierrors.New(ierrors.CallMismatch, "%s takes %d argument(s), got %d", name, fn.Arguments, len(args))
	}

	xlog.Infof("calling hir function %s with arguments %v", name, args)

	stmts := flattenHIR(fn.Body)
	labels := make(map[operand.Label]int, len(stmts))
	for i, s := range stmts {
		if l, ok := s.(hir.LabelStmt); ok {
			labels[l.Label] = i
		}
	}

	frame := NewFrame(args)
	pc := 0
	for pc < len(stmts) {
		next, rets, err := in.execStmt(frame, stmts[pc], pc, labels)
		if err != nil {
			return nil, ierrors.Wrapf(err, "interpreting hir function %s", name)
		}
		if rets != nil {
			return rets, nil
		}
		pc = next
	}
	return nil, nil
}

// execStmt interprets one flattened HIR statement, returning the next
// program counter, or non-nil return values when execution reaches a
// Return.
func (in *hirInterp) execStmt(frame *Frame, s hir.Stmt, pc int, labels map[operand.Label]int) (int, []int64, error) {
	switch st := s.(type) {
	case hir.ExprStmt:
		if _, err := in.evalExpr(frame, st.Expr); err != nil {
			return 0, nil, err
		}
		return pc + 1, nil, nil

	case hir.LabelStmt:
		return pc + 1, nil, nil

	case hir.Move:
		if mem, isMem := st.Dst.(hir.Mem); isMem {
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

		dstVal, err := in.evalExpr(frame, st.Dst)
		if err != nil {
			return 0, nil, err
		}
		dst, err := dstVal.ExtractTemp()
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
		frame.Set(dst, v)
		return pc + 1, nil, nil

	case hir.Jump:
		val, err := in.evalExpr(frame, st.Target)
		if err != nil {
			return 0, nil, err
		}
		label, err := val.ExtractLabel()
		if err != nil {
			return 0, nil, err
		}
		target, ok := labels[label]
		if !ok {
			return 0, nil, ierrors.New(ierrors.UnboundLabel, "%s", label)
		}
		return target, nil, nil

	case hir.CJump:
		condVal, err := in.evalExpr(frame, st.Cond)
		if err != nil {
			return 0, nil, err
		}
		cond, err := condVal.ExtractBool(frame)
		if err != nil {
			return 0, nil, err
		}
		label := st.FalseLbl
		if cond {
			label = st.TrueLbl
		}
		target, ok := labels[label]
		if !ok {
			return 0, nil, ierrors.New(ierrors.UnboundLabel, "%s", label)
		}
		return target, nil, nil

	case hir.ReturnStmt:
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
		return 0, nil, ierrors.New(ierrors.TypeMismatch, "unexpected hir statement %T", s)
	}
}

func (in *hirInterp) evalExpr(frame *Frame, e hir.Expr) (Value, error) {
	switch ex := e.(type) {
	case hir.Integer:
		return IntValue(ex.Value), nil

	case hir.LabelExpr:
		return LabelValue(ex.Label), nil

	case hir.Temp:
		return TempValue(ex.Temp), nil

	case hir.Mem:
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

	case hir.Binary:
		return in.evalBinary(frame, ex)

	case hir.Sequence:
		_, _, err := in.execStmt(frame, ex.Stmt, 0, nil)
		if err != nil {
			return Value{}, err
		}
		return in.evalExpr(frame, ex.Expr)

	case hir.Call:
		args := make([]int64, len(ex.Args))
		for i, a := range ex.Args {
			val, err := in.evalExpr(frame, a)
			if err != nil {
				return Value{}, err
			}
			v, err := val.ExtractInt(frame)
			if err != nil {
				return Value{}, err
			}
			args[i] = v
		}

		targetVal, err := in.evalExpr(frame, ex.Target)
		if err != nil {
			return Value{}, err
		}
		label, err := targetVal.ExtractLabel()
		if err != nil {
			return Value{}, err
		}

		rets, err := in.call(label.String(), args)
		if err != nil {
			return Value{}, ierrors.Wrapf(err, "calling %s", label)
		}
		for i, r := range rets {
			frame.Set(operand.Return(i), r)
		}
		if len(rets) > 0 {
			return IntValue(rets[0]), nil
		}
		return IntValue(0), nil

	default:
		return Value{}, ierrors.New(ierrors.TypeMismatch, "unexpected hir expression %T", e)
	}
}

func (in *hirInterp) evalBinary(frame *Frame, b hir.Binary) (Value, error) {
	lv, err := in.evalExpr(frame, b.Left)
	if err != nil {
		return Value{}, err
	}
	l, err := lv.ExtractInt(frame)
	if err != nil {
		return Value{}, err
	}
	rv, err := in.evalExpr(frame, b.Right)
	if err != nil {
		return Value{}, err
	}
	r, err := rv.ExtractInt(frame)
	if err != nil {
		return Value{}, err
	}
	v, err := evalBinOp(b.Op, l, r)
	if err != nil {
		return Value{}, err
	}
	return IntValue(v), nil
}

// evalBinOp is the single arithmetic/comparison evaluator shared by the
// HIR and LIR interpreters. Constant folding keeps its own evaluator with
// the same wraparound arithmetic and 6-bit shift-count masking.
func evalBinOp(op hir.BinOp, l, r int64) (int64, error) {
	switch op {
	case hir.Add:
		return l + r, nil
	case hir.Sub:
		return l - r, nil
	case hir.Mul:
		return l * r, nil
	case hir.HighMul:
		// High 64 bits of the signed 128-bit product.
		hi, _ := bits.Mul64(uint64(l), uint64(r))
		if l < 0 {
			hi -= uint64(r)
		}
		if r < 0 {
			hi -= uint64(l)
		}
		return int64(hi), nil
	case hir.Div:
		if r == 0 {
			return 0, ierrors.New(ierrors.DivideByZero, "")
		}
		return l / r, nil
	case hir.Mod:
		if r == 0 {
			return 0, ierrors.New(ierrors.DivideByZero, "")
		}
		return l % r, nil
	case hir.And:
		return l & r, nil
	case hir.Or:
		return l | r, nil
	case hir.Xor:
		return l ^ r, nil
	case hir.Shl:
		return l << uint64(r&63), nil
	case hir.Shr:
		return int64(uint64(l) >> uint64(r&63)), nil
	case hir.Sar:
		return l >> uint64(r&63), nil
	case hir.Eq:
		return boolInt(l == r), nil
	case hir.Ne:
		return boolInt(l != r), nil
	case hir.Lt:
		return boolInt(l < r), nil
	case hir.Le:
		return boolInt(l <= r), nil
	case hir.Ge:
		return boolInt(l >= r), nil
	case hir.Gt:
		return boolInt(l > r), nil
	default:
		return 0, ierrors.New(ierrors.TypeMismatch, "unknown binary operator %v", op)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
