// Package optimize implements the optimization passes built atop the
// dataflow analyses: constant folding, dead-code elimination, copy and
// constant propagation, lazy code motion (PRE), and inlining.
package optimize

import (
	"xic/internal/hir"
	"xic/internal/lir"
)

// ConstantFoldHIR rewrites every function in u to a fixed point of
// constant folding: HIR rewrite is not idempotent in one
// pass, so ConstantFoldHIR iterates until a pass produces no change.
func ConstantFoldHIR(u *hir.Unit) *hir.Unit {
	out := &hir.Unit{Functions: make(map[string]*hir.Function), Data: u.Data}
	for name, fn := range u.Functions {
		body := fn.Body
		for {
			folded, changed := foldStmt(body)
			if !changed {
				body = folded
				break
			}
			body = folded
		}
		next := *fn
		next.Body = body
		out.Functions[name] = &next
	}
	return out
}

func foldExpr(e hir.Expr) (hir.Expr, bool) {
	switch e := e.(type) {
	case hir.Binary:
		left, lc := foldExpr(e.Left)
		right, rc := foldExpr(e.Right)
		changed := lc || rc

		if folded, ok := evalConstBinary(e.Op, left, right); ok {
			return folded, true
		}
		if folded, ok := applyIdentities(e.Op, left, right); ok {
			return folded, true
		}
		return hir.Binary{Op: e.Op, Left: left, Right: right}, changed
	case hir.Mem:
		addr, c := foldExpr(e.Addr)
		return hir.Mem{Addr: addr}, c
	case hir.Call:
		changed := false
		args := make([]hir.Expr, len(e.Args))
		for i, a := range e.Args {
			folded, c := foldExpr(a)
			args[i] = folded
			changed = changed || c
		}
		target, tc := foldExpr(e.Target)
		return hir.Call{Target: target, Args: args, NReturn: e.NReturn}, changed || tc
	case hir.Sequence:
		s, sc := foldStmt(e.Stmt)
		v, vc := foldExpr(e.Expr)
		return hir.Sequence{Stmt: s, Expr: v}, sc || vc
	default:
		return e, false
	}
}

func foldStmt(s hir.Stmt) (hir.Stmt, bool) {
	switch s := s.(type) {
	case hir.ExprStmt:
		e, c := foldExpr(s.Expr)
		return hir.ExprStmt{Expr: e}, c
	case hir.Move:
		dst, dc := foldExpr(s.Dst)
		src, sc := foldExpr(s.Src)
		return hir.Move{Dst: dst, Src: src}, dc || sc
	case hir.Jump:
		e, c := foldExpr(s.Target)
		return hir.Jump{Target: e}, c
	case hir.CJump:
		cond, c := foldExpr(s.Cond)
		if lit, ok := cond.(hir.Integer); ok {
			// Constant condition: collapse to an unconditional jump and
			// drop the dead branch.
			if lit.Value != 0 {
				return hir.Jump{Target: hir.LabelExpr{Label: s.TrueLbl}}, true
			}
			return hir.Jump{Target: hir.LabelExpr{Label: s.FalseLbl}}, true
		}
		return hir.CJump{Cond: cond, TrueLbl: s.TrueLbl, FalseLbl: s.FalseLbl}, c
	case hir.ReturnStmt:
		changed := false
		vals := make([]hir.Expr, len(s.Values))
		for i, v := range s.Values {
			folded, c := foldExpr(v)
			vals[i] = folded
			changed = changed || c
		}
		return hir.ReturnStmt{Values: vals}, changed
	case hir.Block:
		changed := false
		stmts := make([]hir.Stmt, len(s.Stmts))
		for i, sub := range s.Stmts {
			folded, c := foldStmt(sub)
			stmts[i] = folded
			changed = changed || c
		}
		return hir.Block{Stmts: stmts}, changed
	default:
		return s, false
	}
}

// evalConstBinary evaluates op(l, r) with two's-complement wraparound
// when both operands are integer literals. Division and
// modulo by a constant zero are never folded: the trap is deferred to
// runtime.
func evalConstBinary(op hir.BinOp, l, r hir.Expr) (hir.Expr, bool) {
	li, lok := l.(hir.Integer)
	ri, rok := r.(hir.Integer)
	if !lok || !rok {
		return nil, false
	}

	a, b := li.Value, ri.Value
	switch op {
	case hir.Add:
		return hir.Integer{Value: a + b}, true
	case hir.Sub:
		return hir.Integer{Value: a - b}, true
	case hir.Mul:
		return hir.Integer{Value: a * b}, true
	case hir.And:
		return hir.Integer{Value: a & b}, true
	case hir.Or:
		return hir.Integer{Value: a | b}, true
	case hir.Xor:
		return hir.Integer{Value: a ^ b}, true
	case hir.Shl:
		return hir.Integer{Value: a << uint64(b&63)}, true
	case hir.Shr:
		return hir.Integer{Value: int64(uint64(a) >> uint64(b&63))}, true
	case hir.Sar:
		return hir.Integer{Value: a >> uint64(b&63)}, true
	case hir.Div, hir.Mod, hir.HighMul:
		if b == 0 {
			return nil, false
		}
		if op == hir.Div {
			return hir.Integer{Value: a / b}, true
		}
		if op == hir.Mod {
			return hir.Integer{Value: a % b}, true
		}
		return nil, false // HighMul needs 128-bit arithmetic; left to the tiler.
	case hir.Eq:
		return boolLit(a == b), true
	case hir.Ne:
		return boolLit(a != b), true
	case hir.Lt:
		return boolLit(a < b), true
	case hir.Le:
		return boolLit(a <= b), true
	case hir.Ge:
		return boolLit(a >= b), true
	case hir.Gt:
		return boolLit(a > b), true
	default:
		return nil, false
	}
}

func boolLit(b bool) hir.Expr {
	if b {
		return hir.Integer{Value: 1}
	}
	return hir.Integer{Value: 0}
}

// applyIdentities rewrites algebraic identities: x+0, x*1, x*0, x-x,
// x&x, x|0, x^0. Comparisons of two identical pure leaves
// (x==x, etc.) are intentionally not folded here: that would require
// proving the subexpression has no side effects beyond literal/temporary
// leaves, which this representation already guarantees only for Temp and
// Integer, so those are the only leaves compared.
func applyIdentities(op hir.BinOp, l, r hir.Expr) (hir.Expr, bool) {
	switch op {
	case hir.Add:
		if isZero(r) {
			return l, true
		}
		if isZero(l) {
			return r, true
		}
	case hir.Sub:
		if isZero(r) {
			return l, true
		}
		if sameTemp(l, r) {
			return hir.Integer{Value: 0}, true
		}
	case hir.Mul:
		if isOne(r) {
			return l, true
		}
		if isOne(l) {
			return r, true
		}
		if isZero(r) || isZero(l) {
			return hir.Integer{Value: 0}, true
		}
	case hir.And:
		if sameTemp(l, r) {
			return l, true
		}
	case hir.Or:
		if isZero(r) {
			return l, true
		}
		if isZero(l) {
			return r, true
		}
	case hir.Xor:
		if isZero(r) {
			return l, true
		}
		if isZero(l) {
			return r, true
		}
		if sameTemp(l, r) {
			return hir.Integer{Value: 0}, true
		}
	}
	return nil, false
}

func isZero(e hir.Expr) bool {
	i, ok := e.(hir.Integer)
	return ok && i.Value == 0
}

func isOne(e hir.Expr) bool {
	i, ok := e.(hir.Integer)
	return ok && i.Value == 1
}

func sameTemp(l, r hir.Expr) bool {
	lt, lok := l.(hir.Temp)
	rt, rok := r.(hir.Temp)
	return lok && rok && lt.Temp == rt.Temp
}

// ConstantFoldLIR folds an already-canonized LIR unit, used when
// optimization runs after canonization: it evaluates binary operations on
// integer literals and collapses CJumps on a constant condition, iterating
// until nothing changes. It does not apply the algebraic identities
// ConstantFoldHIR applies.
func ConstantFoldLIR(u *lir.Unit) *lir.Unit {
	out := &lir.Unit{Functions: make(map[string]*lir.Function), Data: u.Data}
	for name, fn := range u.Functions {
		next := *fn
		for {
			stmts, changed := foldLirStmts(fn.Stmts)
			fn = &lir.Function{
				Name: fn.Name, Stmts: stmts, Arguments: fn.Arguments,
				Returns: fn.Returns, Enter: fn.Enter, Exit: fn.Exit,
			}
			if !changed {
				break
			}
		}
		next.Stmts = fn.Stmts
		out.Functions[name] = &next
	}
	return out
}

func foldLirExpr(e lir.Expr) (lir.Expr, bool) {
	bin, ok := e.(lir.Binary)
	if !ok {
		if mem, ok := e.(lir.Mem); ok {
			addr, c := foldLirExpr(mem.Addr)
			return lir.Mem{Addr: addr}, c
		}
		return e, false
	}

	left, lc := foldLirExpr(bin.Left)
	right, rc := foldLirExpr(bin.Right)

	li, lok := left.(lir.Integer)
	ri, rok := right.(lir.Integer)
	if lok && rok {
		hl := hir.Integer{Value: li.Value}
		hr := hir.Integer{Value: ri.Value}
		if folded, ok := evalConstBinary(bin.Op, hl, hr); ok {
			return lir.Integer{Value: folded.(hir.Integer).Value}, true
		}
	}

	return lir.Binary{Op: bin.Op, Left: left, Right: right}, lc || rc
}

func foldLirStmts(stmts []lir.Stmt) ([]lir.Stmt, bool) {
	changed := false
	out := make([]lir.Stmt, 0, len(stmts))
	for _, s := range stmts {
		switch s := s.(type) {
		case lir.Move:
			dst, dc := foldLirExpr(s.Dst)
			src, sc := foldLirExpr(s.Src)
			out = append(out, lir.Move{Dst: dst, Src: src})
			changed = changed || dc || sc
		case lir.CJump:
			cond, c := foldLirExpr(s.Cond)
			changed = changed || c
			if lit, ok := cond.(lir.Integer); ok {
				if lit.Value != 0 {
					out = append(out, lir.Jump{Target: s.True})
				}
				// false: fall through, i.e. emit nothing; the next
				// statement in program order is already the false
				// target.
				changed = true
				continue
			}
			out = append(out, lir.CJump{Cond: cond, True: s.True})
		case lir.Return:
			vals := make([]lir.Expr, len(s.Values))
			for i, v := range s.Values {
				folded, c := foldLirExpr(v)
				vals[i] = folded
				changed = changed || c
			}
			out = append(out, lir.Return{Values: vals})
		default:
			out = append(out, s)
		}
	}
	return out, changed
}
