// Package canon implements the canonizer: the HIR-to-LIR lowering that
// hoists side effects out of expressions, lifts Call to statement
// position, and eliminates Sequence/ESEQ.
package canon

import (
	"xic/internal/hir"
	"xic/internal/lir"
	"xic/internal/operand"
)

// Unit lowers every function in u to LIR.
func Unit(u *hir.Unit) *lir.Unit {
	out := &lir.Unit{Functions: make(map[string]*lir.Function), Data: u.Data}
	for name, fn := range u.Functions {
		out.Functions[name] = Func(fn)
	}
	return out
}

// Func lowers a single HIR function to LIR.
func Func(fn *hir.Function) *lir.Function {
	c := &canonizer{}
	stmts := c.stmt(fn.Body)
	return &lir.Function{
		Name:      fn.Name,
		Stmts:     stmts,
		Arguments: fn.Arguments,
		Returns:   fn.Returns,
		Enter:     fn.Enter,
		Exit:      fn.Exit,
	}
}

type canonizer struct{}

// pair is the (hoisted statements, pure residual expression) result of
// rewriting an HIR expression.
type pair struct {
	stmts []lir.Stmt
	expr  lir.Expr
}

// expr lowers e, returning the statements that must run before expr's
// value is available, and the pure LIR expression itself.
func (c *canonizer) expr(e hir.Expr) pair {
	switch e := e.(type) {
	case hir.Integer:
		return pair{nil, lir.Integer{Value: e.Value}}
	case hir.LabelExpr:
		return pair{nil, lir.LabelExpr{Label: e.Label}}
	case hir.Temp:
		return pair{nil, lir.Temp{Temp: e.Temp}}
	case hir.Mem:
		addr := c.expr(e.Addr)
		return pair{addr.stmts, lir.Mem{Addr: addr.expr}}
	case hir.Binary:
		left := c.expr(e.Left)
		right := c.expr(e.Right)
		// Right's hoisted statements may clobber temporaries left's
		// pure expression reads; if right has any side effects, commit
		// left to a fresh temporary first to preserve source order.
		if len(right.stmts) > 0 && !pureValue(left.expr) {
			tmp := operand.FreshTemporary(operand.CategoryCanon)
			left.stmts = append(left.stmts, lir.Move{Dst: lir.Temp{Temp: tmp}, Src: left.expr})
			left.expr = lir.Temp{Temp: tmp}
		}
		stmts := append(left.stmts, right.stmts...)
		return pair{stmts, lir.Binary{Op: e.Op, Left: left.expr, Right: right.expr}}
	case hir.Call:
		return c.call(e)
	case hir.Sequence:
		pre := c.stmt(e.Stmt)
		val := c.expr(e.Expr)
		return pair{append(pre, val.stmts...), val.expr}
	default:
		panic("canon: unreachable expression variant")
	}
}

// pureValue reports whether a residual LIR expression is a constant leaf
// (integer or label) whose value no intervening side effect can change.
// A temporary is not one: hoisted statements may reassign it.
func pureValue(e lir.Expr) bool {
	switch e.(type) {
	case lir.Integer, lir.LabelExpr:
		return true
	default:
		return false
	}
}

// call lowers an HIR Call expression: args are evaluated left to right
// into fresh temporaries, the call is emitted as a statement, and the
// first return value becomes the residual expression: after this, Call
// only appears as a top-level statement whose results flow through
// Return(i) temporaries.
func (c *canonizer) call(e hir.Call) pair {
	target := c.expr(e.Target)
	stmts := target.stmts

	args := make([]lir.Expr, len(e.Args))
	for i, a := range e.Args {
		lowered := c.expr(a)
		stmts = append(stmts, lowered.stmts...)
		tmp := operand.FreshTemporary(operand.CategoryCanon)
		stmts = append(stmts, lir.Move{Dst: lir.Temp{Temp: tmp}, Src: lowered.expr})
		args[i] = lir.Temp{Temp: tmp}
	}

	stmts = append(stmts, lir.Call{Target: target.expr, Args: args, NReturns: e.NReturn})

	if e.NReturn == 0 {
		return pair{stmts, lir.Integer{Value: 0}}
	}
	return pair{stmts, lir.Temp{Temp: operand.Return(0)}}
}

// stmt lowers an HIR statement to a sequence of LIR statements.
func (c *canonizer) stmt(s hir.Stmt) []lir.Stmt {
	switch s := s.(type) {
	case hir.ExprStmt:
		v := c.expr(s.Expr)
		return v.stmts
	case hir.Move:
		return c.move(s)
	case hir.Jump:
		target := c.expr(s.Target)
		if lbl, ok := target.expr.(lir.LabelExpr); ok {
			return append(target.stmts, lir.Jump{Target: lbl.Label})
		}
		panic("canon: indirect jump targets are unsupported by this target")
	case hir.CJump:
		cond := c.expr(s.Cond)
		stmts := append(cond.stmts, lir.CJump{Cond: cond.expr, True: s.TrueLbl})
		return append(stmts, lir.Jump{Target: s.FalseLbl})
	case hir.LabelStmt:
		return []lir.Stmt{lir.LabelStmt{Label: s.Label}}
	case hir.ReturnStmt:
		stmts := []lir.Stmt{}
		vals := make([]lir.Expr, len(s.Values))
		for i, v := range s.Values {
			lowered := c.expr(v)
			stmts = append(stmts, lowered.stmts...)
			vals[i] = lowered.expr
		}
		return append(stmts, lir.Return{Values: vals})
	case hir.Block:
		var stmts []lir.Stmt
		for _, sub := range s.Stmts {
			stmts = append(stmts, c.stmt(sub)...)
		}
		return stmts
	default:
		panic("canon: unreachable statement variant")
	}
}

// move lowers Move(dst, src): dst's address-forming subexpression is
// evaluated into a fresh temporary before src is evaluated, so a side
// effect inside src cannot change which memory location dst refers to.
func (c *canonizer) move(s hir.Move) []lir.Stmt {
	if mem, ok := s.Dst.(hir.Mem); ok {
		addr := c.expr(mem.Addr)
		addrTmp := operand.FreshTemporary(operand.CategoryCanon)
		stmts := append(addr.stmts, lir.Move{Dst: lir.Temp{Temp: addrTmp}, Src: addr.expr})

		src := c.expr(s.Src)
		stmts = append(stmts, src.stmts...)
		return append(stmts, lir.Move{Dst: lir.Mem{Addr: lir.Temp{Temp: addrTmp}}, Src: src.expr})
	}

	dst := c.expr(s.Dst)
	src := c.expr(s.Src)
	stmts := append(dst.stmts, src.stmts...)
	return append(stmts, lir.Move{Dst: dst.expr, Src: src.expr})
}
