package optimize

import (
	"xic/internal/lir"
	"xic/internal/operand"
)

// Inline performs size-bounded inlining over a LIR unit: a
// direct call to a callee at or below threshold LIR statements is
// replaced by the callee's body, unless the callee is already being
// expanded higher up the current inlining stack (which would otherwise
// unfold a recursive call forever). Callee temporaries and internal
// labels are alpha-renamed per call site so repeated inlining of the
// same callee never collides across call sites or with the caller's own
// names; Argument(i) reads are redirected to the call's actual argument
// values; each Return(i) write is redirected through the shared
// Return(i) convention temporary followed by a jump to a per-call-site
// join label, exactly mirroring what a real call/return pair leaves
// behind for the code after the call site.
func Inline(u *lir.Unit, threshold int) *lir.Unit {
	inl := &inliner{unit: u, threshold: threshold}
	out := &lir.Unit{Functions: make(map[string]*lir.Function), Data: u.Data}
	for name, fn := range u.Functions {
		inl.stack = map[string]bool{fn.Name: true}
		out.Functions[name] = inl.function(fn)
	}
	return out
}

type inliner struct {
	unit      *lir.Unit
	threshold int
	stack     map[string]bool
}

func (inl *inliner) function(fn *lir.Function) *lir.Function {
	var stmts []lir.Stmt
	for _, s := range fn.Stmts {
		stmts = append(stmts, inl.stmt(s)...)
	}
	next := *fn
	next.Stmts = stmts
	return &next
}

func (inl *inliner) stmt(s lir.Stmt) []lir.Stmt {
	call, ok := s.(lir.Call)
	if !ok {
		return []lir.Stmt{s}
	}
	callee, ok := inl.resolveCallee(call.Target)
	if !ok || inl.stack[callee.Name] || len(callee.Stmts) > inl.threshold {
		return []lir.Stmt{s}
	}
	return inl.expand(callee, call)
}

// resolveCallee recognizes only direct calls: a target that is the
// address of a statically known function. Indirect call targets (a
// temporary or computed address) are never inlined.
func (inl *inliner) resolveCallee(target lir.Expr) (*lir.Function, bool) {
	lbl, ok := target.(lir.LabelExpr)
	if !ok {
		return nil, false
	}
	if fn, ok := inl.unit.Functions[lbl.Label.String()]; ok {
		return fn, true
	}
	for _, fn := range inl.unit.Functions {
		if fn.Enter == lbl.Label {
			return fn, true
		}
	}
	return nil, false
}

// expand splices callee's body in place of a call statement.
func (inl *inliner) expand(callee *lir.Function, call lir.Call) []lir.Stmt {
	inl.stack[callee.Name] = true
	defer delete(inl.stack, callee.Name)

	temps := collectRenamableTemps(callee.Stmts)
	for i := range call.Args {
		temps[operand.Argument(i)] = operand.FreshTemporary(operand.CategoryInline)
	}

	labels := map[operand.Label]operand.Label{}
	for _, s := range callee.Stmts {
		if l, ok := s.(lir.LabelStmt); ok {
			labels[l.Label] = operand.FreshLabel()
		}
	}

	join := operand.FreshLabel()

	var out []lir.Stmt
	for i, a := range call.Args {
		out = append(out, lir.Move{Dst: lir.Temp{Temp: temps[operand.Argument(i)]}, Src: a})
	}

	// Recursively inline further direct calls found inside callee's own
	// body before splicing it in, so a chain of small non-recursive
	// callees collapses in one pass.
	expanded := inl.function(callee)
	for _, s := range expanded.Stmts {
		out = append(out, inl.rewriteStmt(s, temps, labels, join)...)
	}
	out = append(out, lir.LabelStmt{Label: join})

	return out
}

// collectRenamableTemps finds every source-named or compiler-fresh
// temporary callee's body defines or reads, mapping each to a fresh
// replacement. Argument/Return/Register temporaries are handled
// separately: Argument is substituted with the call's actual values,
// Return is redirected through the shared convention temp, and Register
// temporaries do not occur before register allocation.
func collectRenamableTemps(stmts []lir.Stmt) map[operand.Temporary]operand.Temporary {
	seen := map[operand.Temporary]operand.Temporary{}
	mark := func(t operand.Temporary) {
		if t.Kind != operand.TempNamed && t.Kind != operand.TempFresh {
			return
		}
		if _, ok := seen[t]; !ok {
			seen[t] = operand.FreshTemporary(operand.CategoryInline)
		}
	}
	var walkExpr func(e lir.Expr)
	walkExpr = func(e lir.Expr) {
		switch e := e.(type) {
		case lir.Temp:
			mark(e.Temp)
		case lir.Mem:
			walkExpr(e.Addr)
		case lir.Binary:
			walkExpr(e.Left)
			walkExpr(e.Right)
		}
	}
	for _, s := range stmts {
		switch s := s.(type) {
		case lir.Move:
			walkExpr(s.Dst)
			walkExpr(s.Src)
		case lir.CJump:
			walkExpr(s.Cond)
		case lir.Call:
			walkExpr(s.Target)
			for _, a := range s.Args {
				walkExpr(a)
			}
		case lir.Return:
			for _, v := range s.Values {
				walkExpr(v)
			}
		}
	}
	return seen
}

func rewriteLabel(l operand.Label, labels map[operand.Label]operand.Label) operand.Label {
	if r, ok := labels[l]; ok {
		return r
	}
	return l
}

func rewriteExpr(e lir.Expr, temps map[operand.Temporary]operand.Temporary) lir.Expr {
	switch e := e.(type) {
	case lir.Temp:
		if r, ok := temps[e.Temp]; ok {
			return lir.Temp{Temp: r}
		}
		return e
	case lir.Mem:
		return lir.Mem{Addr: rewriteExpr(e.Addr, temps)}
	case lir.Binary:
		return lir.Binary{Op: e.Op, Left: rewriteExpr(e.Left, temps), Right: rewriteExpr(e.Right, temps)}
	default:
		return e
	}
}

func (inl *inliner) rewriteStmt(s lir.Stmt, temps map[operand.Temporary]operand.Temporary, labels map[operand.Label]operand.Label, join operand.Label) []lir.Stmt {
	switch s := s.(type) {
	case lir.LabelStmt:
		return []lir.Stmt{lir.LabelStmt{Label: rewriteLabel(s.Label, labels)}}
	case lir.Jump:
		return []lir.Stmt{lir.Jump{Target: rewriteLabel(s.Target, labels)}}
	case lir.CJump:
		return []lir.Stmt{lir.CJump{Cond: rewriteExpr(s.Cond, temps), True: rewriteLabel(s.True, labels)}}
	case lir.Move:
		return []lir.Stmt{lir.Move{Dst: rewriteExpr(s.Dst, temps), Src: rewriteExpr(s.Src, temps)}}
	case lir.Call:
		args := make([]lir.Expr, len(s.Args))
		for i, a := range s.Args {
			args[i] = rewriteExpr(a, temps)
		}
		return []lir.Stmt{lir.Call{Target: rewriteExpr(s.Target, temps), Args: args, NReturns: s.NReturns}}
	case lir.Return:
		var out []lir.Stmt
		for i, v := range s.Values {
			out = append(out, lir.Move{Dst: lir.Temp{Temp: operand.Return(i)}, Src: rewriteExpr(v, temps)})
		}
		out = append(out, lir.Jump{Target: join})
		return out
	default:
		panic("optimize: unreachable lir statement variant")
	}
}
