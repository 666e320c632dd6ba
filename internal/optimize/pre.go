package optimize

import (
	"xic/internal/analysis"
	"xic/internal/cfg"
	"xic/internal/dataflow"
	"xic/internal/lir"
	"xic/internal/operand"
)

// EliminatePartialRedundancy performs lazy code motion over each
// function's LIR CFG: Anticipated and
// Available expressions derive Earliest, which seeds Postponable;
// Earliest ∪ Postponable.in derives Latest, the single placement point
// for each redundant expression, and Used marks where a placed value
// remains needed on to a use. Step 7 of the algorithm then inserts one
// hoisted definition per (expression, block) in Latest ∩ Used.out and
// rewrites covered uses to read it.
func EliminatePartialRedundancy(u *lir.Unit) *lir.Unit {
	out := &lir.Unit{Functions: make(map[string]*lir.Function), Data: u.Data}
	for name, fn := range u.Functions {
		out.Functions[name] = eliminatePartialRedundancyFunc(fn)
	}
	return out
}

func eliminatePartialRedundancyFunc(fn *lir.Function) *lir.Function {
	universe := analysis.AllCandidates(fn)
	if len(universe) == 0 {
		return fn
	}
	exprsOf := func() []analysis.Expr {
		out := make([]analysis.Expr, 0, len(universe))
		for e := range universe {
			out = append(out, e)
		}
		return out
	}

	g := cfg.Construct(fn)

	ant := analysis.AnticipatedExpressions(g, fn)
	avail := analysis.AvailableForPRE(g, fn, ant)
	earliest := analysis.Earliest(g, ant, avail)
	postponable := analysis.PostponableExpressions(g, exprsOf, earliest)
	latest := analysis.Latest(g, exprsOf, earliest, postponable)
	used := analysis.UsedExpressions(g, exprsOf, latest)

	hoistTemp := map[analysis.Expr]operand.Temporary{}
	getTemp := func(e analysis.Expr) operand.Temporary {
		if t, ok := hoistTemp[e]; ok {
			return t
		}
		t := operand.FreshTemporary(operand.CategoryPRE)
		hoistTemp[e] = t
		return t
	}

	for i, b := range g.Blocks {
		if i == g.Enter || i == g.Exit {
			continue
		}

		insertSet := dataflow.Intersect(latest[b.Label], used.Out[i])

		// An occurrence reads the hoisted temporary when its value is
		// guaranteed to reach it: either Latest postponed the computation
		// past this block entirely, or this block holds the placement and
		// later blocks still read it. Occurrences after an in-block
		// redefinition of an operand are a fresh value and stay put.
		replaceSet := dataflow.Union(dataflow.Difference(universe, latest[b.Label]), used.Out[i])
		killed := dataflow.NewSet[operand.Temporary]()
		shouldReplace := func(e analysis.Expr) bool {
			if !replaceSet.Has(e) {
				return false
			}
			for _, t := range analysis.TemporariesIn(e) {
				if killed.Has(t) {
					return false
				}
			}
			return true
		}

		rewritten := make([]lir.Stmt, len(b.Stmts))
		for j, s := range b.Stmts {
			rewritten[j] = rewritePREStmt(s, shouldReplace, getTemp)
			for _, t := range analysis.DefinedTemporaries(s) {
				killed[t] = struct{}{}
			}
		}

		var prefix []lir.Stmt
		for e := range insertSet {
			prefix = append(prefix, lir.Move{Dst: lir.Temp{Temp: getTemp(e)}, Src: e})
		}

		// Hoisted definitions go at block entry, after the leading
		// LabelStmt when the block has one.
		at := 0
		if len(rewritten) > 0 {
			if _, ok := rewritten[0].(lir.LabelStmt); ok {
				at = 1
			}
		}
		stmts := append([]lir.Stmt{}, rewritten[:at]...)
		stmts = append(stmts, prefix...)
		b.Stmts = append(stmts, rewritten[at:]...)
	}

	return cfg.Destruct(g, fn)
}

func rewritePREStmt(s lir.Stmt, shouldReplace func(analysis.Expr) bool, getTemp func(analysis.Expr) operand.Temporary) lir.Stmt {
	switch s := s.(type) {
	case lir.Move:
		return lir.Move{Dst: replacePREExpr(s.Dst, shouldReplace, getTemp), Src: replacePREExpr(s.Src, shouldReplace, getTemp)}
	case lir.CJump:
		return lir.CJump{Cond: replacePREExpr(s.Cond, shouldReplace, getTemp), True: s.True}
	case lir.Call:
		args := make([]lir.Expr, len(s.Args))
		for i, a := range s.Args {
			args[i] = replacePREExpr(a, shouldReplace, getTemp)
		}
		return lir.Call{Target: replacePREExpr(s.Target, shouldReplace, getTemp), Args: args, NReturns: s.NReturns}
	case lir.Return:
		vals := make([]lir.Expr, len(s.Values))
		for i, v := range s.Values {
			vals[i] = replacePREExpr(v, shouldReplace, getTemp)
		}
		return lir.Return{Values: vals}
	default:
		return s
	}
}

// replacePREExpr rewrites the first (outermost) matching candidate
// subexpression it finds along each path to a reference to its hoisted
// temporary, without recursing further into an already-replaced subtree.
func replacePREExpr(e lir.Expr, shouldReplace func(analysis.Expr) bool, getTemp func(analysis.Expr) operand.Temporary) lir.Expr {
	switch e := e.(type) {
	case lir.Binary:
		if shouldReplace(e) {
			return lir.Temp{Temp: getTemp(e)}
		}
		return lir.Binary{Op: e.Op, Left: replacePREExpr(e.Left, shouldReplace, getTemp), Right: replacePREExpr(e.Right, shouldReplace, getTemp)}
	case lir.Mem:
		return lir.Mem{Addr: replacePREExpr(e.Addr, shouldReplace, getTemp)}
	default:
		return e
	}
}
