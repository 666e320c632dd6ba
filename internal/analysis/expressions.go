package analysis

import (
	"xic/internal/cfg"
	"xic/internal/dataflow"
	"xic/internal/lir"
	"xic/internal/operand"
)

// Expr is the candidate-expression universe for PRE: side-effect-free
// binary expressions over temporaries/constants, excluding any
// expression containing a memory read.
type Expr = lir.Binary

// collectExprs returns every distinct pure binary subexpression appearing
// anywhere in fn, skipping any that contain a Mem read.
func collectExprs(fn *lir.Function) []Expr {
	seen := map[Expr]bool{}
	var out []Expr
	var walk func(e lir.Expr)
	walk = func(e lir.Expr) {
		switch e := e.(type) {
		case lir.Binary:
			walk(e.Left)
			walk(e.Right)
			if isPureTree(e) && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		case lir.Mem:
			walk(e.Addr)
		}
	}
	for _, s := range fn.Stmts {
		forEachExprIn(s, walk)
	}
	return out
}

func isPureTree(e lir.Expr) bool {
	switch e := e.(type) {
	case lir.Mem:
		return false
	case lir.Binary:
		return isPureTree(e.Left) && isPureTree(e.Right)
	default:
		_ = e
		return true
	}
}

func forEachExprIn(s lir.Stmt, f func(lir.Expr)) {
	switch s := s.(type) {
	case lir.Move:
		f(s.Dst)
		f(s.Src)
	case lir.CJump:
		f(s.Cond)
	case lir.Call:
		f(s.Target)
		for _, a := range s.Args {
			f(a)
		}
	case lir.Return:
		for _, v := range s.Values {
			f(v)
		}
	}
}

// TemporariesIn collects every temporary referenced anywhere inside e.
func TemporariesIn(e lir.Expr) []operand.Temporary {
	var out []operand.Temporary
	var walk func(lir.Expr)
	walk = func(e lir.Expr) {
		switch e := e.(type) {
		case lir.Temp:
			out = append(out, e.Temp)
		case lir.Mem:
			walk(e.Addr)
		case lir.Binary:
			walk(e.Left)
			walk(e.Right)
		}
	}
	walk(e)
	return out
}

// DefinedTemporaries returns the temporaries a statement redefines.
func DefinedTemporaries(s lir.Stmt) []operand.Temporary {
	switch s := s.(type) {
	case lir.Move:
		if t, ok := s.Dst.(lir.Temp); ok {
			return []operand.Temporary{t.Temp}
		}
	case lir.Call:
		n := s.NReturns
		if n < 1 {
			n = 1
		}
		rets := make([]operand.Temporary, n)
		for i := range rets {
			rets[i] = operand.Return(i)
		}
		return rets
	}
	return nil
}

// blockGenKill computes, among the candidate expressions, which are
// generated by block b (computed before any of their operands are
// redefined within b) and which are killed (some operand redefined
// anywhere in b).
func blockGenKill(b *cfg.Block, exprs []Expr) (gen, kill dataflow.Set[Expr]) {
	gen = dataflow.NewSet[Expr]()
	kill = dataflow.NewSet[Expr]()
	killedTemps := dataflow.NewSet[operand.Temporary]()

	for _, s := range b.Stmts {
		var computed []Expr
		forEachExprIn(s, func(e lir.Expr) {
			if bin, ok := e.(lir.Binary); ok && isPureTree(bin) {
				computed = append(computed, bin)
			}
		})
		for _, e := range computed {
			stillClean := true
			for _, t := range TemporariesIn(e) {
				if killedTemps.Has(t) {
					stillClean = false
				}
			}
			if stillClean {
				gen[e] = struct{}{}
			}
		}
		for _, t := range DefinedTemporaries(s) {
			killedTemps[t] = struct{}{}
		}
	}

	for _, e := range exprs {
		for _, t := range TemporariesIn(e) {
			if killedTemps.Has(t) {
				kill[e] = struct{}{}
				break
			}
		}
	}

	return gen, kill
}

// blockAvailGenKill is blockGenKill's downward-exposed counterpart for
// availability: gen holds the expressions computed in b whose operands
// survive to the block's exit (a later redefinition evicts them), kill
// holds every candidate touching a temporary b redefines.
func blockAvailGenKill(b *cfg.Block, exprs []Expr) (gen, kill dataflow.Set[Expr]) {
	gen = dataflow.NewSet[Expr]()
	killedTemps := dataflow.NewSet[operand.Temporary]()

	for _, s := range b.Stmts {
		forEachExprIn(s, func(e lir.Expr) {
			if bin, ok := e.(lir.Binary); ok && isPureTree(bin) {
				gen[bin] = struct{}{}
			}
		})
		for _, t := range DefinedTemporaries(s) {
			killedTemps[t] = struct{}{}
			for e := range gen {
				for _, u := range TemporariesIn(e) {
					if u == t {
						delete(gen, e)
						break
					}
				}
			}
		}
	}

	kill = dataflow.NewSet[Expr]()
	for _, e := range exprs {
		for _, t := range TemporariesIn(e) {
			if killedTemps.Has(t) {
				kill[e] = struct{}{}
				break
			}
		}
	}

	return gen, kill
}

// AllCandidates returns the universe of candidate expressions for fn.
func AllCandidates(fn *lir.Function) dataflow.Set[Expr] {
	return dataflow.NewSet(collectExprs(fn)...)
}

// AvailableExpressions: forward, ∩ meet, transfer (in∖killed)∪gen.
func AvailableExpressions(g *cfg.Graph, fn *lir.Function) *dataflow.Result[Expr] {
	universe := AllCandidates(fn)
	a := dataflow.Analysis[Expr]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Intersect[Expr],
		InitialEntry:    universe.Clone(),
		InitialBoundary: dataflow.NewSet[Expr](),
		Transfer: func(blockIdx int, in dataflow.Set[Expr]) dataflow.Set[Expr] {
			gen, kill := blockAvailGenKill(g.Blocks[blockIdx], collectExprs(fn))
			return dataflow.Union(dataflow.Difference(in, kill), gen)
		},
	}
	return dataflow.Run(g, a)
}

// AnticipatedExpressions: backward, ∩ meet, transfer use ∪ (out∖killed).
// "use" is approximated here by the block's Gen set, the expressions the
// block itself computes.
func AnticipatedExpressions(g *cfg.Graph, fn *lir.Function) *dataflow.Result[Expr] {
	universe := AllCandidates(fn)
	a := dataflow.Analysis[Expr]{
		Direction:       dataflow.Backward,
		Meet:            dataflow.Intersect[Expr],
		InitialEntry:    universe.Clone(),
		InitialBoundary: dataflow.NewSet[Expr](),
		Transfer: func(blockIdx int, out dataflow.Set[Expr]) dataflow.Set[Expr] {
			use, kill := blockGenKill(g.Blocks[blockIdx], collectExprs(fn))
			return dataflow.Union(use, dataflow.Difference(out, kill))
		},
	}
	return dataflow.Run(g, a)
}
