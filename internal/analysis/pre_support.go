package analysis

import (
	"xic/internal/cfg"
	"xic/internal/dataflow"
	"xic/internal/lir"
	"xic/internal/operand"
)

// AvailableForPRE is the availability analysis lazy code motion consumes:
// forward, ∩ meet, with each block's gen approximated by Anticipated.in,
// so availability reflects the placements anticipation licenses rather
// than only the computations the block already performs.
// Without the anticipated seed, Earliest marks every block instead of only
// the frontier, and insertion drifts off the one-placement-per-path
// property the rest of the equations assume.
func AvailableForPRE(g *cfg.Graph, fn *lir.Function, ant *dataflow.Result[Expr]) *dataflow.Result[Expr] {
	universe := AllCandidates(fn)
	a := dataflow.Analysis[Expr]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Intersect[Expr],
		InitialEntry:    universe.Clone(),
		InitialBoundary: dataflow.NewSet[Expr](),
		Transfer: func(blockIdx int, in dataflow.Set[Expr]) dataflow.Set[Expr] {
			_, kill := blockGenKill(g.Blocks[blockIdx], collectExprs(fn))
			return dataflow.Difference(dataflow.Union(in, ant.In[blockIdx]), kill)
		},
	}
	return dataflow.Run(g, a)
}

// Earliest computes, for every block, Anticipated.In[B] ∖ Available.In[B].
// It is a pointwise derivation, not an iterative analysis in its own
// right.
func Earliest(g *cfg.Graph, ant, avail *dataflow.Result[Expr]) map[operand.Label]dataflow.Set[Expr] {
	out := make(map[operand.Label]dataflow.Set[Expr], len(g.Blocks))
	for i, b := range g.Blocks {
		e := dataflow.Difference(ant.In[i], avail.In[i])
		// The synthetic enter block carries the function's enter label, so
		// it shares its key with a first real block that opens with that
		// label. Nothing lies between the two, so their sets are merged
		// rather than the second overwriting the first.
		if prev, ok := out[b.Label]; ok {
			e = dataflow.Union(prev, e)
		}
		out[b.Label] = e
	}
	return out
}

// PostponableExpressions: forward, ∩ meet, seeded with Earliest and
// killed by each block's own use set.
func PostponableExpressions(g *cfg.Graph, exprsOf func() []Expr, earliest map[operand.Label]dataflow.Set[Expr]) *dataflow.Result[Expr] {
	universe := dataflow.NewSet(exprsOf()...)
	a := dataflow.Analysis[Expr]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Intersect[Expr],
		InitialEntry:    universe.Clone(),
		InitialBoundary: dataflow.NewSet[Expr](),
		Transfer: func(blockIdx int, in dataflow.Set[Expr]) dataflow.Set[Expr] {
			b := g.Blocks[blockIdx]
			use, _ := blockGenKill(b, exprsOf())
			e := earliest[b.Label]
			return dataflow.Difference(dataflow.Union(in, e), use)
		},
	}
	return dataflow.Run(g, a)
}

// Latest computes, per block, the set of expressions whose hoisted
// computation may be placed no later than this block without losing the
// benefit of the earliest placement:
//
//	Latest[B] = (Earliest[B] ∪ Postponable.in[B])
//	            ∩ (use[B] ∪ ¬(⋂ succ (Earliest ∪ Postponable.in)))
func Latest(g *cfg.Graph, exprsOf func() []Expr, earliest map[operand.Label]dataflow.Set[Expr], postponable *dataflow.Result[Expr]) map[operand.Label]dataflow.Set[Expr] {
	universe := dataflow.NewSet(exprsOf()...)
	earlyOrPostp := make(map[operand.Label]dataflow.Set[Expr], len(g.Blocks))
	for i, b := range g.Blocks {
		earlyOrPostp[b.Label] = dataflow.Union(earliest[b.Label], postponable.In[i])
	}

	out := make(map[operand.Label]dataflow.Set[Expr], len(g.Blocks))
	for i, b := range g.Blocks {
		lhs := earlyOrPostp[b.Label]
		use, _ := blockGenKill(b, exprsOf())

		succs := g.Successors(i)
		var succMeet dataflow.Set[Expr]
		if len(succs) == 0 {
			succMeet = universe.Clone()
		} else {
			first := true
			for _, e := range succs {
				succLabel := g.Blocks[e.To].Label
				if first {
					succMeet = earlyOrPostp[succLabel].Clone()
					first = false
				} else {
					succMeet = dataflow.Intersect(succMeet, earlyOrPostp[succLabel])
				}
			}
		}
		notSuccMeet := dataflow.Difference(universe, succMeet)
		rhs := dataflow.Union(use, notSuccMeet)
		out[b.Label] = dataflow.Intersect(lhs, rhs)
	}
	return out
}

// UsedExpressions: backward, ∪ meet, seeded with Latest:
// in[B] = (use[B] ∪ out[B]) ∖ Latest[B]. An expression stays "used"
// into a block's predecessors while some path still reads it beyond the
// point Latest placed its one computation.
func UsedExpressions(g *cfg.Graph, exprsOf func() []Expr, latest map[operand.Label]dataflow.Set[Expr]) *dataflow.Result[Expr] {
	a := dataflow.Analysis[Expr]{
		Direction:       dataflow.Backward,
		Meet:            dataflow.Union[Expr],
		InitialEntry:    dataflow.NewSet[Expr](),
		InitialBoundary: dataflow.NewSet[Expr](),
		Transfer: func(blockIdx int, out dataflow.Set[Expr]) dataflow.Set[Expr] {
			b := g.Blocks[blockIdx]
			use, _ := blockGenKill(b, exprsOf())
			return dataflow.Difference(dataflow.Union(use, out), latest[b.Label])
		},
	}
	return dataflow.Run(g, a)
}
