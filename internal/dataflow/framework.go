// Package dataflow implements the generic monotone dataflow framework:
// parameterized by direction, lattice, transfer, and meet, driving
// worklist iteration to a fixed point over a CFG. Every concrete
// analysis here is a powerset or flat lattice, which is bounded-height,
// so termination is guaranteed.
package dataflow

// GraphView is the minimal navigational surface the worklist driver needs
// from a control-flow graph: block count, the designated enter/exit
// indices, and successor/predecessor index lists. internal/cfg (LIR-level
// graphs, used by the PRE analyses) and internal/acfg (assembly-level
// graphs, used by live variables and copy/constant propagation) both
// implement it, so one driver serves both instruction representations
// instead of forking the framework per level.
type GraphView interface {
	NumBlocks() int
	EnterBlock() int
	ExitBlock() int
	Succ(i int) []int
	Pred(i int) []int
}

// Direction is Forward (use OUT[pred] to compute IN) or Backward (use
// IN[succ] to compute OUT).
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Analysis parameterizes the framework for a single powerset-lattice
// analysis over temporaries or expressions keyed by T.
type Analysis[T comparable] struct {
	Direction Direction

	// Meet combines facts from multiple predecessors (Forward) or
	// successors (Backward): union or intersection depending on the
	// analysis.
	Meet func(a, b Set[T]) Set[T]

	// InitialEntry seeds every block's IN (Forward) or OUT (Backward)
	// before the first iteration.
	InitialEntry Set[T]

	// InitialBoundary seeds the graph's entry/exit block specifically
	// (e.g. empty set, or a set of architecturally-live registers).
	InitialBoundary Set[T]

	// Transfer computes a block's OUT (Forward) or IN (Backward) from its
	// boundary fact and its own index, letting the caller's closure look
	// up whatever instruction representation that block index holds.
	Transfer func(blockIdx int, fact Set[T]) Set[T]
}

// Result holds the fixed-point IN/OUT facts for every block, indexed by
// block index in the Graph's arena.
type Result[T comparable] struct {
	In  []Set[T]
	Out []Set[T]
}

// Run iterates the worklist algorithm over g until no OUT (Forward) or IN
// (Backward) fact changes.
func Run[T comparable](g GraphView, a Analysis[T]) *Result[T] {
	n := g.NumBlocks()
	res := &Result[T]{In: make([]Set[T], n), Out: make([]Set[T], n)}
	for i := range res.In {
		res.In[i] = a.InitialEntry.Clone()
		res.Out[i] = a.InitialEntry.Clone()
	}

	boundary := g.EnterBlock()
	if a.Direction == Backward {
		boundary = g.ExitBlock()
	}
	if a.Direction == Forward {
		res.In[boundary] = a.InitialBoundary.Clone()
	} else {
		res.Out[boundary] = a.InitialBoundary.Clone()
	}

	worklist := make([]int, 0, n)
	inWorklist := make([]bool, n)
	for i := 0; i < n; i++ {
		worklist = append(worklist, i)
		inWorklist[i] = true
	}

	if a.Direction == Forward {
		runForward(g, a, res, worklist, inWorklist)
	} else {
		runBackward(g, a, res, worklist, inWorklist)
	}

	return res
}

func runForward[T comparable](g GraphView, a Analysis[T], res *Result[T], worklist []int, inWorklist []bool) {
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		inWorklist[b] = false

		if b != g.EnterBlock() {
			in := a.InitialEntry.Clone()
			first := true
			for _, p := range g.Pred(b) {
				if first {
					in = res.Out[p].Clone()
					first = false
				} else {
					in = a.Meet(in, res.Out[p])
				}
			}
			res.In[b] = in
		}

		out := a.Transfer(b, res.In[b])
		if !Equal(out, res.Out[b]) {
			res.Out[b] = out
			for _, s := range g.Succ(b) {
				if !inWorklist[s] {
					worklist = append(worklist, s)
					inWorklist[s] = true
				}
			}
		}
	}
}

func runBackward[T comparable](g GraphView, a Analysis[T], res *Result[T], worklist []int, inWorklist []bool) {
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		inWorklist[b] = false

		if b != g.ExitBlock() {
			out := a.InitialEntry.Clone()
			first := true
			for _, s := range g.Succ(b) {
				if first {
					out = res.In[s].Clone()
					first = false
				} else {
					out = a.Meet(out, res.In[s])
				}
			}
			res.Out[b] = out
		}

		in := a.Transfer(b, res.Out[b])
		if !Equal(in, res.In[b]) {
			res.In[b] = in
			for _, p := range g.Pred(b) {
				if !inWorklist[p] {
					worklist = append(worklist, p)
					inWorklist[p] = true
				}
			}
		}
	}
}
