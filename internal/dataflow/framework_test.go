package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/dataflow"
)

// diamond is a tiny synthetic GraphView: enter -> {left, right} -> join -> exit.
// It is deliberately not tied to any IR package so the framework is
// exercised independently of cfg/acfg's own construction logic.
type diamond struct{}

const (
	dEnter = 0
	dLeft  = 1
	dRight = 2
	dJoin  = 3
	dExit  = 4
)

func (diamond) NumBlocks() int  { return 5 }
func (diamond) EnterBlock() int { return dEnter }
func (diamond) ExitBlock() int  { return dExit }

func (diamond) Succ(i int) []int {
	switch i {
	case dEnter:
		return []int{dLeft, dRight}
	case dLeft, dRight:
		return []int{dJoin}
	case dJoin:
		return []int{dExit}
	default:
		return nil
	}
}

func (diamond) Pred(i int) []int {
	switch i {
	case dLeft, dRight:
		return []int{dEnter}
	case dJoin:
		return []int{dLeft, dRight}
	case dExit:
		return []int{dJoin}
	default:
		return nil
	}
}

// TestForwardUnionReachesJoinOfBothBranches models a crude "reaching
// definitions"-style analysis: each branch generates its own fact, and the
// join block should see the union of both once the worklist converges.
func TestForwardUnionReachesJoinOfBothBranches(t *testing.T) {
	a := dataflow.Analysis[string]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Union[string],
		InitialEntry:    dataflow.NewSet[string](),
		InitialBoundary: dataflow.NewSet[string](),
		Transfer: func(b int, in dataflow.Set[string]) dataflow.Set[string] {
			out := in.Clone()
			switch b {
			case dLeft:
				out["left"] = struct{}{}
			case dRight:
				out["right"] = struct{}{}
			}
			return out
		},
	}

	res := dataflow.Run[string](diamond{}, a)

	require.True(t, res.In[dJoin].Has("left"))
	require.True(t, res.In[dJoin].Has("right"))
	require.False(t, res.In[dLeft].Has("right"))
}

// TestBackwardIntersectionOnlyKeepsFactsCommonToAllSuccessors models an
// anticipated-expressions-style analysis: a fact only survives a
// backward-intersection meet at a predecessor of both branches if every
// branch produces it independently.
func TestBackwardIntersectionOnlyKeepsFactsCommonToAllSuccessors(t *testing.T) {
	full := dataflow.NewSet("shared", "left-only")
	a := dataflow.Analysis[string]{
		Direction:       dataflow.Backward,
		Meet:            dataflow.Intersect[string],
		InitialEntry:    full.Clone(),
		InitialBoundary: dataflow.NewSet[string](),
		Transfer: func(b int, out dataflow.Set[string]) dataflow.Set[string] {
			switch b {
			case dLeft:
				return dataflow.NewSet("shared", "left-only")
			case dRight:
				return dataflow.NewSet("shared")
			default:
				return out.Clone()
			}
		},
	}

	res := dataflow.Run[string](diamond{}, a)

	require.True(t, res.Out[dEnter].Has("shared"))
	require.False(t, res.Out[dEnter].Has("left-only"))
}

// TestRunConvergesOnStraightLineGraph exercises the degenerate single-path
// case where every block's IN/OUT settles after one pass.
func TestRunConvergesOnStraightLineGraph(t *testing.T) {
	g := straightLine{n: 4}
	a := dataflow.Analysis[int]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Union[int],
		InitialEntry:    dataflow.NewSet[int](),
		InitialBoundary: dataflow.NewSet[int](),
		Transfer: func(b int, in dataflow.Set[int]) dataflow.Set[int] {
			out := in.Clone()
			out[b] = struct{}{}
			return out
		},
	}

	res := dataflow.Run[int](g, a)

	require.True(t, res.Out[3].Has(0))
	require.True(t, res.Out[3].Has(1))
	require.True(t, res.Out[3].Has(2))
	require.True(t, res.Out[3].Has(3))
}

type straightLine struct{ n int }

func (s straightLine) NumBlocks() int  { return s.n }
func (s straightLine) EnterBlock() int { return 0 }
func (s straightLine) ExitBlock() int  { return s.n - 1 }
func (s straightLine) Succ(i int) []int {
	if i+1 < s.n {
		return []int{i + 1}
	}
	return nil
}
func (s straightLine) Pred(i int) []int {
	if i > 0 {
		return []int{i - 1}
	}
	return nil
}
