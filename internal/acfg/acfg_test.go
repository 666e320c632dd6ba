package acfg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/fixture"
	"xic/internal/tile"
)

func TestConstructOpensBlockPerLabelAndAfterTransfer(t *testing.T) {
	lirUnit := fixture.CanonFactorial()
	asmUnit := tile.Unit(lirUnit)
	fn := asmUnit.Functions["fact"]

	g := acfg.Construct(fn)

	require.GreaterOrEqual(t, len(g.Blocks), 5) // enter, loop-header, body, done, exit at least
	require.NotEqual(t, g.Enter, g.Exit)
}

func TestConstructCJumpBlockHasTwoSuccessors(t *testing.T) {
	lirUnit := fixture.CanonFactorial()
	asmUnit := tile.Unit(lirUnit)
	fn := asmUnit.Functions["fact"]

	g := acfg.Construct(fn)

	var sawConditional bool
	for i := range g.Blocks {
		succs := g.Successors(i)
		kinds := map[acfg.EdgeKind]bool{}
		for _, e := range succs {
			kinds[e.Kind] = true
		}
		if kinds[acfg.ConditionalTrue] {
			require.True(t, kinds[acfg.ConditionalFalse], "block %d has a true edge but no false/fallthrough edge", i)
			sawConditional = true
		}
	}
	require.True(t, sawConditional, "fact's loop test should produce a conditional-jump block")
}

func TestDestructRoundTripPreservesInstructionMultiset(t *testing.T) {
	lirUnit := fixture.CanonFactorial()
	asmUnit := tile.Unit(lirUnit)
	fn := asmUnit.Functions["fact"]

	g := acfg.Construct(fn)
	out := acfg.Destruct(g, fn)

	require.GreaterOrEqual(t, len(out.Instrs), len(fn.Instrs))

	var rets int
	for _, ins := range out.Instrs {
		if i, ok := ins.(asm.Instr); ok && i.Op == asm.Ret {
			rets++
		}
	}
	require.Equal(t, 1, rets)
}

func TestEveryNonExitBlockEndsInControlTransfer(t *testing.T) {
	lirUnit := fixture.CanonFactorial()
	asmUnit := tile.Unit(lirUnit)
	fn := asmUnit.Functions["fact"]

	g := acfg.Construct(fn)
	for i, b := range g.Blocks {
		if i == g.Exit || len(b.Instrs) == 0 {
			continue
		}
		require.NotEmpty(t, g.Successors(i), "block %d has no successor edges", i)
	}
}
