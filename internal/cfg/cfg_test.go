package cfg_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/cfg"
	"xic/internal/fixture"
	"xic/internal/interpret"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/symbol"
)

func straightLineFunc() *lir.Function {
	enter := operand.FixedLabel(symbol.Intern("f_enter"))
	exit := operand.FixedLabel(symbol.Intern("f_exit"))
	x := operand.Named(symbol.Intern("x"))

	return &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: enter},
			lir.Move{Dst: lir.Temp{Temp: x}, Src: lir.Integer{Value: 1}},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: x}}},
		},
		Enter: enter,
		Exit:  exit,
	}
}

func branchingFunc() *lir.Function {
	enter := operand.FixedLabel(symbol.Intern("g_enter"))
	exit := operand.FixedLabel(symbol.Intern("g_exit"))
	lt := operand.FreshLabel()
	lf := operand.FreshLabel()
	x := operand.Named(symbol.Intern("x"))

	return &lir.Function{
		Name: "g",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: enter},
			lir.CJump{Cond: lir.Temp{Temp: x}, True: lt},
			lir.Jump{Target: lf},
			lir.LabelStmt{Label: lt},
			lir.Return{Values: []lir.Expr{lir.Integer{Value: 1}}},
			lir.LabelStmt{Label: lf},
			lir.Return{Values: []lir.Expr{lir.Integer{Value: 0}}},
		},
		Enter: enter,
		Exit:  exit,
	}
}

func TestConstructBasicBlocks(t *testing.T) {
	fn := straightLineFunc()
	g := cfg.Construct(fn)

	// enter, one real block, exit.
	require.Len(t, g.Blocks, 3)
	require.NotEqual(t, g.Enter, g.Exit)
}

func TestConstructCJumpHasTwoSuccessors(t *testing.T) {
	fn := branchingFunc()
	g := cfg.Construct(fn)

	enterBlockSuccs := g.Successors(g.Enter)
	require.Len(t, enterBlockSuccs, 1)

	condIdx := enterBlockSuccs[0].To
	succs := g.Successors(condIdx)
	require.Len(t, succs, 2)

	kinds := map[cfg.EdgeKind]bool{}
	for _, e := range succs {
		kinds[e.Kind] = true
	}
	require.True(t, kinds[cfg.ConditionalTrue])
	require.True(t, kinds[cfg.ConditionalFalse])
}

func TestDestructRoundTripPreservesStatementMultiset(t *testing.T) {
	fn := straightLineFunc()
	g := cfg.Construct(fn)
	out := cfg.Destruct(g, fn)

	require.Len(t, out.Stmts, len(fn.Stmts))
}

func TestCleanRemovesUnreachableBlocks(t *testing.T) {
	fn := branchingFunc()
	g := cfg.Construct(fn)

	unreachable := &cfg.Block{Label: operand.FreshLabel(), Stmts: []lir.Stmt{
		lir.LabelStmt{Label: operand.FreshLabel()},
		lir.Return{Values: []lir.Expr{lir.Integer{Value: 9}}},
	}}
	g.Blocks = append(g.Blocks, unreachable)

	before := len(g.Blocks)
	cfg.Clean(g)
	require.Less(t, len(g.Blocks), before)
}

// TestDestructConstructPreservesInterpretation: interpret_lir(L) ==
// interpret_lir(destruct(construct(L))).
func TestDestructConstructPreservesInterpretation(t *testing.T) {
	unit := fixture.CanonFactorial()
	fn := unit.Functions["fact"]

	round := cfg.Destruct(cfg.Construct(fn), fn)
	roundUnit := &lir.Unit{Functions: map[string]*lir.Function{"fact": round}, Data: unit.Data}

	var a, b bytes.Buffer
	want, err := interpret.InterpretLIR(unit, "fact", []int64{6}, strings.NewReader(""), &a, interpret.DefaultHeapWords)
	require.NoError(t, err)
	got, err := interpret.InterpretLIR(roundUnit, "fact", []int64{6}, strings.NewReader(""), &b, interpret.DefaultHeapWords)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, []int64{720}, got)
}

// TestCleanPreservesInterpretation: interpret_lir(destruct(C)) ==
// interpret_lir(destruct(clean(C))).
func TestCleanPreservesInterpretation(t *testing.T) {
	unit := fixture.CanonFactorial()
	fn := unit.Functions["fact"]

	cleaned := cfg.Destruct(cfg.Clean(cfg.Construct(fn)), fn)
	cleanedUnit := &lir.Unit{Functions: map[string]*lir.Function{"fact": cleaned}, Data: unit.Data}

	var out bytes.Buffer
	got, err := interpret.InterpretLIR(cleanedUnit, "fact", []int64{5}, strings.NewReader(""), &out, interpret.DefaultHeapWords)
	require.NoError(t, err)
	require.Equal(t, []int64{120}, got)
}
