package canon_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/canon"
	"xic/internal/fixture"
	"xic/internal/hir"
	"xic/internal/interpret"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/symbol"
)

func TestMoveWithoutSideEffectsLowersDirectly(t *testing.T) {
	x := operand.Named(symbol.Intern("x"))
	fn := &hir.Function{
		Name: "f",
		Body: hir.Block{Stmts: []hir.Stmt{
			hir.Move{Dst: hir.Temp{Temp: x}, Src: hir.Integer{Value: 5}},
			hir.ReturnStmt{Values: []hir.Expr{hir.Temp{Temp: x}}},
		}},
		Returns: 1,
	}

	out := canon.Func(fn)
	require.Len(t, out.Stmts, 2)

	mv, ok := out.Stmts[0].(lir.Move)
	require.True(t, ok)
	require.Equal(t, lir.Temp{Temp: x}, mv.Dst)
	require.Equal(t, lir.Integer{Value: 5}, mv.Src)
}

func TestSequenceIsEliminated(t *testing.T) {
	x := operand.Named(symbol.Intern("x"))
	seq := hir.Sequence{
		Stmt: hir.Move{Dst: hir.Temp{Temp: x}, Src: hir.Integer{Value: 1}},
		Expr: hir.Temp{Temp: x},
	}
	fn := &hir.Function{
		Name: "f",
		Body: hir.Block{Stmts: []hir.Stmt{
			hir.ReturnStmt{Values: []hir.Expr{seq}},
		}},
		Returns: 1,
	}

	out := canon.Func(fn)
	// First statement assigns x, second returns it; no ESEQ remains.
	require.Len(t, out.Stmts, 2)
	_, isMove := out.Stmts[0].(lir.Move)
	require.True(t, isMove)
	ret, ok := out.Stmts[1].(lir.Return)
	require.True(t, ok)
	require.Equal(t, lir.Temp{Temp: x}, ret.Values[0])
}

func TestCallLiftedToStatementPosition(t *testing.T) {
	callee := hir.LabelExpr{Label: operand.FixedLabel(symbol.Intern("g"))}
	call := hir.Call{Target: callee, Args: []hir.Expr{hir.Integer{Value: 1}}, NReturn: 1}
	fn := &hir.Function{
		Name: "f",
		Body: hir.Block{Stmts: []hir.Stmt{
			hir.ReturnStmt{Values: []hir.Expr{call}},
		}},
		Returns: 1,
	}

	out := canon.Func(fn)

	var sawCall bool
	for _, s := range out.Stmts {
		if _, ok := s.(lir.Call); ok {
			sawCall = true
		}
	}
	require.True(t, sawCall, "Call must appear as a top-level LIR statement")

	last := out.Stmts[len(out.Stmts)-1]
	ret, ok := last.(lir.Return)
	require.True(t, ok)
	require.Equal(t, lir.Temp{Temp: operand.Return(0)}, ret.Values[0])
}

// TestCanonPreservesFactorialSemantics: the HIR and canonized-LIR
// interpretations of the same program agree on output.
func TestCanonPreservesFactorialSemantics(t *testing.T) {
	hirUnit := fixture.Factorial()
	lirUnit := canon.Unit(hirUnit)

	var hirOut, lirOut bytes.Buffer
	hirRets, err := interpret.InterpretHIR(hirUnit, "fact", []int64{5}, strings.NewReader(""), &hirOut, interpret.DefaultHeapWords)
	require.NoError(t, err)
	lirRets, err := interpret.InterpretLIR(lirUnit, "fact", []int64{5}, strings.NewReader(""), &lirOut, interpret.DefaultHeapWords)
	require.NoError(t, err)

	require.Equal(t, hirRets, lirRets)
	require.Equal(t, []int64{120}, lirRets)
	require.Equal(t, hirOut.String(), lirOut.String())
}
