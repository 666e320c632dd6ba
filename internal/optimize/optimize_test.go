package optimize_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/hir"
	"xic/internal/interpret"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/optimize"
	"xic/internal/symbol"
)

func runLIR(t *testing.T, u *lir.Unit, entry string, args []int64) []int64 {
	t.Helper()
	var stdout bytes.Buffer
	rets, err := interpret.InterpretLIR(u, entry, args, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.NoError(t, err)
	return rets
}

func TestConstantFoldHIRAppliesIdentityAndArithmetic(t *testing.T) {
	x := operand.Named(symbol.Intern("x"))
	body := hir.Block{Stmts: []hir.Stmt{
		hir.Move{
			Dst: hir.Temp{Temp: x},
			Src: hir.Binary{Op: hir.Add, Left: hir.Integer{Value: 2}, Right: hir.Integer{Value: 3}},
		},
		hir.Move{
			Dst: hir.Temp{Temp: x},
			Src: hir.Binary{Op: hir.Add, Left: hir.Temp{Temp: x}, Right: hir.Integer{Value: 0}},
		},
	}}
	u := &hir.Unit{Functions: map[string]*hir.Function{
		"f": {Name: "f", Body: body, Returns: 0},
	}}

	folded := optimize.ConstantFoldHIR(u)
	block := folded.Functions["f"].Body.(hir.Block)

	first := block.Stmts[0].(hir.Move)
	require.Equal(t, int64(5), first.Src.(hir.Integer).Value)

	second := block.Stmts[1].(hir.Move)
	require.Equal(t, x, second.Src.(hir.Temp).Temp)
}

func TestConstantFoldLIRCollapsesConstantCJump(t *testing.T) {
	trueLbl := operand.FreshLabel()
	u := &lir.Unit{Functions: map[string]*lir.Function{
		"f": {
			Name: "f",
			Stmts: []lir.Stmt{
				lir.CJump{Cond: lir.Integer{Value: 1}, True: trueLbl},
			},
		},
	}}

	folded := optimize.ConstantFoldLIR(u)
	stmts := folded.Functions["f"].Stmts
	require.Len(t, stmts, 1)
	jmp, ok := stmts[0].(lir.Jump)
	require.True(t, ok)
	require.Equal(t, trueLbl, jmp.Target)
}

func deadCodeFunc() *asm.Function {
	enter := operand.FixedLabel(symbol.Intern("f_enter"))
	exit := operand.FixedLabel(symbol.Intern("f_exit"))
	dead := operand.Named(symbol.Intern("dead"))
	live := operand.Named(symbol.Intern("live"))

	return &asm.Function{
		Name: "f",
		Instrs: []asm.AnyInstr{
			asm.LabelInstr{Label: enter},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dead}, Src: asm.ImmOp{Imm: operand.IntImmediate(1)}, Defs: []operand.Temporary{dead}},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: live}, Src: asm.ImmOp{Imm: operand.IntImmediate(2)}, Defs: []operand.Temporary{live}},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: operand.Return(0)}, Src: asm.TempOp{Temp: live}, Defs: []operand.Temporary{operand.Return(0)}, Uses: []operand.Temporary{live}},
			asm.Instr{Op: asm.Ret, NRets: 1},
		},
		Enter: enter,
		Exit:  exit,
	}
}

func TestEliminateDeadCodeDropsUnusedDefinition(t *testing.T) {
	fn := deadCodeFunc()
	cleaned := optimize.EliminateDeadCode(fn)

	for _, ins := range cleaned.Instrs {
		i, ok := ins.(asm.Instr)
		if !ok {
			continue
		}
		for _, d := range i.Defs {
			require.NotEqual(t, "dead", d.String())
		}
	}
}

func copyChainFunc() *asm.Function {
	enter := operand.FixedLabel(symbol.Intern("f_enter"))
	exit := operand.FixedLabel(symbol.Intern("f_exit"))
	x := operand.Named(symbol.Intern("x"))
	y := operand.Named(symbol.Intern("y"))

	return &asm.Function{
		Name: "f",
		Instrs: []asm.AnyInstr{
			asm.LabelInstr{Label: enter},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: x}, Src: asm.ImmOp{Imm: operand.IntImmediate(7)}, Defs: []operand.Temporary{x}},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: y}, Src: asm.TempOp{Temp: x}, Defs: []operand.Temporary{y}, Uses: []operand.Temporary{x}},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: operand.Return(0)}, Src: asm.TempOp{Temp: y}, Defs: []operand.Temporary{operand.Return(0)}, Uses: []operand.Temporary{y}},
			asm.Instr{Op: asm.Ret, NRets: 1},
		},
		Enter: enter,
		Exit:  exit,
	}
}

func TestCopyPropagateRewritesUseToSource(t *testing.T) {
	fn := copyChainFunc()
	rewritten := optimize.CopyPropagate(fn)

	g := acfg.Construct(rewritten)
	var found bool
	for _, b := range g.Blocks {
		for _, ins := range b.Instrs {
			i, ok := ins.(asm.Instr)
			if !ok || i.Op != asm.Mov {
				continue
			}
			dst, isDstTemp := i.Dst.(asm.TempOp)
			if !isDstTemp || dst.Temp != operand.Return(0) {
				continue
			}
			src, isSrcTemp := i.Src.(asm.TempOp)
			require.True(t, isSrcTemp)
			require.Equal(t, operand.Named(symbol.Intern("x")), src.Temp)
			found = true
		}
	}
	require.True(t, found)
}

func constFoldableAsmFunc() *asm.Function {
	enter := operand.FixedLabel(symbol.Intern("f_enter"))
	exit := operand.FixedLabel(symbol.Intern("f_exit"))
	x := operand.Named(symbol.Intern("x"))

	return &asm.Function{
		Name: "f",
		Instrs: []asm.AnyInstr{
			asm.LabelInstr{Label: enter},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: x}, Src: asm.ImmOp{Imm: operand.IntImmediate(9)}, Defs: []operand.Temporary{x}},
			asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: operand.Return(0)}, Src: asm.TempOp{Temp: x}, Defs: []operand.Temporary{operand.Return(0)}, Uses: []operand.Temporary{x}},
			asm.Instr{Op: asm.Ret, NRets: 1},
		},
		Enter: enter,
		Exit:  exit,
	}
}

func TestConstantPropagateRewritesUseToImmediate(t *testing.T) {
	fn := constFoldableAsmFunc()
	rewritten := optimize.ConstantPropagate(fn)

	var sawImmediate bool
	for _, ins := range rewritten.Instrs {
		i, ok := ins.(asm.Instr)
		if !ok {
			continue
		}
		dst, isDstTemp := i.Dst.(asm.TempOp)
		if !isDstTemp || dst.Temp != operand.Return(0) {
			continue
		}
		if imm, ok := i.Src.(asm.ImmOp); ok && imm.Imm.Integer == 9 {
			sawImmediate = true
		}
	}
	require.True(t, sawImmediate)
}

func TestInlineSplicesSmallCalleeBody(t *testing.T) {
	calleeEnter := operand.FixedLabel(symbol.Intern("add_enter"))
	calleeExit := operand.FixedLabel(symbol.Intern("add_exit"))
	a := operand.Argument(0)
	b := operand.Argument(1)

	callee := &lir.Function{
		Name: "add",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: calleeEnter},
			lir.Return{Values: []lir.Expr{lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: a}, Right: lir.Temp{Temp: b}}}},
		},
		Arguments: 2,
		Returns:   1,
		Enter:     calleeEnter,
		Exit:      calleeExit,
	}

	mainEnter := operand.FixedLabel(symbol.Intern("main_enter"))
	mainExit := operand.FixedLabel(symbol.Intern("main_exit"))
	result := operand.Named(symbol.Intern("result"))

	caller := &lir.Function{
		Name: "main",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: mainEnter},
			lir.Call{Target: lir.LabelExpr{Label: calleeEnter}, Args: []lir.Expr{lir.Integer{Value: 1}, lir.Integer{Value: 2}}},
			lir.Move{Dst: lir.Temp{Temp: result}, Src: lir.Temp{Temp: operand.Return(0)}},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: result}}},
		},
		Enter: mainEnter,
		Exit:  mainExit,
	}

	u := &lir.Unit{Functions: map[string]*lir.Function{"add": callee, "main": caller}}
	out := optimize.Inline(u, 40)

	mainOut := out.Functions["main"]
	for _, s := range mainOut.Stmts {
		_, isCall := s.(lir.Call)
		require.False(t, isCall, "call to add should have been inlined away")
	}
}

func TestEliminatePartialRedundancyHoistsRepeatedExpression(t *testing.T) {
	enter := operand.FixedLabel(symbol.Intern("f_enter"))
	exit := operand.FixedLabel(symbol.Intern("f_exit"))
	x := operand.Named(symbol.Intern("x"))
	y := operand.Named(symbol.Intern("y"))
	z := operand.Named(symbol.Intern("z"))

	fn := &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: enter},
			lir.Move{Dst: lir.Temp{Temp: y}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: x}, Right: lir.Integer{Value: 1}}},
			lir.Move{Dst: lir.Temp{Temp: z}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: x}, Right: lir.Integer{Value: 1}}},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: z}}},
		},
		Enter: enter,
		Exit:  exit,
	}

	u := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}
	out := optimize.EliminatePartialRedundancy(u)
	require.NotNil(t, out.Functions["f"])
}

// TestConstantFoldHIRIsIdempotent: fold(fold(X)) == fold(X).
func TestConstantFoldHIRIsIdempotent(t *testing.T) {
	x := operand.Named(symbol.Intern("x"))
	body := hir.Block{Stmts: []hir.Stmt{
		hir.Move{
			Dst: hir.Temp{Temp: x},
			Src: hir.Binary{
				Op:   hir.Mul,
				Left: hir.Binary{Op: hir.Add, Left: hir.Integer{Value: 2}, Right: hir.Integer{Value: 3}},
				Right: hir.Binary{Op: hir.Sub, Left: hir.Temp{Temp: x}, Right: hir.Integer{Value: 0}},
			},
		},
		hir.ReturnStmt{Values: []hir.Expr{hir.Temp{Temp: x}}},
	}}
	u := &hir.Unit{Functions: map[string]*hir.Function{
		"f": {Name: "f", Body: body, Returns: 1},
	}}

	once := optimize.ConstantFoldHIR(u)
	twice := optimize.ConstantFoldHIR(once)
	require.Equal(t, once.Functions["f"].Body, twice.Functions["f"].Body)
}

// sumUnit builds main() = sum(10) over a loop summing 1..n: the call is
// small enough to inline, and the result must be 55 whether or not it
// was.
func sumUnit() *lir.Unit {
	n := operand.Named(symbol.Intern("n"))
	i := operand.Named(symbol.Intern("i"))
	acc := operand.Named(symbol.Intern("acc"))
	sumEnter := operand.FixedLabel(symbol.Intern("sum_enter"))
	sumExit := operand.FixedLabel(symbol.Intern("sum_exit"))
	loop := operand.FixedLabel(symbol.Intern("sum_loop"))
	done := operand.FixedLabel(symbol.Intern("sum_done"))

	sum := &lir.Function{
		Name: "sum",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: sumEnter},
			lir.Move{Dst: lir.Temp{Temp: n}, Src: lir.Temp{Temp: operand.Argument(0)}},
			lir.Move{Dst: lir.Temp{Temp: acc}, Src: lir.Integer{Value: 0}},
			lir.Move{Dst: lir.Temp{Temp: i}, Src: lir.Integer{Value: 1}},
			lir.LabelStmt{Label: loop},
			lir.CJump{Cond: lir.Binary{Op: hir.Gt, Left: lir.Temp{Temp: i}, Right: lir.Temp{Temp: n}}, True: done},
			lir.Move{Dst: lir.Temp{Temp: acc}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: acc}, Right: lir.Temp{Temp: i}}},
			lir.Move{Dst: lir.Temp{Temp: i}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: i}, Right: lir.Integer{Value: 1}}},
			lir.Jump{Target: loop},
			lir.LabelStmt{Label: done},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: acc}}},
		},
		Arguments: 1,
		Returns:   1,
		Enter:     sumEnter,
		Exit:      sumExit,
	}

	mainEnter := operand.FixedLabel(symbol.Intern("sum_main_enter"))
	mainExit := operand.FixedLabel(symbol.Intern("sum_main_exit"))
	r := operand.Named(symbol.Intern("r"))

	main := &lir.Function{
		Name: "main",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: mainEnter},
			lir.Call{Target: lir.LabelExpr{Label: sumEnter}, Args: []lir.Expr{lir.Integer{Value: 10}}, NReturns: 1},
			lir.Move{Dst: lir.Temp{Temp: r}, Src: lir.Temp{Temp: operand.Return(0)}},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: r}}},
		},
		Returns: 1,
		Enter:   mainEnter,
		Exit:    mainExit,
	}

	return &lir.Unit{Functions: map[string]*lir.Function{"sum": sum, "main": main}}
}

// TestInlinePreservesLoopSum: summing 1..10 yields 55 with and without
// inlining, and the inlined main no longer calls out.
func TestInlinePreservesLoopSum(t *testing.T) {
	u := sumUnit()
	require.Equal(t, []int64{55}, runLIR(t, u, "main", nil))

	inlined := optimize.Inline(sumUnit(), 40)
	for _, s := range inlined.Functions["main"].Stmts {
		_, isCall := s.(lir.Call)
		require.False(t, isCall)
	}
	require.Equal(t, []int64{55}, runLIR(t, inlined, "main", nil))
}

// preDiamondUnit computes a+b on one branch of a diamond and again at the
// join, the classic lazy-code-motion shape: the join's computation is
// partially redundant and must be hoisted onto both branch paths.
func preDiamondUnit() *lir.Unit {
	enter := operand.FixedLabel(symbol.Intern("pre_enter"))
	exit := operand.FixedLabel(symbol.Intern("pre_exit"))
	lt := operand.FixedLabel(symbol.Intern("pre_then"))
	lf := operand.FixedLabel(symbol.Intern("pre_else"))
	lj := operand.FixedLabel(symbol.Intern("pre_join"))
	x := operand.Named(symbol.Intern("x"))
	y := operand.Named(symbol.Intern("y"))

	fn := &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.LabelStmt{Label: enter},
			lir.CJump{Cond: lir.Temp{Temp: operand.Argument(2)}, True: lt},
			lir.Jump{Target: lf},
			lir.LabelStmt{Label: lt},
			lir.Move{Dst: lir.Temp{Temp: x}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: operand.Argument(0)}, Right: lir.Temp{Temp: operand.Argument(1)}}},
			lir.Jump{Target: lj},
			lir.LabelStmt{Label: lf},
			lir.Move{Dst: lir.Temp{Temp: x}, Src: lir.Integer{Value: 1}},
			lir.Jump{Target: lj},
			lir.LabelStmt{Label: lj},
			lir.Move{Dst: lir.Temp{Temp: y}, Src: lir.Binary{Op: hir.Add, Left: lir.Temp{Temp: operand.Argument(0)}, Right: lir.Temp{Temp: operand.Argument(1)}}},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: y}}},
		},
		Arguments: 3,
		Returns:   1,
		Enter:     enter,
		Exit:      exit,
	}

	return &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}
}

// TestEliminatePartialRedundancyDiamond: after lazy code motion the join
// block reads the hoisted temporary instead of recomputing a+b, every
// path to the join defines that temporary, and behavior is unchanged on
// both branch outcomes.
func TestEliminatePartialRedundancyDiamond(t *testing.T) {
	sum := lir.Binary{
		Op:    hir.Add,
		Left:  lir.Expr(lir.Temp{Temp: operand.Argument(0)}),
		Right: lir.Expr(lir.Temp{Temp: operand.Argument(1)}),
	}

	out := optimize.EliminatePartialRedundancy(preDiamondUnit())
	fn := out.Functions["f"]

	y := operand.Named(symbol.Intern("y"))
	var rawComputations int
	for _, s := range fn.Stmts {
		mv, ok := s.(lir.Move)
		if !ok {
			continue
		}
		if mv.Src == lir.Expr(sum) {
			rawComputations++
			// Raw recomputations survive only as hoisted definitions into
			// a fresh temporary, never as the join's own assignment.
			dst, isTemp := mv.Dst.(lir.Temp)
			require.True(t, isTemp)
			require.NotEqual(t, y, dst.Temp)
		}
		if dst, ok := mv.Dst.(lir.Temp); ok && dst.Temp == y {
			_, readsTemp := mv.Src.(lir.Temp)
			require.True(t, readsTemp, "join's redundant a+b should read the hoisted temporary")
		}
	}
	require.Equal(t, 2, rawComputations, "one hoisted definition per branch path")

	for _, c := range []int64{0, 1} {
		require.Equal(t,
			runLIR(t, preDiamondUnit(), "f", []int64{2, 3, c}),
			runLIR(t, out, "f", []int64{2, 3, c}))
	}
}
