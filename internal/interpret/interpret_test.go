package interpret_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/hir"
	"xic/internal/interpret"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/symbol"
)

// TestInterpretHIRHelloWorld: `main() { print("hello\n") }` prints
// "hello\n".
func TestInterpretHIRHelloWorld(t *testing.T) {
	var stdout bytes.Buffer
	unit := helloWorldHIRUnit()
	_, err := interpret.InterpretHIR(unit, "main", []int64{0}, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.NoError(t, err)
	require.Equal(t, "hello\n", stdout.String())
}

// helloWorldHIRUnit builds `main` so it first mallocs+fills a "hello\n"
// array on the heap via xi_alloc, then calls the print intrinsic with the
// resulting pointer, exercising the same array-with-length-header
// convention print's real runtime counterpart expects.
func helloWorldHIRUnit() *hir.Unit {
	msg := "hello\n"
	ptr := operand.Named(symbol.Intern("ptr"))
	allocLbl := operand.FixedLabel(symbol.Intern("xi_alloc"))
	printLbl := operand.FixedLabel(symbol.Intern("print"))

	stmts := []hir.Stmt{
		hir.Move{
			Dst: hir.Temp{Temp: ptr},
			Src: hir.Call{
				Target:  hir.LabelExpr{Label: allocLbl},
				Args:    []hir.Expr{hir.Integer{Value: int64(len(msg)+1) * 8}},
				NReturn: 1,
			},
		},
	}
	// Store the length header, then each character, then call print on
	// ptr+1 (the first character cell).
	stmts = append(stmts, hir.Move{
		Dst: hir.Mem{Addr: hir.Temp{Temp: ptr}},
		Src: hir.Integer{Value: int64(len(msg))},
	})
	for i, c := range msg {
		stmts = append(stmts, hir.Move{
			Dst: hir.Mem{Addr: hir.Binary{Op: hir.Add, Left: hir.Temp{Temp: ptr}, Right: hir.Integer{Value: int64(i + 1)}}},
			Src: hir.Integer{Value: int64(c)},
		})
	}
	stmts = append(stmts,
		hir.ExprStmt{Expr: hir.Call{
			Target:  hir.LabelExpr{Label: printLbl},
			Args:    []hir.Expr{hir.Binary{Op: hir.Add, Left: hir.Temp{Temp: ptr}, Right: hir.Integer{Value: 1}}},
			NReturn: 0,
		}},
		hir.ReturnStmt{Values: nil},
	)

	return &hir.Unit{Functions: map[string]*hir.Function{
		"main": {Name: "main", Body: hir.Block{Stmts: stmts}, Arguments: 1, Returns: 0},
	}}
}

// TestInterpretLIRFactorial: fact(5) returns 120.
func TestInterpretLIRFactorial(t *testing.T) {
	n := operand.Named(symbol.Intern("n"))
	acc := operand.Named(symbol.Intern("acc"))
	loop := operand.FreshLabel()
	done := operand.FreshLabel()

	fn := &lir.Function{
		Name: "fact",
		Stmts: []lir.Stmt{
			lir.Move{Dst: lir.Temp{Temp: acc}, Src: lir.Integer{Value: 1}},
			lir.Move{Dst: lir.Temp{Temp: n}, Src: lir.Temp{Temp: operand.Argument(0)}},
			lir.LabelStmt{Label: loop},
			lir.CJump{Cond: lir.Binary{Op: hir.Le, Left: lir.Temp{Temp: n}, Right: lir.Integer{Value: 1}}, True: done},
			lir.Move{Dst: lir.Temp{Temp: acc}, Src: lir.Binary{Op: hir.Mul, Left: lir.Temp{Temp: acc}, Right: lir.Temp{Temp: n}}},
			lir.Move{Dst: lir.Temp{Temp: n}, Src: lir.Binary{Op: hir.Sub, Left: lir.Temp{Temp: n}, Right: lir.Integer{Value: 1}}},
			lir.Jump{Target: loop},
			lir.LabelStmt{Label: done},
			lir.Return{Values: []lir.Expr{lir.Temp{Temp: acc}}},
		},
		Arguments: 1,
		Returns:   1,
	}

	unit := &lir.Unit{Functions: map[string]*lir.Function{"fact": fn}}

	var stdout bytes.Buffer
	rets, err := interpret.InterpretLIR(unit, "fact", []int64{5}, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.NoError(t, err)
	require.Equal(t, []int64{120}, rets)
}

// TestInterpretLIRDivideByZero: a division whose divisor is zero at
// runtime aborts interpretation.
func TestInterpretLIRDivideByZero(t *testing.T) {
	fn := &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.Return{Values: []lir.Expr{
				lir.Binary{Op: hir.Div, Left: lir.Integer{Value: 1}, Right: lir.Integer{Value: 0}},
			}},
		},
		Returns: 1,
	}
	unit := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}

	var stdout bytes.Buffer
	_, err := interpret.InterpretLIR(unit, "f", nil, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.Error(t, err)
}

// TestHeapOffByOneReadAllowed: the bound check is `>`, not `>=`,
// against the heap's current length, so a read exactly at the current
// length succeeds rather than failing.
func TestHeapOffByOneReadAllowed(t *testing.T) {
	h := interpret.NewHeap(16)
	ptr, err := h.Malloc(8)
	require.NoError(t, err)
	require.NoError(t, h.Store(ptr, 42))

	// One past the single word allocated is still "<= len", so Read
	// succeeds (returning the interpreter's zero-fill) instead of
	// raising InvalidRead.
	v, err := h.Read(ptr + 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	_, err = h.Read(ptr + 2)
	require.Error(t, err)
}

func TestHeapMallocRejectsMisalignedSize(t *testing.T) {
	h := interpret.NewHeap(16)
	_, err := h.Malloc(3)
	require.Error(t, err)
}

func TestHeapOutOfMemory(t *testing.T) {
	h := interpret.NewHeap(1)
	_, err := h.Malloc(16)
	require.Error(t, err)
}

// TestHighMul checks the high 64 bits of a signed 128-bit product,
// using operands whose product crosses a full 64-bit word so the low
// half alone could not be mistaken as correct.
func TestHighMul(t *testing.T) {
	fn := &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.Return{Values: []lir.Expr{
				lir.Binary{Op: hir.HighMul, Left: lir.Integer{Value: 1 << 32}, Right: lir.Integer{Value: 1 << 32}},
			}},
		},
		Returns: 1,
	}
	unit := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}

	var stdout bytes.Buffer
	rets, err := interpret.InterpretLIR(unit, "f", nil, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, rets)
}

func TestUnboundTemporaryErrors(t *testing.T) {
	fn := &lir.Function{
		Name:    "f",
		Stmts:   []lir.Stmt{lir.Return{Values: []lir.Expr{lir.Temp{Temp: operand.Named(symbol.Intern("ghost"))}}}},
		Returns: 1,
	}
	unit := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}
	var stdout bytes.Buffer
	_, err := interpret.InterpretLIR(unit, "f", nil, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.Error(t, err)
}

// TestOutOfBoundsIntrinsicAborts: a program whose bounds check fails
// transfers to the out-of-bounds intrinsic, which aborts interpretation.
func TestOutOfBoundsIntrinsicAborts(t *testing.T) {
	fn := &lir.Function{
		Name: "f",
		Stmts: []lir.Stmt{
			lir.Call{Target: lir.LabelExpr{Label: operand.FixedLabel(symbol.Intern("_xi_out_of_bounds"))}},
			lir.Return{},
		},
	}
	unit := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}

	var stdout bytes.Buffer
	_, err := interpret.InterpretLIR(unit, "f", nil, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.Error(t, err)
}

func TestCallArityMismatchErrors(t *testing.T) {
	fn := &lir.Function{
		Name:      "f",
		Stmts:     []lir.Stmt{lir.Return{Values: []lir.Expr{lir.Integer{Value: 1}}}},
		Arguments: 2,
		Returns:   1,
	}
	unit := &lir.Unit{Functions: map[string]*lir.Function{"f": fn}}

	var stdout bytes.Buffer
	_, err := interpret.InterpretLIR(unit, "f", []int64{1}, strings.NewReader(""), &stdout, interpret.DefaultHeapWords)
	require.Error(t, err)
}
