// Package fixture provides a small built-in demonstration program
// (iterative factorial) for cmd/xic to drive each pipeline stage
// against, standing in for the lexer/parser/checker front end that is
// out of this repo's scope.
package fixture

import (
	"xic/internal/canon"
	"xic/internal/hir"
	"xic/internal/lir"
	"xic/internal/operand"
	"xic/internal/symbol"
)

// Factorial returns a one-function HIR unit computing n! iteratively:
//
//	fact(n) {
//	  acc = 1
//	  while (n > 1) { acc = acc * n; n = n - 1 }
//	  return acc
//	}
func Factorial() *hir.Unit {
	n := operand.Argument(0)
	acc := operand.Named(symbol.Intern("acc"))
	loop := operand.FixedLabel(symbol.Intern("fact_loop"))
	body := operand.FixedLabel(symbol.Intern("fact_body"))
	done := operand.FixedLabel(symbol.Intern("fact_done"))

	fn := &hir.Function{
		Name: "fact",
		Body: hir.Block{Stmts: []hir.Stmt{
			hir.Move{Dst: hir.Temp{Temp: acc}, Src: hir.Integer{Value: 1}},
			hir.LabelStmt{Label: loop},
			hir.CJump{
				Cond:     hir.Binary{Op: hir.Gt, Left: hir.Temp{Temp: n}, Right: hir.Integer{Value: 1}},
				TrueLbl:  body,
				FalseLbl: done,
			},
			hir.LabelStmt{Label: body},
			hir.Move{Dst: hir.Temp{Temp: acc}, Src: hir.Binary{Op: hir.Mul, Left: hir.Temp{Temp: acc}, Right: hir.Temp{Temp: n}}},
			hir.Move{Dst: hir.Temp{Temp: n}, Src: hir.Binary{Op: hir.Sub, Left: hir.Temp{Temp: n}, Right: hir.Integer{Value: 1}}},
			hir.Jump{Target: hir.LabelExpr{Label: loop}},
			hir.LabelStmt{Label: done},
			hir.ReturnStmt{Values: []hir.Expr{hir.Temp{Temp: acc}}},
		}},
		Arguments: 1,
		Returns:   1,
		Enter:     operand.FixedLabel(symbol.Intern("fact_enter")),
		Exit:      operand.FixedLabel(symbol.Intern("fact_exit")),
	}

	return &hir.Unit{Functions: map[string]*hir.Function{"fact": fn}, Data: map[operand.Label]string{}}
}

// CanonFactorial is Factorial canonized to LIR, the shape every other
// pipeline stage (tile, cfg, optimize, regalloc) expects as input.
func CanonFactorial() *lir.Unit {
	return canon.Unit(Factorial())
}
