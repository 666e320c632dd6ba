package hir

import (
	"fmt"

	"xic/internal/sexp"
)

var binOpNames = map[BinOp]string{
	Add: "ADD", Sub: "SUB", Mul: "MUL", HighMul: "HMUL", Div: "DIV", Mod: "MOD",
	And: "AND", Or: "OR", Xor: "XOR", Shl: "SHL", Shr: "SHR", Sar: "SAR",
	Eq: "EQ", Ne: "NEQ", Lt: "LT", Le: "LEQ", Ge: "GEQ", Gt: "GT",
}

func (b BinOp) String() string { return binOpNames[b] }

func (e Integer) Sexp() sexp.Expr   { return sexp.A(fmt.Sprintf("%d", e.Value)) }
func (e LabelExpr) Sexp() sexp.Expr { return sexp.L("NAME", sexp.A(e.Label.String())) }
func (e Temp) Sexp() sexp.Expr      { return sexp.L("TEMP", sexp.A(e.Temp.String())) }
func (e Mem) Sexp() sexp.Expr       { return sexp.L("MEM", e.Addr.Sexp()) }
func (e Binary) Sexp() sexp.Expr {
	return sexp.L(e.Op.String(), e.Left.Sexp(), e.Right.Sexp())
}
func (e Call) Sexp() sexp.Expr {
	children := []sexp.Expr{e.Target.Sexp()}
	for _, a := range e.Args {
		children = append(children, a.Sexp())
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("CALL")}, children...)}
}
func (e Sequence) Sexp() sexp.Expr { return sexp.L("ESEQ", e.Stmt.Sexp(), e.Expr.Sexp()) }

func (s ExprStmt) Sexp() sexp.Expr  { return sexp.L("EXP", s.Expr.Sexp()) }
func (s Move) Sexp() sexp.Expr      { return sexp.L("MOVE", s.Dst.Sexp(), s.Src.Sexp()) }
func (s Jump) Sexp() sexp.Expr      { return sexp.L("JUMP", s.Target.Sexp()) }
func (s CJump) Sexp() sexp.Expr {
	return sexp.L("CJUMP", s.Cond.Sexp(), sexp.A(s.TrueLbl.String()), sexp.A(s.FalseLbl.String()))
}
func (s LabelStmt) Sexp() sexp.Expr { return sexp.L("LABEL", sexp.A(s.Label.String())) }
func (s ReturnStmt) Sexp() sexp.Expr {
	children := make([]sexp.Expr, len(s.Values))
	for i, v := range s.Values {
		children[i] = v.Sexp()
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("RETURN")}, children...)}
}
func (s Block) Sexp() sexp.Expr {
	children := make([]sexp.Expr, len(s.Stmts))
	for i, v := range s.Stmts {
		children[i] = v.Sexp()
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("SEQ")}, children...)}
}

// Sexp renders the whole function as one S-expression, for the `.hir`
// diagnostic dump.
func (f *Function) Sexp() sexp.Expr {
	return sexp.L("FUNC", sexp.A(f.Name), f.Body.Sexp())
}
