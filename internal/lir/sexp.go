package lir

import (
	"fmt"

	"xic/internal/sexp"
)

func (e Integer) Sexp() sexp.Expr   { return sexp.A(fmt.Sprintf("%d", e.Value)) }
func (e LabelExpr) Sexp() sexp.Expr { return sexp.L("NAME", sexp.A(e.Label.String())) }
func (e Temp) Sexp() sexp.Expr      { return sexp.L("TEMP", sexp.A(e.Temp.String())) }
func (e Mem) Sexp() sexp.Expr       { return sexp.L("MEM", e.Addr.Sexp()) }
func (e Binary) Sexp() sexp.Expr {
	return sexp.L(e.Op.String(), e.Left.Sexp(), e.Right.Sexp())
}

func (s LabelStmt) Sexp() sexp.Expr { return sexp.L("LABEL", sexp.A(s.Label.String())) }
func (s Jump) Sexp() sexp.Expr      { return sexp.L("JUMP", sexp.A(s.Target.String())) }
func (s CJump) Sexp() sexp.Expr {
	return sexp.L("CJUMP", s.Cond.Sexp(), sexp.A(s.True.String()))
}
func (s Move) Sexp() sexp.Expr { return sexp.L("MOVE", s.Dst.Sexp(), s.Src.Sexp()) }
func (s Call) Sexp() sexp.Expr {
	children := []sexp.Expr{s.Target.Sexp()}
	for _, a := range s.Args {
		children = append(children, a.Sexp())
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("CALL")}, children...)}
}
func (s Return) Sexp() sexp.Expr {
	children := make([]sexp.Expr, len(s.Values))
	for i, v := range s.Values {
		children[i] = v.Sexp()
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("RETURN")}, children...)}
}

// Sexp renders the whole function as one S-expression, for the `.lir`
// diagnostic dump.
func (f *Function) Sexp() sexp.Expr {
	children := make([]sexp.Expr, len(f.Stmts))
	for i, st := range f.Stmts {
		children[i] = st.Sexp()
	}
	return sexp.Expr{List: append([]sexp.Expr{sexp.A("FUNC"), sexp.A(f.Name)}, children...)}
}
