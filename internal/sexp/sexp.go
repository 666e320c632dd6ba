// Package sexp is the small pretty-printing library the core depends on
// for diagnostic dumps of HIR/LIR: indent tracking plus a string
// builder, generic over any tree that can describe itself as a nested
// list of atoms rather than switching on a fixed set of instruction
// types.
package sexp

import (
	"strings"
)

// Node is anything that can render itself as an S-expression. HIR and
// LIR expressions/statements implement this for diagnostic dumps.
type Node interface {
	Sexp() Expr
}

// Expr is a parsed/constructed S-expression: either an Atom or a List of
// sub-expressions tagged with a head symbol.
type Expr struct {
	Atom     string
	List     []Expr
	IsAtom   bool
}

// A constructs a leaf atom.
func A(s string) Expr { return Expr{Atom: s, IsAtom: true} }

// L constructs a list headed by tag with the given sub-expressions, e.g.
// L("MOVE", dst, src) prints as "(MOVE dst src)".
func L(tag string, children ...Expr) Expr {
	return Expr{List: append([]Expr{A(tag)}, children...)}
}

// Width is the column at which Format wraps a list onto multiple lines.
const Width = 80

// Format renders e as an indented, 80-column-wrapped S-expression.
func Format(e Expr) string {
	var b strings.Builder
	write(&b, e, 0)
	return b.String()
}

func write(b *strings.Builder, e Expr, indent int) {
	if e.IsAtom {
		b.WriteString(e.Atom)
		return
	}

	flat := flatten(e)
	if len(flat)+indent <= Width {
		b.WriteString(flat)
		return
	}

	b.WriteString("(")
	for i, c := range e.List {
		if i > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Repeat(" ", indent+1))
		}
		write(b, c, indent+1)
	}
	b.WriteString(")")
}

func flatten(e Expr) string {
	if e.IsAtom {
		return e.Atom
	}
	parts := make([]string, len(e.List))
	for i, c := range e.List {
		parts[i] = flatten(c)
	}
	return "(" + strings.Join(parts, " ") + ")"
}
