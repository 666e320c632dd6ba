package sexp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/sexp"
)

func TestFormatFlattensShortExpressions(t *testing.T) {
	e := sexp.L("MOVE", sexp.L("TEMP", sexp.A("x")), sexp.A("3"))
	require.Equal(t, "(MOVE (TEMP x) 3)", sexp.Format(e))
}

func TestFormatWrapsAtEightyColumns(t *testing.T) {
	var children []sexp.Expr
	for i := 0; i < 20; i++ {
		children = append(children, sexp.A("argument_that_is_fairly_long"))
	}
	e := sexp.L("CALL", children...)

	out := sexp.Format(e)
	require.Greater(t, len(out), sexp.Width) // the flat form would overflow, so it must wrap
	require.Contains(t, out, "\n")
	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, len(strings.TrimLeft(line, " ")), sexp.Width)
	}
}

func TestFormatAtomIsUnquoted(t *testing.T) {
	require.Equal(t, "hello", sexp.Format(sexp.A("hello")))
}
