package asm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xic/internal/asm"
	"xic/internal/operand"
	"xic/internal/symbol"
)

func TestEmitUnitSectionsAndBody(t *testing.T) {
	enter := operand.FixedLabel(symbol.Intern("emit_enter"))
	exit := operand.FixedLabel(symbol.Intern("emit_exit"))
	strLbl := operand.FixedLabel(symbol.Intern("str0"))

	fn := &asm.Function{
		Name: "main",
		Instrs: []asm.AnyInstr{
			asm.LabelInstr{Label: enter},
			asm.Instr{Op: asm.Mov,
				Dst: asm.TempOp{Temp: operand.FromRegister(operand.RAX)},
				Src: asm.ImmOp{Imm: operand.IntImmediate(7)}},
			asm.Instr{Op: asm.Ret},
		},
		Enter: enter,
		Exit:  exit,
	}
	u := &asm.Unit{
		Functions: map[string]*asm.Function{"main": fn},
		Data:      map[operand.Label]string{strLbl: "hi"},
	}

	out := asm.EmitUnit(u)

	require.Contains(t, out, ".text\n")
	require.Contains(t, out, ".globl main\nmain:\n")
	require.Contains(t, out, "\tmov rax, 7\n")
	require.Contains(t, out, ".data\n")
	// "hi" is a length word followed by one word per character.
	require.Contains(t, out, "str0:\n\t.quad 2\n\t.quad 104\n\t.quad 105\n")
	require.True(t, strings.HasSuffix(out, ".bss\n"))
}
