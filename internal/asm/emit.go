package asm

import (
	"fmt"
	"sort"
	"strings"

	"xic/internal/operand"
)

// EmitUnit renders u as Intel-syntax abstract assembly: a .text section
// holding every function, a .data section
// holding the string literals laid out as a length word followed by one
// word per character (the runtime's array convention), and an empty .bss
// section. Functions and data labels are emitted in sorted order so the
// output is deterministic across runs.
func EmitUnit(u *Unit) string {
	var b strings.Builder
	b.WriteString(".intel_syntax noprefix\n")
	b.WriteString(".text\n")

	names := make([]string, 0, len(u.Functions))
	for name := range u.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(&b, ".globl %s\n%s:\n", name, name)
		for _, ins := range u.Functions[name].Instrs {
			switch i := ins.(type) {
			case LabelInstr:
				fmt.Fprintf(&b, "%s\n", i)
			case Instr:
				fmt.Fprintf(&b, "\t%s\n", i)
			}
		}
	}

	if len(u.Data) > 0 {
		b.WriteString(".data\n")
		labels := make([]operand.Label, 0, len(u.Data))
		for l := range u.Data {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i].String() < labels[j].String() })

		for _, l := range labels {
			runes := []rune(u.Data[l])
			fmt.Fprintf(&b, "%s:\n\t.quad %d\n", l, len(runes))
			for _, r := range runes {
				fmt.Fprintf(&b, "\t.quad %d\n", r)
			}
		}
	}

	b.WriteString(".bss\n")
	return b.String()
}
