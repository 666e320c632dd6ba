package regalloc

import (
	"xic/internal/asm"
	"xic/internal/operand"
)

// AllocateTrivial spills every distinct temporary fn mentions to its own
// stack slot, with no register ever holding a value across an
// instruction boundary. AllocateLinear does not call it; it uses the
// same slot assignment and materialization for whatever it cannot keep
// in a register.
func AllocateTrivial(fn *asm.Function) *asm.Function {
	alloc := newAllocation()
	forEachTemp(fn, func(t operand.Temporary) {
		if t.Kind != operand.TempRegister {
			alloc.assignSlot(t)
		}
	})
	return materialize(fn, alloc)
}

// forEachTemp visits every temporary fn's instructions reference, via
// Defs/Uses and the generic Dst/Src-as-TempOp/MemOp fallback the rest of
// the backend already relies on.
func forEachTemp(fn *asm.Function, visit func(operand.Temporary)) {
	visitOp := func(op asm.Op) {
		switch op := op.(type) {
		case asm.TempOp:
			visit(op.Temp)
		case asm.MemOp:
			if op.Mem.HasBase {
				visit(*op.Mem.Base)
			}
			if op.Mem.HasIndex {
				visit(*op.Mem.Index)
			}
		}
	}
	for _, ins := range fn.Instrs {
		i, ok := ins.(asm.Instr)
		if !ok {
			continue
		}
		for _, d := range i.Defs {
			visit(d)
		}
		for _, u := range i.Uses {
			visit(u)
		}
		visitOp(i.Dst)
		visitOp(i.Src)
	}
	for i := 0; i < fn.Arguments; i++ {
		visit(operand.Argument(i))
	}
	for i := 0; i < fn.Returns; i++ {
		visit(operand.Return(i))
	}
}
