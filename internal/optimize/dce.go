package optimize

import (
	"xic/internal/acfg"
	"xic/internal/analysis"
	"xic/internal/asm"
	"xic/internal/dataflow"
	"xic/internal/operand"
)

// hasOtherSideEffect reports whether instr's effect extends beyond
// defining temporaries: a memory write, a call, a control transfer, or
// one of the implicit-effect instructions that must never be deleted
// even if its nominal result is unused.
func hasOtherSideEffect(ins asm.AnyInstr) bool {
	i, ok := ins.(asm.Instr)
	if !ok {
		return true // labels are never dead-code-eliminated
	}
	if _, isMem := i.Dst.(asm.MemOp); isMem {
		return true
	}
	switch i.Op {
	case asm.Call, asm.Jmp, asm.Je, asm.Jne, asm.Jl, asm.Jle, asm.Jg, asm.Jge, asm.Ret,
		asm.Cqo, asm.Idiv, asm.Imod, asm.Ihul, asm.Cmp, asm.Test, asm.Push, asm.Pop:
		return true
	default:
		return false
	}
}

// EliminateDeadCode removes, to a fixed point, every instruction whose
// sole effect is defining temporaries none of which are live after it
// and which has no other side effect.
func EliminateDeadCode(fn *asm.Function) *asm.Function {
	g := acfg.Construct(fn)

	for {
		live := analysis.LiveVariables(g)
		changed := false

		for _, b := range g.Blocks {
			out := make([]asm.AnyInstr, 0, len(b.Instrs))
			blockIdx := indexOfBlock(g, b)
			liveOut := live.Out[blockIdx]

			for i := len(b.Instrs) - 1; i >= 0; i-- {
				ins := b.Instrs[i]
				if isDeadDef(ins, liveOut) {
					changed = true
					continue
				}
				out = append([]asm.AnyInstr{ins}, out...)
				liveOut = analysis.TransferLiveInstr(ins, liveOut)
			}
			b.Instrs = out
		}

		if !changed {
			break
		}
	}

	return acfg.Destruct(g, fn)
}

func indexOfBlock(g *acfg.Graph, target *acfg.Block) int {
	for i, b := range g.Blocks {
		if b == target {
			return i
		}
	}
	return -1
}

func isDeadDef(ins asm.AnyInstr, liveOut dataflow.Set[operand.Temporary]) bool {
	i, ok := ins.(asm.Instr)
	if !ok || hasOtherSideEffect(ins) {
		return false
	}
	if len(i.Defs) == 0 {
		return false
	}
	for _, d := range i.Defs {
		if _, live := liveOut[d]; live {
			return false
		}
	}
	return true
}
