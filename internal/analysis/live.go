// Package analysis implements the concrete dataflow analyses: live
// variables, available/anticipated/postponable/used expressions (and
// their derived earliest/latest sets for lazy code motion), and
// constant/copy propagation.
package analysis

import (
	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/dataflow"
	"xic/internal/operand"
)

// LiveVariables computes, for every assembly block, the set of
// temporaries live on entry/exit: backward, union meet, transfer
// use(i) ∪ (out ∖ def(i)) applied instruction-by-instruction within the
// block.
func LiveVariables(g *acfg.Graph) *dataflow.Result[operand.Temporary] {
	a := dataflow.Analysis[operand.Temporary]{
		Direction:       dataflow.Backward,
		Meet:            dataflow.Union[operand.Temporary],
		InitialEntry:    dataflow.NewSet[operand.Temporary](),
		InitialBoundary: dataflow.NewSet[operand.Temporary](),
		Transfer: func(blockIdx int, out dataflow.Set[operand.Temporary]) dataflow.Set[operand.Temporary] {
			return transferLiveBlock(g.Blocks[blockIdx], out)
		},
	}
	return dataflow.Run(g, a)
}

func transferLiveBlock(b *acfg.Block, out dataflow.Set[operand.Temporary]) dataflow.Set[operand.Temporary] {
	in := out.Clone()
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		in = TransferLiveInstr(b.Instrs[i], in)
	}
	return in
}

// TransferLiveInstr applies use(i) ∪ (out ∖ def(i)) for a single
// instruction, enabling per-instruction reconstruction inside a block.
// Exported so passes that thread liveness backward
// instruction-by-instruction outside this package
// (dead code elimination) share this definition instead of a
// hand-rolled copy that can drift out of sync with it.
func TransferLiveInstr(ins asm.AnyInstr, out dataflow.Set[operand.Temporary]) dataflow.Set[operand.Temporary] {
	in, ok := ins.(asm.Instr)
	if !ok {
		return out.Clone()
	}
	live := dataflow.Difference(out, dataflow.NewSet(in.Defs...))
	for _, u := range in.Uses {
		live[u] = struct{}{}
	}
	addOperandReads(live, in.Src)
	if dstIsRead(in.Op) {
		addOperandReads(live, in.Dst)
	} else if mem, ok := in.Dst.(asm.MemOp); ok {
		for _, t := range memOperands(mem.Mem) {
			live[t] = struct{}{}
		}
	}
	return live
}

// dstIsRead reports whether op's Dst operand is read rather than purely
// written: the read-modify-write arithmetic forms, the multiply/divide
// family (whose Dst slot holds the second operand being consumed; the
// actual result lands in Defs via RAX/RDX), neg, push (which reads the
// value it stores), and the two comparison ops that define nothing at
// all. A plain Mov's Dst is written-only and must
// not keep a dead destination artificially live.
func dstIsRead(op asm.Mnemonic) bool {
	switch op {
	case asm.Add, asm.Sub, asm.And, asm.Or, asm.Xor, asm.Shl, asm.Shr, asm.Sar, asm.Neg,
		asm.Imul, asm.Ihul, asm.Idiv, asm.Imod, asm.Cmp, asm.Test, asm.Push:
		return true
	default:
		return false
	}
}

// addOperandReads adds the temporaries op reads to live: the temporary
// itself, or a memory operand's base/index (always read to form an
// address, even when the memory cell it addresses is write-only).
func addOperandReads(live dataflow.Set[operand.Temporary], op asm.Op) {
	switch o := op.(type) {
	case asm.TempOp:
		live[o.Temp] = struct{}{}
	case asm.MemOp:
		for _, t := range memOperands(o.Mem) {
			live[t] = struct{}{}
		}
	}
}

func memOperands(m operand.Memory) []operand.Temporary {
	var out []operand.Temporary
	if m.HasBase {
		out = append(out, *m.Base)
	}
	if m.HasIndex {
		out = append(out, *m.Index)
	}
	return out
}

// LiveAt reconstructs the live-out set immediately after instruction
// index idx within block b, by replaying the backward transfer from the
// block's OUT fact.
func LiveAt(b *acfg.Block, blockOut dataflow.Set[operand.Temporary], idx int) dataflow.Set[operand.Temporary] {
	live := blockOut.Clone()
	for i := len(b.Instrs) - 1; i > idx; i-- {
		live = TransferLiveInstr(b.Instrs[i], live)
	}
	return live
}
