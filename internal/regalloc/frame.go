// Package regalloc places every virtual temporary of an abstract-assembly
// function into an architectural register or a stack slot, and
// synthesizes the System V AMD64 prologue/epilogue around the result.
// It offers two strategies sharing this file's frame machinery:
// AllocateTrivial (spill everything) and AllocateLinear
// (live-range-driven linear scan, falling back to the trivial mechanism
// for whatever it spills).
package regalloc

import (
	"xic/internal/asm"
	"xic/internal/operand"
)

// scratchRegisters addresses spill slots and never holds a value across
// more than one instruction; they are excluded from the linear-scan
// allocatable pool so a spilled load/store can never collide with a
// register some other live range was assigned. R12 is callee-saved, so
// the prologue/epilogue save and restore it unconditionally rather than
// tracking whether a given function happened to need it.
var scratchRegisters = []operand.Register{operand.R10, operand.R11, operand.R12}

// location is where a single temporary ends up after allocation.
type location struct {
	reg   operand.Register
	slot  int
	inReg bool
}

// allocation records the final placement of every temporary a function
// mentions, minting a fresh stack slot for the first request.
type allocation struct {
	locs  map[operand.Temporary]location
	slots int
}

func newAllocation() *allocation {
	return &allocation{locs: map[operand.Temporary]location{}}
}

func (a *allocation) assignRegister(t operand.Temporary, r operand.Register) {
	a.locs[t] = location{reg: r, inReg: true}
}

func (a *allocation) assignSlot(t operand.Temporary) {
	if _, ok := a.locs[t]; ok {
		return
	}
	a.locs[t] = location{slot: a.slots, inReg: false}
	a.slots++
}

// locationOf resolves t, minting a fresh spill slot for a temporary the
// allocator never saw in a live range (e.g. an argument the callee never
// reads).
func (a *allocation) locationOf(t operand.Temporary) location {
	if t.Kind == operand.TempRegister {
		return location{reg: t.Register, inReg: true}
	}
	if loc, ok := a.locs[t]; ok {
		return loc
	}
	a.assignSlot(t)
	return a.locs[t]
}

// slotMem is the effective address of stack slot idx: 8 bytes apiece,
// growing down from the frame pointer.
func slotMem(idx int) operand.Memory {
	rbp := operand.FromRegister(operand.RBP)
	return operand.Memory{HasBase: true, Base: &rbp, HasDisp: true, Disp: -8 * int64(idx+1)}
}

// incomingArgMem is where the i'th argument (i beyond the six ABI
// registers) sits on entry: [rbp] is the saved frame pointer, [rbp+8] the
// return address, [rbp+16] the first register-overflow argument, pushed
// by the caller in reverse so indices increase with displacement.
func incomingArgMem(i int) operand.Memory {
	rbp := operand.FromRegister(operand.RBP)
	offset := i - len(operand.ArgumentRegisters)
	return operand.Memory{HasBase: true, Base: &rbp, HasDisp: true, Disp: 16 + 8*int64(offset)}
}

// frameSize pads the slot area so rsp stays 16-byte aligned at call
// boundaries: the pushed return address and saved rbp cancel out, and the
// unconditional r12 save adds 8, so the slot area must come to 8 mod 16.
func frameSize(slots int) int64 {
	size := int64(8 * slots)
	if size%16 == 0 {
		size += 8
	}
	return size
}

func operandFor(loc location) asm.Op {
	if loc.inReg {
		return asm.TempOp{Temp: operand.FromRegister(loc.reg)}
	}
	return asm.MemOp{Mem: slotMem(loc.slot)}
}

// storeTo emits dst := src, routing through a scratch register when both
// sides would otherwise be memory operands.
func storeTo(dst, src asm.Op) []asm.AnyInstr {
	_, dstMem := dst.(asm.MemOp)
	_, srcMem := src.(asm.MemOp)
	if dstMem && srcMem {
		scratch := asm.TempOp{Temp: operand.FromRegister(scratchRegisters[0])}
		return []asm.AnyInstr{
			asm.Instr{Op: asm.Mov, Dst: scratch, Src: src},
			asm.Instr{Op: asm.Mov, Dst: dst, Src: scratch},
		}
	}
	return []asm.AnyInstr{asm.Instr{Op: asm.Mov, Dst: dst, Src: src}}
}

// materialize rewrites fn so every operand names either an architectural
// register or a frame-relative memory reference, and wraps the body with
// the prologue that binds incoming arguments and the per-return-site
// epilogue that delivers results through rax/rdx.
func materialize(fn *asm.Function, alloc *allocation) *asm.Function {
	// The tiled body does not carry the enter label itself, so the frame
	// setup goes in front of everything unconditionally.
	out := []asm.AnyInstr{asm.LabelInstr{Label: fn.Enter}}
	out = append(out, prologue(fn, alloc)...)

	for _, ins := range fn.Instrs {
		if l, ok := ins.(asm.LabelInstr); ok {
			if l.Label != fn.Enter {
				out = append(out, l)
			}
			continue
		}
		i := ins.(asm.Instr)
		if i.Op == asm.Ret {
			out = append(out, epilogue(alloc, i)...)
			continue
		}
		out = append(out, rewriteInstr(i, alloc)...)
	}

	return &asm.Function{
		Name:      fn.Name,
		Instrs:    out,
		Arguments: fn.Arguments,
		Returns:   fn.Returns,
		Enter:     fn.Enter,
		Exit:      fn.Exit,
	}
}

func prologue(fn *asm.Function, alloc *allocation) []asm.AnyInstr {
	rbp := operand.FromRegister(operand.RBP)
	rsp := operand.FromRegister(operand.RSP)
	r12 := operand.FromRegister(operand.R12)

	instrs := []asm.AnyInstr{
		asm.Instr{Op: asm.Push, Dst: asm.TempOp{Temp: rbp}},
		asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: rbp}, Src: asm.TempOp{Temp: rsp}, Defs: []operand.Temporary{rbp}},
	}
	if size := frameSize(alloc.slots); size > 0 {
		instrs = append(instrs, asm.Instr{
			Op: asm.Sub, Dst: asm.TempOp{Temp: rsp}, Src: asm.ImmOp{Imm: operand.IntImmediate(size)},
			Defs: []operand.Temporary{rsp},
		})
	}
	instrs = append(instrs, asm.Instr{Op: asm.Push, Dst: asm.TempOp{Temp: r12}})

	for i := 0; i < fn.Arguments; i++ {
		dst := operandFor(alloc.locationOf(operand.Argument(i)))
		var src asm.Op
		if i < len(operand.ArgumentRegisters) {
			src = asm.TempOp{Temp: operand.FromRegister(operand.ArgumentRegisters[i])}
		} else {
			src = asm.MemOp{Mem: incomingArgMem(i)}
		}
		instrs = append(instrs, storeTo(dst, src)...)
	}
	return instrs
}

// epilogue replaces one lowered Return site: result values move into
// rax/rdx (a third or later return value has no slot in this target and
// is dropped; multi-value returns beyond two are not exercised by this
// backend), the frame unwinds, and control returns to the caller.
func epilogue(alloc *allocation, ret asm.Instr) []asm.AnyInstr {
	var instrs []asm.AnyInstr
	for i := 0; i < ret.NRets && i < len(operand.ReturnRegisters); i++ {
		reg := operand.FromRegister(operand.ReturnRegisters[i])
		src := operandFor(alloc.locationOf(operand.Return(i)))
		instrs = append(instrs, asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: reg}, Src: src, Defs: []operand.Temporary{reg}})
	}

	rbp := operand.FromRegister(operand.RBP)
	rsp := operand.FromRegister(operand.RSP)
	r12 := operand.FromRegister(operand.R12)
	instrs = append(instrs,
		asm.Instr{Op: asm.Pop, Dst: asm.TempOp{Temp: r12}, Defs: []operand.Temporary{r12}},
		asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: rsp}, Src: asm.TempOp{Temp: rbp}, Defs: []operand.Temporary{rsp}},
		asm.Instr{Op: asm.Pop, Dst: asm.TempOp{Temp: rbp}, Defs: []operand.Temporary{rbp}},
		asm.Instr{Op: asm.Ret, NRets: ret.NRets},
	)
	return instrs
}

// rewriteInstr lowers every temporary i mentions to its final register or
// memory operand, loading a spilled use into a scratch register before
// and storing a spilled definition back after. The same mechanism serves
// every spilled operand regardless of whether the allocator is the
// trivial or the linear-scan strategy.
func rewriteInstr(i asm.Instr, alloc *allocation) []asm.AnyInstr {
	var pre, post []asm.AnyInstr
	next := 0
	nextScratch := func() operand.Register {
		r := scratchRegisters[next%len(scratchRegisters)]
		next++
		return r
	}

	rewriteMem := func(m operand.Memory) operand.Memory {
		out := m
		if m.HasBase {
			out.Base = rewritePointer(*m.Base, alloc, &pre, nextScratch)
		}
		if m.HasIndex {
			out.Index = rewritePointer(*m.Index, alloc, &pre, nextScratch)
		}
		return out
	}

	rewriteUse := func(op asm.Op) asm.Op {
		switch op := op.(type) {
		case asm.TempOp:
			loc := alloc.locationOf(op.Temp)
			if loc.inReg {
				return asm.TempOp{Temp: operand.FromRegister(loc.reg)}
			}
			scratch := nextScratch()
			pre = append(pre, asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: operand.FromRegister(scratch)}, Src: asm.MemOp{Mem: slotMem(loc.slot)}})
			return asm.TempOp{Temp: operand.FromRegister(scratch)}
		case asm.MemOp:
			return asm.MemOp{Mem: rewriteMem(op.Mem)}
		default:
			return op
		}
	}

	newSrc := rewriteUse(i.Src)

	var newDst asm.Op
	switch dst := i.Dst.(type) {
	case asm.TempOp:
		loc := alloc.locationOf(dst.Temp)
		if loc.inReg {
			newDst = asm.TempOp{Temp: operand.FromRegister(loc.reg)}
		} else {
			scratch := nextScratch()
			scratchOp := asm.TempOp{Temp: operand.FromRegister(scratch)}
			pre = append(pre, asm.Instr{Op: asm.Mov, Dst: scratchOp, Src: asm.MemOp{Mem: slotMem(loc.slot)}})
			post = append(post, asm.Instr{Op: asm.Mov, Dst: asm.MemOp{Mem: slotMem(loc.slot)}, Src: scratchOp})
			newDst = scratchOp
		}
	case asm.MemOp:
		newDst = asm.MemOp{Mem: rewriteMem(dst.Mem)}
	default:
		newDst = i.Dst
	}

	rewritten := asm.Instr{Op: i.Op, Dst: newDst, Src: newSrc, Label: i.Label, NArgs: i.NArgs, NRets: i.NRets}
	return append(append(pre, rewritten), post...)
}

func rewritePointer(t operand.Temporary, alloc *allocation, pre *[]asm.AnyInstr, nextScratch func() operand.Register) *operand.Temporary {
	loc := alloc.locationOf(t)
	if loc.inReg {
		reg := operand.FromRegister(loc.reg)
		return &reg
	}
	scratch := operand.FromRegister(nextScratch())
	*pre = append(*pre, asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: scratch}, Src: asm.MemOp{Mem: slotMem(loc.slot)}})
	return &scratch
}
