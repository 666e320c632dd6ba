package regalloc

import (
	"sort"

	"xic/internal/acfg"
	"xic/internal/analysis"
	"xic/internal/asm"
	"xic/internal/dataflow"
	"xic/internal/operand"
)

// allocatableRegisters excludes the frame pointer/stack pointer, the
// scratch trio frame.go reserves for spill addressing, and every
// callee-saved register (keeping the prologue/epilogue free of
// conditional save/restore logic; a temporary that would most benefit
// from a callee-saved home instead spills, a documented simplification).
var allocatableRegisters = []operand.Register{
	operand.RAX, operand.RCX, operand.RDX, operand.RSI, operand.RDI, operand.R8, operand.R9,
}

// interval is the live range of one non-register temporary, expressed as
// a closed span [start, end] of instruction positions numbered in fn's original
// flat order.
type interval struct {
	temp       operand.Temporary
	start, end int
}

// reservation is the span during which an architectural register is
// already occupied by a precolored temporary (idiv/cqo/imul's RAX/RDX,
// or a call's argument/caller-saved registers) and so is unavailable to
// the linear-scan assignment regardless of what is otherwise free.
type reservation struct{ start, end int }

// AllocateLinear assigns each temporary of fn a register via linear
// scan over its live ranges (LiveVariables-derived), spilling to a stack
// slot via the trivial mechanism whenever no free register
// survives to the interval's start, or whenever a precolored interval
// occupies every free register it could otherwise take.
func AllocateLinear(fn *asm.Function) *asm.Function {
	g := acfg.Construct(fn)
	live := analysis.LiveVariables(g)
	intervals, reserved := collectIntervals(g, live)

	alloc := newAllocation()
	freeSet := map[operand.Register]bool{}
	for _, r := range allocatableRegisters {
		freeSet[r] = true
	}

	type active struct {
		iv  *interval
		reg operand.Register
	}
	var actives []active

	expire := func(cur *interval) {
		var stillActive []active
		for _, a := range actives {
			if a.iv.end < cur.start {
				freeSet[a.reg] = true
			} else {
				stillActive = append(stillActive, a)
			}
		}
		actives = stillActive
	}

	overlapsReservation := func(reg operand.Register, iv *interval) bool {
		for _, r := range reserved[reg] {
			if iv.start <= r.end && r.start <= iv.end {
				return true
			}
		}
		return false
	}

	spillWorst := func(iv *interval) {
		if len(actives) == 0 {
			alloc.assignSlot(iv.temp)
			return
		}
		sort.Slice(actives, func(i, j int) bool { return actives[i].iv.end > actives[j].iv.end })
		worst := actives[0]
		if worst.iv.end > iv.end {
			alloc.assignSlot(worst.iv.temp)
			alloc.assignRegister(iv.temp, worst.reg)
			actives[0] = active{iv: iv, reg: worst.reg}
		} else {
			alloc.assignSlot(iv.temp)
		}
	}

	for _, iv := range intervals {
		// Argument/Return temporaries keep stack homes: the prologue and
		// epilogue marshal them against the ABI registers in a fixed
		// sequence that interval collection never sees, so handing one an
		// argument or return register could clobber a value a later move
		// in that sequence still reads.
		if iv.temp.Kind == operand.TempArgument || iv.temp.Kind == operand.TempReturn {
			alloc.assignSlot(iv.temp)
			continue
		}

		expire(iv)

		assigned := false
		for _, reg := range allocatableRegisters {
			if freeSet[reg] && !overlapsReservation(reg, iv) {
				freeSet[reg] = false
				alloc.assignRegister(iv.temp, reg)
				actives = append(actives, active{iv: iv, reg: reg})
				assigned = true
				break
			}
		}
		if !assigned {
			spillWorst(iv)
		}
	}

	// Anything the live ranges never saw (e.g. an argument the body never
	// reads) still needs a home before the prologue sizes the frame.
	forEachTemp(fn, func(t operand.Temporary) {
		if t.Kind != operand.TempRegister {
			alloc.assignSlot(t)
		}
	})

	return materialize(fn, alloc)
}

// collectIntervals walks every block's live-out fact backward
// instruction-by-instruction (analysis.LiveAt), recording for every
// ordinary temporary the span of positions during which it is live or
// directly mentioned, and for every register-kind temporary the spans
// during which that register is precolored-occupied.
func collectIntervals(g *acfg.Graph, live *dataflow.Result[operand.Temporary]) ([]*interval, map[operand.Register][]reservation) {
	ivs := map[operand.Temporary]*interval{}
	reserved := map[operand.Register][]reservation{}
	pos := 0

	touch := func(t operand.Temporary, p int) {
		if t.Kind == operand.TempRegister {
			reserved[t.Register] = append(reserved[t.Register], reservation{start: p, end: p})
			return
		}
		iv, ok := ivs[t]
		if !ok {
			ivs[t] = &interval{temp: t, start: p, end: p}
			return
		}
		if p < iv.start {
			iv.start = p
		}
		if p > iv.end {
			iv.end = p
		}
	}

	for bi, b := range g.Blocks {
		for j, ins := range b.Instrs {
			after := analysis.LiveAt(b, live.Out[bi], j)
			for t := range after {
				touch(t, pos)
			}
			if i, ok := ins.(asm.Instr); ok {
				for _, d := range i.Defs {
					touch(d, pos)
				}
				for _, u := range i.Uses {
					touch(u, pos)
				}
				if t, ok := i.Dst.(asm.TempOp); ok {
					touch(t.Temp, pos)
				}
				if t, ok := i.Src.(asm.TempOp); ok {
					touch(t.Temp, pos)
				}
			}
			pos++
		}
	}

	out := make([]*interval, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })

	mergedReserved := map[operand.Register][]reservation{}
	for reg, spans := range reserved {
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		mergedReserved[reg] = spans
	}
	return out, mergedReserved
}
