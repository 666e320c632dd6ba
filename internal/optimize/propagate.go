package optimize

import (
	"xic/internal/acfg"
	"xic/internal/analysis"
	"xic/internal/asm"
	"xic/internal/dataflow"
	"xic/internal/operand"
)

// CopyPropagate rewrites subsequent uses of a copy's destination to its
// source within the copy's reaching scope. It never rewrites
// through a memory operand, since a memory address may alias the copied
// temporary in ways this analysis does not track.
func CopyPropagate(fn *asm.Function) *asm.Function {
	g := acfg.Construct(fn)
	universe := analysis.AllCopies(g)
	res := analysis.CopyPropagation(g, universe)

	for bi, b := range g.Blocks {
		active := res.In[bi].Clone()
		for idx, ins := range b.Instrs {
			i, ok := ins.(asm.Instr)
			if !ok {
				continue
			}

			i.Src = substituteCopy(&i, i.Src, active)
			if dstIsPureRead(i.Op) {
				i.Dst = substituteCopy(&i, i.Dst, active)
			}
			b.Instrs[idx] = i

			active = transferCopyOneInstr(i, active)
		}
	}

	return acfg.Destruct(g, fn)
}

// dstIsPureRead reports whether the Dst slot is only read, so rewriting
// it cannot change which temporary the instruction defines.
func dstIsPureRead(op asm.Mnemonic) bool {
	switch op {
	case asm.Cmp, asm.Test, asm.Push:
		return true
	default:
		return false
	}
}

func substituteCopy(i *asm.Instr, op asm.Op, active dataflow.Set[analysis.Copy]) asm.Op {
	t, ok := op.(asm.TempOp)
	if !ok {
		return op
	}
	for c := range active {
		if c.Dst == t.Temp {
			i.Uses = replaceOneUse(i.Uses, t.Temp, &c.Src)
			return asm.TempOp{Temp: c.Src}
		}
	}
	return op
}

// replaceOneUse rewrites a single occurrence of old in uses (the one the
// substituted operand accounted for), dropping it when repl is nil, so
// the instruction's use set keeps matching its operands.
func replaceOneUse(uses []operand.Temporary, old operand.Temporary, repl *operand.Temporary) []operand.Temporary {
	out := make([]operand.Temporary, 0, len(uses))
	replaced := false
	for _, u := range uses {
		if !replaced && u == old {
			replaced = true
			if repl != nil {
				out = append(out, *repl)
			}
			continue
		}
		out = append(out, u)
	}
	return out
}

func transferCopyOneInstr(i asm.Instr, active dataflow.Set[analysis.Copy]) dataflow.Set[analysis.Copy] {
	out := active.Clone()
	for _, d := range i.Defs {
		for c := range out {
			if c.Dst == d || c.Src == d {
				delete(out, c)
			}
		}
	}
	if dst, ok := i.Dst.(asm.TempOp); ok {
		for c := range out {
			if c.Dst == dst.Temp || c.Src == dst.Temp {
				delete(out, c)
			}
		}
		if i.Op == asm.Mov {
			if src, ok := i.Src.(asm.TempOp); ok {
				out[analysis.Copy{Dst: dst.Temp, Src: src.Temp}] = struct{}{}
			}
		}
	}
	return out
}

// ConstantPropagate rewrites uses of a temporary known to be a single
// constant at that program point to an immediate operand.
func ConstantPropagate(fn *asm.Function) *asm.Function {
	g := acfg.Construct(fn)
	res := analysis.ConstantPropagation(g)

	for bi, b := range g.Blocks {
		cur := res.In[bi]
		for idx, ins := range b.Instrs {
			i, ok := ins.(asm.Instr)
			if !ok {
				continue
			}

			i.Src = substituteConst(&i, i.Src, cur)
			b.Instrs[idx] = i

			cur = analysis.StepInstr(i, cur)
		}
	}

	return acfg.Destruct(g, fn)
}

func substituteConst(i *asm.Instr, op asm.Op, cur analysis.ConstMap) asm.Op {
	t, ok := op.(asm.TempOp)
	if !ok {
		return op
	}
	if v, ok := cur[t.Temp]; ok && v.Known {
		i.Uses = replaceOneUse(i.Uses, t.Temp, nil)
		return asm.ImmOp{Imm: analysis.ImmediateOf(v)}
	}
	return op
}
