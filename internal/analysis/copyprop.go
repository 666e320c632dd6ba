package analysis

import (
	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/dataflow"
	"xic/internal/operand"
)

// Copy is a (dst, src) pair recorded by a `mov dst, src` between two
// temporaries.
type Copy struct{ Dst, Src operand.Temporary }

// CopyPropagation: forward, ∩ meet, gen a copy pair at each `mov t1, t2`,
// kill any pair mentioning a temporary the instruction redefines.
func CopyPropagation(g *acfg.Graph, universe []Copy) *dataflow.Result[Copy] {
	all := dataflow.NewSet(universe...)
	a := dataflow.Analysis[Copy]{
		Direction:       dataflow.Forward,
		Meet:            dataflow.Intersect[Copy],
		InitialEntry:    all.Clone(),
		InitialBoundary: dataflow.NewSet[Copy](),
		Transfer: func(blockIdx int, in dataflow.Set[Copy]) dataflow.Set[Copy] {
			return transferCopyBlock(g.Blocks[blockIdx], in)
		},
	}
	return dataflow.Run(g, a)
}

func transferCopyBlock(b *acfg.Block, in dataflow.Set[Copy]) dataflow.Set[Copy] {
	cur := in.Clone()
	for _, ins := range b.Instrs {
		in, ok := ins.(asm.Instr)
		if !ok {
			continue
		}
		killTemp := func(t operand.Temporary) {
			for c := range cur {
				if c.Dst == t || c.Src == t {
					delete(cur, c)
				}
			}
		}
		for _, d := range in.Defs {
			killTemp(d)
		}
		if dstOp, ok := in.Dst.(asm.TempOp); ok {
			killTemp(dstOp.Temp)
			if in.Op == asm.Mov {
				if srcOp, ok := in.Src.(asm.TempOp); ok {
					cur[Copy{Dst: dstOp.Temp, Src: srcOp.Temp}] = struct{}{}
				}
			}
		}
	}
	return cur
}

// AllCopies enumerates every `mov temp, temp` instruction in fn's blocks,
// the universe CopyPropagation's lattice ranges over.
func AllCopies(g *acfg.Graph) []Copy {
	var out []Copy
	for _, b := range g.Blocks {
		for _, ins := range b.Instrs {
			in, ok := ins.(asm.Instr)
			if !ok || in.Op != asm.Mov {
				continue
			}
			dst, dok := in.Dst.(asm.TempOp)
			src, sok := in.Src.(asm.TempOp)
			if dok && sok {
				out = append(out, Copy{Dst: dst.Temp, Src: src.Temp})
			}
		}
	}
	return out
}
