// Package acfg builds control-flow graphs over abstract-assembly function
// bodies, the level at which live-variable analysis, copy/constant
// propagation, dead-code elimination, and register allocation operate.
// It mirrors package cfg's construction algorithm at the assembly level.
package acfg

import (
	"xic/internal/asm"
	"xic/internal/operand"
)

type EdgeKind int

const (
	Unconditional EdgeKind = iota
	ConditionalTrue
	ConditionalFalse
	Fallthrough
)

// Block is a basic block of abstract-assembly instructions.
type Block struct {
	Label  operand.Label
	Instrs []asm.AnyInstr
}

type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Graph is the assembly-level counterpart of cfg.Graph.
type Graph struct {
	Blocks  []*Block
	Edges   []Edge
	Enter   int
	Exit    int
	indexOf map[operand.Label]int
}

func (g *Graph) BlockIndex(l operand.Label) (int, bool) {
	i, ok := g.indexOf[l]
	return i, ok
}

func (g *Graph) Successors(i int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == i {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) Predecessors(i int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.To == i {
			out = append(out, e)
		}
	}
	return out
}

// NumBlocks, EnterBlock, ExitBlock, Succ, and Pred implement
// dataflow.GraphView, so the generic worklist driver also traverses
// assembly-level graphs.
func (g *Graph) NumBlocks() int  { return len(g.Blocks) }
func (g *Graph) EnterBlock() int { return g.Enter }
func (g *Graph) ExitBlock() int  { return g.Exit }

func (g *Graph) Succ(i int) []int {
	edges := g.Successors(i)
	out := make([]int, len(edges))
	for j, e := range edges {
		out[j] = e.To
	}
	return out
}

func (g *Graph) Pred(i int) []int {
	edges := g.Predecessors(i)
	out := make([]int, len(edges))
	for j, e := range edges {
		out[j] = e.From
	}
	return out
}

func isTransfer(i asm.AnyInstr) bool {
	in, ok := i.(asm.Instr)
	if !ok {
		return false
	}
	switch in.Op {
	case asm.Je, asm.Jne, asm.Jl, asm.Jle, asm.Jg, asm.Jge, asm.Jmp, asm.Ret:
		return true
	default:
		return false
	}
}

func jumpTarget(i asm.Instr) (operand.Label, bool) {
	switch i.Op {
	case asm.Je, asm.Jne, asm.Jl, asm.Jle, asm.Jg, asm.Jge, asm.Jmp:
		return i.Label, true
	default:
		return operand.Label{}, false
	}
}

func isConditionalJump(i asm.Instr) bool {
	switch i.Op {
	case asm.Je, asm.Jne, asm.Jl, asm.Jle, asm.Jg, asm.Jge:
		return true
	default:
		return false
	}
}

// Construct partitions fn into basic blocks, opening a new one at every
// label and after every control transfer, exactly as package cfg does for
// LIR.
func Construct(fn *asm.Function) *Graph {
	g := &Graph{indexOf: make(map[operand.Label]int)}
	enterIdx := g.addBlock(&Block{Label: fn.Enter})
	g.Enter = enterIdx

	var blocks []*Block
	var cur *Block
	flush := func() {
		if cur != nil {
			blocks = append(blocks, cur)
			cur = nil
		}
	}

	for _, ins := range fn.Instrs {
		if l, ok := ins.(asm.LabelInstr); ok {
			flush()
			cur = &Block{Label: l.Label, Instrs: []asm.AnyInstr{ins}}
			continue
		}
		if cur == nil {
			lbl := operand.FreshLabel()
			cur = &Block{Label: lbl, Instrs: []asm.AnyInstr{asm.LabelInstr{Label: lbl}}}
		}
		cur.Instrs = append(cur.Instrs, ins)
		if isTransfer(ins) {
			flush()
		}
	}
	flush()

	for _, b := range blocks {
		g.addBlock(b)
	}
	exitIdx := g.addBlock(&Block{Label: fn.Exit})
	g.Exit = exitIdx

	if len(blocks) > 0 {
		firstIdx, _ := g.BlockIndex(blocks[0].Label)
		g.Edges = append(g.Edges, Edge{From: enterIdx, To: firstIdx, Kind: Unconditional})
	} else {
		g.Edges = append(g.Edges, Edge{From: enterIdx, To: exitIdx, Kind: Unconditional})
	}

	for i, b := range blocks {
		idx, _ := g.BlockIndex(b.Label)
		fallIdx := exitIdx
		if i+1 < len(blocks) {
			fallIdx, _ = g.BlockIndex(blocks[i+1].Label)
		}

		last := lastInstr(b.Instrs)
		in, ok := last.(asm.Instr)
		switch {
		case ok && in.Op == asm.Jmp:
			tgt, found := g.BlockIndex(in.Label)
			if !found {
				tgt = exitIdx
			}
			g.Edges = append(g.Edges, Edge{From: idx, To: tgt, Kind: Unconditional})
		case ok && isConditionalJump(in):
			tgtLbl, _ := jumpTarget(in)
			tgt, found := g.BlockIndex(tgtLbl)
			if !found {
				tgt = exitIdx
			}
			g.Edges = append(g.Edges, Edge{From: idx, To: tgt, Kind: ConditionalTrue})
			g.Edges = append(g.Edges, Edge{From: idx, To: fallIdx, Kind: ConditionalFalse})
		case ok && in.Op == asm.Ret:
			g.Edges = append(g.Edges, Edge{From: idx, To: exitIdx, Kind: Unconditional})
		default:
			g.Edges = append(g.Edges, Edge{From: idx, To: fallIdx, Kind: Fallthrough})
		}
	}

	return g
}

func lastInstr(instrs []asm.AnyInstr) asm.AnyInstr {
	if len(instrs) == 0 {
		return nil
	}
	return instrs[len(instrs)-1]
}

func (g *Graph) addBlock(b *Block) int {
	idx := len(g.Blocks)
	g.Blocks = append(g.Blocks, b)
	g.indexOf[b.Label] = idx
	return idx
}

// Destruct re-linearizes g back into a flat instruction list, preferring
// fallthrough/false successors first, exactly as package cfg.Destruct
// does for LIR.
func Destruct(g *Graph, fn *asm.Function) *asm.Function {
	order := destructOrder(g)

	var instrs []asm.AnyInstr
	for pos, idx := range order {
		if idx == g.Enter || idx == g.Exit {
			continue
		}
		b := g.Blocks[idx]
		instrs = append(instrs, b.Instrs...)

		next := -1
		if pos+1 < len(order) {
			next = order[pos+1]
		}

		target := fallthroughTarget(g, idx)
		last := lastInstr(b.Instrs)
		_, isJmpOrRet := isUnconditionalEnd(last)
		if !isJmpOrRet && target >= 0 && target != next {
			instrs = append(instrs, asm.Instr{Op: asm.Jmp, Label: g.Blocks[target].Label})
		}
	}

	return &asm.Function{
		Name:      fn.Name,
		Instrs:    instrs,
		Arguments: fn.Arguments,
		Returns:   fn.Returns,
		Enter:     fn.Enter,
		Exit:      fn.Exit,
	}
}

func isUnconditionalEnd(last asm.AnyInstr) (asm.Instr, bool) {
	in, ok := last.(asm.Instr)
	if !ok {
		return asm.Instr{}, false
	}
	return in, in.Op == asm.Jmp || in.Op == asm.Ret
}

func fallthroughTarget(g *Graph, idx int) int {
	for _, e := range g.Edges {
		if e.From == idx && (e.Kind == Fallthrough || e.Kind == ConditionalFalse) {
			return e.To
		}
	}
	return -1
}

func destructOrder(g *Graph) []int {
	visited := make([]bool, len(g.Blocks))
	var order []int

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		order = append(order, i)

		var first, rest []Edge
		for _, e := range g.Successors(i) {
			if e.Kind == Fallthrough || e.Kind == ConditionalFalse {
				first = append(first, e)
			} else {
				rest = append(rest, e)
			}
		}
		for _, e := range first {
			visit(e.To)
		}
		for _, e := range rest {
			visit(e.To)
		}
	}

	visit(g.Enter)
	for i := range g.Blocks {
		if !visited[i] {
			order = append(order, i)
		}
	}
	return order
}
