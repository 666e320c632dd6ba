// Package cfg builds and destructs control-flow graphs over LIR function
// bodies. Blocks live in an arena indexed by integer; edges
// are (index, kind) pairs in a separate table, so the graph has no
// back-pointers and traversals always consult the arena.
package cfg

import (
	"xic/internal/lir"
	"xic/internal/operand"
)

// EdgeKind tags a CFG edge with how control reaches the successor.
type EdgeKind int

const (
	Unconditional EdgeKind = iota
	ConditionalTrue
	ConditionalFalse
	Fallthrough
)

// Block is a basic block: a nonempty statement sequence starting with a
// label (enter/exit are the two exceptions, which carry no statements).
type Block struct {
	Label operand.Label
	Stmts []lir.Stmt
}

// Edge connects block index From to block index To.
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Graph is a labeled directed graph over a function's basic blocks, with
// the two distinguished enter/exit nodes every function graph carries.
type Graph struct {
	Blocks   []*Block
	Edges    []Edge
	Enter    int // index into Blocks
	Exit     int
	indexOf  map[operand.Label]int
}

// BlockIndex resolves a label to its block index.
func (g *Graph) BlockIndex(l operand.Label) (int, bool) {
	i, ok := g.indexOf[l]
	return i, ok
}

// Successors returns the outgoing edges of block i.
func (g *Graph) Successors(i int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == i {
			out = append(out, e)
		}
	}
	return out
}

// Predecessors returns the incoming edges of block i.
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
// dataflow.GraphView, letting the generic worklist driver traverse a LIR
// control-flow graph without depending on the lir package.
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

func isLabel(s lir.Stmt) (operand.Label, bool) {
	if l, ok := s.(lir.LabelStmt); ok {
		return l.Label, true
	}
	return operand.Label{}, false
}

func isTransfer(s lir.Stmt) bool {
	switch s.(type) {
	case lir.Jump, lir.CJump, lir.Return:
		return true
	default:
		return false
	}
}

// Construct partitions fn's statement list into basic blocks and links
// successor edges: a new block opens at every label and after every
// control transfer.
func Construct(fn *lir.Function) *Graph {
	g := &Graph{indexOf: make(map[operand.Label]int)}

	// enter is a synthetic, statement-less block with a single edge to
	// the first real block.
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

	for _, s := range fn.Stmts {
		if lbl, ok := isLabel(s); ok {
			flush()
			cur = &Block{Label: lbl, Stmts: []lir.Stmt{s}}
			continue
		}
		if cur == nil {
			// Statement before any label: synthesize one so every
			// block still starts with a label. The
			// label statement itself is materialized too, so Destruct can
			// emit a jump targeting this block and still resolve.
			lbl := operand.FreshLabel()
			cur = &Block{Label: lbl, Stmts: []lir.Stmt{lir.LabelStmt{Label: lbl}}}
		}
		cur.Stmts = append(cur.Stmts, s)
		if isTransfer(s) {
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

		last := lastStmt(b.Stmts)
		switch t := last.(type) {
		case lir.Jump:
			tgt, ok := g.BlockIndex(t.Target)
			if !ok {
				tgt = exitIdx
			}
			g.Edges = append(g.Edges, Edge{From: idx, To: tgt, Kind: Unconditional})
		case lir.CJump:
			tgt, ok := g.BlockIndex(t.True)
			if !ok {
				tgt = exitIdx
			}
			g.Edges = append(g.Edges, Edge{From: idx, To: tgt, Kind: ConditionalTrue})
			g.Edges = append(g.Edges, Edge{From: idx, To: fallIdx, Kind: ConditionalFalse})
		case lir.Return:
			g.Edges = append(g.Edges, Edge{From: idx, To: exitIdx, Kind: Unconditional})
		default:
			// Block fell off the end without a transfer: implicit
			// fall-through to the next block (or exit).
			g.Edges = append(g.Edges, Edge{From: idx, To: fallIdx, Kind: Fallthrough})
		}
	}

	return g
}

func lastStmt(stmts []lir.Stmt) lir.Stmt {
	if len(stmts) == 0 {
		return nil
	}
	return stmts[len(stmts)-1]
}

func (g *Graph) addBlock(b *Block) int {
	idx := len(g.Blocks)
	g.Blocks = append(g.Blocks, b)
	g.indexOf[b.Label] = idx
	return idx
}

// Destruct re-linearizes g into a statement list with a fall-through
// ordering, inserting an explicit Jump only where the chosen order would
// otherwise break an assumed fall-through.
func Destruct(g *Graph, fn *lir.Function) *lir.Function {
	order := destructOrder(g)

	var stmts []lir.Stmt
	for pos, idx := range order {
		b := g.Blocks[idx]
		if idx == g.Enter || idx == g.Exit {
			continue
		}
		stmts = append(stmts, b.Stmts...)

		next := -1
		if pos+1 < len(order) {
			next = order[pos+1]
		}

		if needsExplicitJump(g, idx, next) {
			target := fallthroughTarget(g, idx)
			if target >= 0 && target != next {
				stmts = append(stmts, lir.Jump{Target: g.Blocks[target].Label})
			}
		}
	}

	return &lir.Function{
		Name:      fn.Name,
		Stmts:     stmts,
		Arguments: fn.Arguments,
		Returns:   fn.Returns,
		Enter:     fn.Enter,
		Exit:      fn.Exit,
	}
}

// needsExplicitJump reports whether block idx's fallthrough/false
// successor is not literally the next block in the chosen order.
func needsExplicitJump(g *Graph, idx, next int) bool {
	last := lastStmt(g.Blocks[idx].Stmts)
	switch last.(type) {
	case lir.CJump:
		return true
	case lir.Jump, lir.Return:
		return false
	default:
		target := fallthroughTarget(g, idx)
		return target >= 0 && target != next
	}
}

func fallthroughTarget(g *Graph, idx int) int {
	for _, e := range g.Edges {
		if e.From == idx && (e.Kind == Fallthrough || e.Kind == ConditionalFalse) {
			return e.To
		}
	}
	return -1
}

// destructOrder performs a DFS from enter that, at every CJump block,
// visits the fallthrough/false successor first, maximizing fall-through.
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

		succs := g.Successors(i)
		// Prefer Fallthrough/ConditionalFalse first so it lands
		// immediately after i in `order`.
		var first, rest []Edge
		for _, e := range succs {
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

	// Any block unreachable from enter (shouldn't happen on a
	// well-formed CFG, but defends against partial construction in
	// tests) is appended in arena order so nothing is silently dropped.
	for i := range g.Blocks {
		if !visited[i] {
			order = append(order, i)
		}
	}

	return order
}

// Clean removes unreachable blocks, collapses chains of trivial jumps,
// and eliminates empty blocks whose only content is a label followed by
// an unconditional jump.
func Clean(g *Graph) *Graph {
	removeUnreachable(g)
	collapseTrivialJumps(g)
	return g
}

func removeUnreachable(g *Graph) {
	reachable := make([]bool, len(g.Blocks))
	var visit func(i int)
	visit = func(i int) {
		if reachable[i] {
			return
		}
		reachable[i] = true
		for _, e := range g.Successors(i) {
			visit(e.To)
		}
	}
	visit(g.Enter)
	reachable[g.Exit] = true

	kept := make([]*Block, 0, len(g.Blocks))
	remap := make(map[int]int, len(g.Blocks))
	for i, b := range g.Blocks {
		if reachable[i] {
			remap[i] = len(kept)
			kept = append(kept, b)
		}
	}

	var edges []Edge
	for _, e := range g.Edges {
		if reachable[e.From] && reachable[e.To] {
			edges = append(edges, Edge{From: remap[e.From], To: remap[e.To], Kind: e.Kind})
		}
	}

	g.Blocks = kept
	g.Edges = edges
	g.Enter = remap[g.Enter]
	g.Exit = remap[g.Exit]
	g.indexOf = make(map[operand.Label]int, len(kept))
	for i, b := range kept {
		g.indexOf[b.Label] = i
	}
}

// collapseTrivialJumps repeatedly redirects any edge targeting a block
// whose entire body is "label; jump L" straight to L, then drops the
// now-unreferenced trivial block.
func collapseTrivialJumps(g *Graph) {
	changed := true
	for changed {
		changed = false
		for i, b := range g.Blocks {
			if i == g.Enter || i == g.Exit {
				continue
			}
			if len(b.Stmts) != 2 {
				continue
			}
			jmp, ok := b.Stmts[1].(lir.Jump)
			if !ok {
				continue
			}
			target, ok := g.BlockIndex(jmp.Target)
			if !ok || target == i {
				continue
			}
			for j := range g.Edges {
				if g.Edges[j].To == i {
					g.Edges[j].To = target
					changed = true
				}
			}
		}
		if changed {
			removeUnreachable(g)
		}
	}
}
