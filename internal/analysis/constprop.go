package analysis

import (
	"xic/internal/acfg"
	"xic/internal/asm"
	"xic/internal/operand"
)

// ConstValue is one point of the flat constant lattice
// Temp → {⊥, c ∈ ℤ, ⊤}.
type ConstValue struct {
	Top    bool // ⊤: not constant
	Known  bool // a specific constant is known (⊥ otherwise: not yet seen)
	Value  int64
}

func bottom() ConstValue        { return ConstValue{} }
func top() ConstValue           { return ConstValue{Top: true} }
func constant(v int64) ConstValue { return ConstValue{Known: true, Value: v} }

// glb computes the pointwise greatest-lower-bound of two lattice values:
// ⊥ is the identity, equal constants stay that constant, and anything
// else collapses to ⊤.
func glb(a, b ConstValue) ConstValue {
	if a == bottom() {
		return b
	}
	if b == bottom() {
		return a
	}
	if a.Known && b.Known && a.Value == b.Value {
		return a
	}
	return top()
}

// ConstMap is the per-program-point abstract state: temporary → lattice
// value. Only entries present are tracked; an absent key is ⊥.
type ConstMap map[operand.Temporary]ConstValue

func (m ConstMap) clone() ConstMap {
	out := make(ConstMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m ConstMap) equal(o ConstMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		if o[k] != v {
			return false
		}
	}
	return true
}

// ConstantPropagationResult holds the fixed-point IN/OUT maps per block.
type ConstantPropagationResult struct {
	In, Out []ConstMap
}

// ConstantPropagation runs the forward, pointwise-glb analysis over the
// assembly CFG: transfer evaluates assignments of constants and kills any
// temporary clobbered by a call, div, mod, or high-mul.
func ConstantPropagation(g *acfg.Graph) *ConstantPropagationResult {
	n := len(g.Blocks)
	res := &ConstantPropagationResult{In: make([]ConstMap, n), Out: make([]ConstMap, n)}
	for i := range res.In {
		res.In[i] = ConstMap{}
		res.Out[i] = ConstMap{}
	}

	worklist := make([]int, n)
	inWL := make([]bool, n)
	for i := 0; i < n; i++ {
		worklist[i] = i
		inWL[i] = true
	}

	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		inWL[b] = false

		in := ConstMap{}
		first := true
		for _, e := range g.Predecessors(b) {
			if first {
				in = res.Out[e.From].clone()
				first = false
			} else {
				in = meetMaps(in, res.Out[e.From])
			}
		}
		res.In[b] = in

		out := transferConstBlock(g.Blocks[b], in)
		if !out.equal(res.Out[b]) {
			res.Out[b] = out
			for _, e := range g.Successors(b) {
				if !inWL[e.To] {
					worklist = append(worklist, e.To)
					inWL[e.To] = true
				}
			}
		}
	}

	return res
}

func meetMaps(a, b ConstMap) ConstMap {
	out := make(ConstMap)
	for k, v := range a {
		out[k] = glb(v, b[k])
	}
	for k, v := range b {
		if _, ok := out[k]; !ok {
			out[k] = glb(a[k], v)
		}
	}
	return out
}

func transferConstBlock(b *acfg.Block, in ConstMap) ConstMap {
	cur := in.clone()
	for _, ins := range b.Instrs {
		i, ok := ins.(asm.Instr)
		if !ok {
			continue
		}
		cur = StepInstr(i, cur)
	}
	return cur
}

// StepInstr advances the constant-propagation state cur across a single
// instruction, exported so the ConstantPropagate rewrite pass can
// interleave stepping with substitution instruction-by-instruction.
func StepInstr(i asm.Instr, cur ConstMap) ConstMap {
	out := cur.clone()

	clobbersImplicit := i.Op == asm.Imul || i.Op == asm.Idiv || i.Op == asm.Imod || i.Op == asm.Ihul || i.Op == asm.Cqo
	if clobbersImplicit {
		out[operand.FromRegister(operand.RAX)] = top()
		out[operand.FromRegister(operand.RDX)] = top()
	}
	if i.Op == asm.Call {
		for _, d := range i.Defs {
			out[d] = top()
		}
	}

	dst, dstIsTemp := i.Dst.(asm.TempOp)
	switch i.Op {
	case asm.Mov:
		if dstIsTemp {
			out[dst.Temp] = evalConst(i.Src, cur)
		}
	case asm.Add, asm.Sub, asm.And, asm.Or, asm.Xor, asm.Shl, asm.Shr, asm.Sar:
		// Read-modify-write: Dst is both the left operand and the
		// destination, so its pre-instruction value comes from cur, not
		// the just-cloned out.
		if dstIsTemp {
			left := cur[dst.Temp]
			out[dst.Temp] = evalRMW(i.Op, left, evalConst(i.Src, cur))
		}
	default:
		// Imul/Ihul/Idiv/Imod hold the multiplicand/divisor in Dst but
		// define RAX/RDX, not Dst, which is already handled above. Any other
		// instruction that does list dst.Temp in Defs redefines it
		// unpredictably from this analysis's point of view.
		if dstIsTemp {
			for _, d := range i.Defs {
				if d == dst.Temp {
					out[dst.Temp] = top()
					break
				}
			}
		}
	}
	return out
}

// evalRMW folds a read-modify-write arithmetic op when both operands are
// known constants, matching the runtime semantics of the tiled
// instruction.
func evalRMW(op asm.Mnemonic, left, right ConstValue) ConstValue {
	if left.Top || right.Top {
		return top()
	}
	if !left.Known || !right.Known {
		return bottom()
	}
	switch op {
	case asm.Add:
		return constant(left.Value + right.Value)
	case asm.Sub:
		return constant(left.Value - right.Value)
	case asm.And:
		return constant(left.Value & right.Value)
	case asm.Or:
		return constant(left.Value | right.Value)
	case asm.Xor:
		return constant(left.Value ^ right.Value)
	case asm.Shl:
		return constant(left.Value << uint(right.Value))
	case asm.Shr:
		return constant(int64(uint64(left.Value) >> uint(right.Value)))
	case asm.Sar:
		return constant(left.Value >> uint(right.Value))
	default:
		return top()
	}
}

// ImmediateOf converts a known constant lattice value to an Immediate
// operand, for the rewrite pass to splice in.
func ImmediateOf(v ConstValue) operand.Immediate {
	return operand.IntImmediate(v.Value)
}

func evalConst(src asm.Op, cur ConstMap) ConstValue {
	switch s := src.(type) {
	case asm.ImmOp:
		if !s.Imm.IsLabel {
			return constant(s.Imm.Integer)
		}
		return top()
	case asm.TempOp:
		if v, ok := cur[s.Temp]; ok {
			return v
		}
		return bottom()
	default:
		return top()
	}
}
