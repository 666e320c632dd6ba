// Package tile implements the instruction selector: maximal-munch
// bottom-up tiling of LIR expression trees into abstract assembly over a
// pool of virtual temporaries.
package tile

import (
	"xic/internal/asm"
	"xic/internal/hir"
	"xic/internal/lir"
	"xic/internal/operand"
)

// Tiler holds the instruction buffer accumulated while munching a single
// function; Func is invoked once per function.
type Tiler struct {
	instrs []asm.AnyInstr
}

// Func tiles every statement of fn into an abstract-assembly function.
func Func(fn *lir.Function) *asm.Function {
	t := &Tiler{}
	for _, s := range fn.Stmts {
		t.stmt(s)
	}
	return &asm.Function{
		Name:      fn.Name,
		Instrs:    t.instrs,
		Arguments: fn.Arguments,
		Returns:   fn.Returns,
		Enter:     fn.Enter,
		Exit:      fn.Exit,
	}
}

// Unit tiles every function in u.
func Unit(u *lir.Unit) *asm.Unit {
	out := &asm.Unit{Functions: make(map[string]*asm.Function), Data: u.Data}
	for name, fn := range u.Functions {
		out.Functions[name] = Func(fn)
	}
	return out
}

func (t *Tiler) emit(i asm.AnyInstr) { t.instrs = append(t.instrs, i) }

func freshTemp() operand.Temporary { return operand.FreshTemporary(operand.CategoryTile) }

// tempUses returns the temporaries op reads: itself when op is a virtual
// register, its base/index when op is a memory reference, and nothing
// for an immediate. Every tile below uses this to populate Uses instead
// of leaving it to whatever a consumer's Dst/Src fallback might guess.
func tempUses(op asm.Op) []operand.Temporary {
	switch o := op.(type) {
	case asm.TempOp:
		return []operand.Temporary{o.Temp}
	case asm.MemOp:
		return memUses(o.Mem)
	default:
		return nil
	}
}

func memUses(m operand.Memory) []operand.Temporary {
	var out []operand.Temporary
	if m.HasBase {
		out = append(out, *m.Base)
	}
	if m.HasIndex {
		out = append(out, *m.Index)
	}
	return out
}

// toTemp forces op into a fresh temporary unless it already is one.
// Address components and the left operand of a cmp must be registers (or
// register-class temporaries) for the encoding to exist.
func (t *Tiler) toTemp(op asm.Op) asm.Op {
	if _, ok := op.(asm.TempOp); ok {
		return op
	}
	dst := freshTemp()
	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dst}, Src: op,
		Defs: []operand.Temporary{dst}, Uses: tempUses(op)})
	return asm.TempOp{Temp: dst}
}

// cmpOperands legalizes a cmp's operand pair: the left side may not be an
// immediate, and at most one side may be a memory reference.
func (t *Tiler) cmpOperands(left, right asm.Op) (asm.Op, asm.Op) {
	_, lMem := left.(asm.MemOp)
	_, rMem := right.(asm.MemOp)
	if _, lImm := left.(asm.ImmOp); lImm || (lMem && rMem) {
		left = t.toTemp(left)
	}
	return left, right
}

// munch tiles expr bottom-up, returning the operand holding its value
// (an immediate for an integer or label leaf, a memory operand for Mem,
// a temporary otherwise; a Binary of constants is not evaluated here).
// Memory operands are preferred when the address tree matches exactly a
// base/index/scale/disp shape, reducing instruction count.
func (t *Tiler) munch(e lir.Expr) asm.Op {
	switch e := e.(type) {
	case lir.Integer:
		return asm.ImmOp{Imm: operand.IntImmediate(e.Value)}
	case lir.LabelExpr:
		return asm.ImmOp{Imm: operand.LabelImmediate(e.Label)}
	case lir.Temp:
		return asm.TempOp{Temp: e.Temp}
	case lir.Mem:
		return asm.MemOp{Mem: t.munchAddr(e.Addr)}
	case lir.Binary:
		return t.munchBinary(e)
	default:
		panic("tile: unreachable expression variant")
	}
}

// munchAddr matches the memory-operand patterns [base], [base+disp],
// [base+index*scale], [base+index*scale+disp], preferring the richest
// match available.
func (t *Tiler) munchAddr(e lir.Expr) operand.Memory {
	if bin, ok := e.(lir.Binary); ok && bin.Op == hir.Add {
		// base + (index * scale)
		if idxBin, ok := bin.Right.(lir.Binary); ok && idxBin.Op == hir.Mul {
			if scale, ok := constScale(idxBin.Right); ok {
				base := t.toTemp(t.munch(bin.Left))
				index := t.toTemp(t.munch(idxBin.Left))
				return memFromOps(base, index, scale, 0, false)
			}
		}
		if c, ok := bin.Right.(lir.Integer); ok {
			// (base + index * scale) + const-disp
			if inner, ok := bin.Left.(lir.Binary); ok && inner.Op == hir.Add {
				if idxBin, ok := inner.Right.(lir.Binary); ok && idxBin.Op == hir.Mul {
					if scale, ok := constScale(idxBin.Right); ok {
						base := t.toTemp(t.munch(inner.Left))
						index := t.toTemp(t.munch(idxBin.Left))
						return memFromOps(base, index, scale, c.Value, true)
					}
				}
			}
			// base + const-disp
			base := t.toTemp(t.munch(bin.Left))
			return memFromOps(base, nil, 0, c.Value, true)
		}
	}
	base := t.toTemp(t.munch(e))
	return memFromOps(base, nil, 0, 0, false)
}

func constScale(e lir.Expr) (operand.Scale, bool) {
	if c, ok := e.(lir.Integer); ok {
		switch c.Value {
		case 1:
			return operand.Scale1, true
		case 2:
			return operand.Scale2, true
		case 4:
			return operand.Scale4, true
		case 8:
			return operand.Scale8, true
		}
	}
	return 0, false
}

func memFromOps(base asm.Op, index asm.Op, scale operand.Scale, disp int64, hasDisp bool) operand.Memory {
	m := operand.Memory{}
	if baseTemp, ok := base.(asm.TempOp); ok {
		b := baseTemp.Temp
		m.HasBase = true
		m.Base = &b
	}
	if index != nil {
		if idxTemp, ok := index.(asm.TempOp); ok {
			i := idxTemp.Temp
			m.HasIndex = true
			m.Index = &i
			m.Scale = scale
		}
	}
	if hasDisp {
		m.HasDisp = true
		m.Disp = disp
	}
	return m
}

// munchBinary tiles a binary expression, routing Mul/HighMul/Div/Mod
// through the RAX/RDX convention with cqo sign extension, and constant
// shifts into shl/shr/sar imm. Arithmetic identities are not
// simplified here; that is constant folding's job.
func (t *Tiler) munchBinary(e lir.Binary) asm.Op {
	switch e.Op {
	case hir.Mul, hir.HighMul, hir.Div, hir.Mod:
		return t.munchMulDiv(e)
	case hir.Shl, hir.Shr, hir.Sar:
		return t.munchShift(e)
	case hir.Eq, hir.Ne, hir.Lt, hir.Le, hir.Ge, hir.Gt:
		return t.munchCompareToBool(e)
	default:
		left := t.munch(e.Left)
		right := t.munch(e.Right)
		dst := freshTemp()
		t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dst}, Src: left,
			Defs: []operand.Temporary{dst}, Uses: tempUses(left)})
		t.emit(asm.Instr{Op: binOp(e.Op), Dst: asm.TempOp{Temp: dst}, Src: right,
			Defs: []operand.Temporary{dst}, Uses: append([]operand.Temporary{dst}, tempUses(right)...)})
		return asm.TempOp{Temp: dst}
	}
}

func binOp(op hir.BinOp) asm.Mnemonic {
	switch op {
	case hir.Add:
		return asm.Add
	case hir.Sub:
		return asm.Sub
	case hir.And:
		return asm.And
	case hir.Or:
		return asm.Or
	case hir.Xor:
		return asm.Xor
	default:
		panic("tile: unreachable simple binary op")
	}
}

// munchMulDiv evaluates left into RAX and emits imul/ihul against right,
// or sign-extends with cqo and emits idiv/imod against right, per the System V convention these four
// operators follow.
func (t *Tiler) munchMulDiv(e lir.Binary) asm.Op {
	left := t.munch(e.Left)
	right := t.munch(e.Right)
	// imul/idiv take an r/m operand, never an immediate.
	if _, imm := right.(asm.ImmOp); imm {
		right = t.toTemp(right)
	}

	rax := operand.FromRegister(operand.RAX)
	rdx := operand.FromRegister(operand.RDX)

	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: rax}, Src: left,
		Defs: []operand.Temporary{rax}, Uses: tempUses(left)})

	switch e.Op {
	case hir.Mul:
		t.emit(asm.Instr{Op: asm.Imul, Dst: right, Defs: asm.RaxRdx(),
			Uses: append([]operand.Temporary{rax}, tempUses(right)...)})
		return asm.TempOp{Temp: rax}
	case hir.HighMul:
		t.emit(asm.Instr{Op: asm.Ihul, Dst: right, Defs: asm.RaxRdx(),
			Uses: append([]operand.Temporary{rax}, tempUses(right)...)})
		return asm.TempOp{Temp: rdx}
	default:
		t.emit(asm.Instr{Op: asm.Cqo, Defs: []operand.Temporary{rdx}, Uses: []operand.Temporary{rax}})
		if e.Op == hir.Div {
			t.emit(asm.Instr{Op: asm.Idiv, Dst: right, Defs: asm.RaxRdx(),
				Uses: append(asm.RaxRdx(), tempUses(right)...)})
			return asm.TempOp{Temp: rax}
		}
		t.emit(asm.Instr{Op: asm.Imod, Dst: right, Defs: asm.RaxRdx(),
			Uses: append(asm.RaxRdx(), tempUses(right)...)})
		return asm.TempOp{Temp: rdx}
	}
}

func (t *Tiler) munchShift(e lir.Binary) asm.Op {
	left := t.munch(e.Left)
	dst := freshTemp()
	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dst}, Src: left,
		Defs: []operand.Temporary{dst}, Uses: tempUses(left)})

	var mnem asm.Mnemonic
	switch e.Op {
	case hir.Shl:
		mnem = asm.Shl
	case hir.Shr:
		mnem = asm.Shr
	case hir.Sar:
		mnem = asm.Sar
	}

	right := t.munch(e.Right) // folds to an immediate automatically when constant
	if _, imm := right.(asm.ImmOp); !imm {
		// Variable shift counts go through CL.
		rcx := operand.FromRegister(operand.RCX)
		t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: rcx}, Src: right,
			Defs: []operand.Temporary{rcx}, Uses: tempUses(right)})
		right = asm.TempOp{Temp: rcx}
	}
	t.emit(asm.Instr{Op: mnem, Dst: asm.TempOp{Temp: dst}, Src: right,
		Defs: []operand.Temporary{dst}, Uses: append([]operand.Temporary{dst}, tempUses(right)...)})
	return asm.TempOp{Temp: dst}
}

// munchCompareToBool lowers a comparison used outside a CJump context
// (e.g. assigned to a variable) with canonical true=1/false=0.
func (t *Tiler) munchCompareToBool(e lir.Binary) asm.Op {
	left, right := t.cmpOperands(t.munch(e.Left), t.munch(e.Right))
	dst := freshTemp()

	t.emit(asm.Instr{Op: asm.Cmp, Dst: left, Src: right, Uses: append(tempUses(left), tempUses(right)...)})
	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dst}, Src: asm.ImmOp{Imm: operand.IntImmediate(0)},
		Defs: []operand.Temporary{dst}})

	skip := operand.FreshLabel()
	t.emit(asm.Instr{Op: inverseJump(e.Op), Label: skip})
	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dst}, Src: asm.ImmOp{Imm: operand.IntImmediate(1)},
		Defs: []operand.Temporary{dst}})
	t.emit(asm.LabelInstr{Label: skip})

	return asm.TempOp{Temp: dst}
}

func jumpFor(op hir.BinOp) asm.Mnemonic {
	switch op {
	case hir.Eq:
		return asm.Je
	case hir.Ne:
		return asm.Jne
	case hir.Lt:
		return asm.Jl
	case hir.Le:
		return asm.Jle
	case hir.Ge:
		return asm.Jge
	case hir.Gt:
		return asm.Jg
	default:
		panic("tile: not a comparison operator")
	}
}

func inverseJump(op hir.BinOp) asm.Mnemonic {
	switch op {
	case hir.Eq:
		return asm.Jne
	case hir.Ne:
		return asm.Je
	case hir.Lt:
		return asm.Jge
	case hir.Le:
		return asm.Jg
	case hir.Ge:
		return asm.Jl
	case hir.Gt:
		return asm.Jle
	default:
		panic("tile: not a comparison operator")
	}
}

// stmt tiles one LIR statement into its abstract-assembly translation.
func (t *Tiler) stmt(s lir.Stmt) {
	switch s := s.(type) {
	case lir.LabelStmt:
		t.emit(asm.LabelInstr{Label: s.Label})
	case lir.Jump:
		t.emit(asm.Instr{Op: asm.Jmp, Label: s.Target})
	case lir.CJump:
		t.cjump(s)
	case lir.Move:
		t.move(s)
	case lir.Call:
		t.call(s)
	case lir.Return:
		t.ret(s)
	default:
		panic("tile: unreachable statement variant")
	}
}

// cjump emits cmp + the matching conditional jump for a comparison
// condition, or a test-against-zero for an arbitrary boolean temporary.
func (t *Tiler) cjump(s lir.CJump) {
	if bin, ok := s.Cond.(lir.Binary); ok && isComparison(bin.Op) {
		left, right := t.cmpOperands(t.munch(bin.Left), t.munch(bin.Right))
		t.emit(asm.Instr{Op: asm.Cmp, Dst: left, Src: right, Uses: append(tempUses(left), tempUses(right)...)})
		t.emit(asm.Instr{Op: jumpFor(bin.Op), Label: s.True})
		return
	}

	cond := t.toTemp(t.munch(s.Cond))
	t.emit(asm.Instr{Op: asm.Test, Dst: cond, Src: cond, Uses: tempUses(cond)})
	t.emit(asm.Instr{Op: asm.Jne, Label: s.True})
}

func isComparison(op hir.BinOp) bool {
	switch op {
	case hir.Eq, hir.Ne, hir.Lt, hir.Le, hir.Ge, hir.Gt:
		return true
	default:
		return false
	}
}

// move tiles Move(dst, src): a memory destination evaluates src into a
// temporary/immediate and stores; a temporary destination evaluates src
// straight into it where possible.
func (t *Tiler) move(s lir.Move) {
	if mem, ok := s.Dst.(lir.Mem); ok {
		addr := t.munchAddr(mem.Addr)
		src := t.munch(s.Src)
		if _, srcMem := src.(asm.MemOp); srcMem {
			src = t.toTemp(src)
		}
		t.emit(asm.Instr{Op: asm.Mov, Dst: asm.MemOp{Mem: addr}, Src: src,
			Uses: append(memUses(addr), tempUses(src)...)})
		return
	}

	dstTemp, ok := s.Dst.(lir.Temp)
	if !ok {
		panic("tile: move destination must be Memory or Temporary after canonization")
	}
	src := t.munch(s.Src)
	t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: dstTemp.Temp}, Src: src,
		Defs: []operand.Temporary{dstTemp.Temp}, Uses: tempUses(src)})
}

// call evaluates args left-to-right into the ABI argument registers
// (pushing overflow arguments onto the stack), emits call, then moves
// the return registers into Return(i) temporaries.
func (t *Tiler) call(s lir.Call) {
	// Args are evaluated left to right (source order matters for side
	// effects) but pushed in reverse, so the overflow argument at index 6
	// ends up at the lowest stack-slot offset above the return address,
	// matching the System V convention the register allocator's prologue
	// assumes when reading them back.
	vals := make([]asm.Op, len(s.Args))
	for i, a := range s.Args {
		vals[i] = t.munch(a)
	}
	for i := 0; i < len(vals); i++ {
		if i >= len(operand.ArgumentRegisters) {
			continue
		}
		reg := operand.FromRegister(operand.ArgumentRegisters[i])
		t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: reg}, Src: vals[i],
			Defs: []operand.Temporary{reg}, Uses: tempUses(vals[i])})
	}
	for i := len(vals) - 1; i >= len(operand.ArgumentRegisters); i-- {
		t.emit(asm.Instr{Op: asm.Push, Dst: vals[i], Uses: tempUses(vals[i])})
	}

	target := t.munch(s.Target)
	nRegArgs := len(s.Args)
	if nRegArgs > len(operand.ArgumentRegisters) {
		nRegArgs = len(operand.ArgumentRegisters)
	}
	argUses := make([]operand.Temporary, nRegArgs)
	for i := 0; i < nRegArgs; i++ {
		argUses[i] = operand.FromRegister(operand.ArgumentRegisters[i])
	}
	t.emit(asm.Instr{
		Op: asm.Call, Dst: target, NArgs: len(s.Args), NRets: s.NReturns,
		Defs: asm.ImplicitCallDefs(), Uses: append(argUses, tempUses(target)...),
	})

	// The caller owns the overflow-argument slots it pushed.
	if overflow := len(s.Args) - len(operand.ArgumentRegisters); overflow > 0 {
		rsp := operand.FromRegister(operand.RSP)
		t.emit(asm.Instr{Op: asm.Add, Dst: asm.TempOp{Temp: rsp},
			Src:  asm.ImmOp{Imm: operand.IntImmediate(8 * int64(overflow))},
			Defs: []operand.Temporary{rsp}, Uses: []operand.Temporary{rsp}})
	}

	for i := 0; i < s.NReturns && i < len(operand.ReturnRegisters); i++ {
		reg := operand.FromRegister(operand.ReturnRegisters[i])
		t.emit(asm.Instr{
			Op:   asm.Mov,
			Dst:  asm.TempOp{Temp: operand.Return(i)},
			Src:  asm.TempOp{Temp: reg},
			Defs: []operand.Temporary{operand.Return(i)},
			Uses: []operand.Temporary{reg},
		})
	}
}

// ret moves each return value into Return(i) then emits ret, which lists
// those Return(i) temporaries as its uses. No jump to the function's exit
// label is emitted; the register allocator expands each ret in place
// into the epilogue.
func (t *Tiler) ret(s lir.Return) {
	retUses := make([]operand.Temporary, len(s.Values))
	for i, v := range s.Values {
		val := t.munch(v)
		retUses[i] = operand.Return(i)
		t.emit(asm.Instr{Op: asm.Mov, Dst: asm.TempOp{Temp: operand.Return(i)}, Src: val,
			Defs: []operand.Temporary{operand.Return(i)}, Uses: tempUses(val)})
	}
	t.emit(asm.Instr{Op: asm.Ret, NRets: len(s.Values), Uses: retUses})
}
