// Package operand defines the machine-independent operands shared by LIR,
// abstract assembly, and the register allocator: temporaries, registers,
// labels, memory addresses, and immediates.
package operand

import (
	"fmt"

	deadlock "github.com/sasha-s/go-deadlock"

	"xic/internal/symbol"
)

// Register enumerates the 64-bit architectural registers of the target,
// plus the stack/base pointers. The set is exactly what the System V
// AMD64 ABI requires: the six argument registers, the two return/scratch
// registers RAX/RDX, the remaining caller- and callee-saved registers, and
// RSP/RBP.
type Register int

const (
	RAX Register = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = map[Register]string{
	RAX: "rax", RBX: "rbx", RCX: "rcx", RDX: "rdx",
	RSI: "rsi", RDI: "rdi", RBP: "rbp", RSP: "rsp",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("r?%d", int(r))
}

// CallerSaved lists the registers a `call` instruction defs, per the System
// V AMD64 convention: any value live across a call must not live in one of
// these.
var CallerSaved = []Register{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// CalleeSaved lists the registers a function must restore before
// returning if it clobbers them.
var CalleeSaved = []Register{RBX, RBP, R12, R13, R14, R15}

// ArgumentRegisters lists the registers used to pass the first six
// integer/pointer arguments, in order.
var ArgumentRegisters = []Register{RDI, RSI, RDX, RCX, R8, R9}

// ReturnRegisters lists the registers used to return the first two
// results; a third and beyond are written through a caller-provided
// return-area pointer.
var ReturnRegisters = []Register{RAX, RDX}

// TemporaryKind tags the variant of a Temporary.
type TemporaryKind int

const (
	// TempNamed names a temporary after a source-level symbol (e.g. a
	// user local variable materialized during canonization).
	TempNamed TemporaryKind = iota
	// TempArgument is the i'th incoming argument of the current function.
	TempArgument
	// TempReturn is the i'th outgoing return value of the current function.
	TempReturn
	// TempFresh is a compiler-minted temporary, unique within Category.
	TempFresh
	// TempRegister is a temporary pinned to a specific architectural
	// register, introduced by the register allocator or ABI lowering.
	TempRegister
)

// Category partitions the fresh-temporary counter so unrelated passes
// mint non-colliding names without sharing a single global sequence.
type Category string

const (
	CategoryTile   Category = "t"
	CategoryCanon  Category = "c"
	CategoryInline Category = "inl"
	CategoryRA     Category = "ra"
	CategoryPRE    Category = "pre"
)

// Temporary is a virtual register: a named source local, an argument or
// return slot, a compiler-fresh value, or (post-allocation) a pinned
// architectural register.
type Temporary struct {
	Kind     TemporaryKind
	Name     symbol.Symbol // TempNamed
	Index    int           // TempArgument, TempReturn
	Category Category      // TempFresh
	ID       int           // TempFresh
	Register Register      // TempRegister
}

func Named(name symbol.Symbol) Temporary { return Temporary{Kind: TempNamed, Name: name} }
func Argument(i int) Temporary           { return Temporary{Kind: TempArgument, Index: i} }
func Return(i int) Temporary             { return Temporary{Kind: TempReturn, Index: i} }
func FromRegister(r Register) Temporary  { return Temporary{Kind: TempRegister, Register: r} }

func (t Temporary) String() string {
	switch t.Kind {
	case TempNamed:
		return t.Name.String()
	case TempArgument:
		return fmt.Sprintf("_ARG%d", t.Index)
	case TempReturn:
		return fmt.Sprintf("_RET%d", t.Index)
	case TempFresh:
		return fmt.Sprintf("_%s%d", t.Category, t.ID)
	case TempRegister:
		return t.Register.String()
	default:
		panic("operand: unreachable temporary kind")
	}
}

// freshTemps guards the per-category monotonically increasing counters
// used to mint fresh temporaries. A single mutex is sufficient: minting is
// not on any hot path that would benefit from per-category locks.
var freshTemps = struct {
	mu      deadlock.Mutex
	counter map[Category]int
}{counter: make(map[Category]int)}

// FreshTemporary mints a new temporary in category, unique for the
// lifetime of the process.
func FreshTemporary(category Category) Temporary {
	freshTemps.mu.Lock()
	defer freshTemps.mu.Unlock()

	id := freshTemps.counter[category]
	freshTemps.counter[category] = id + 1
	return Temporary{Kind: TempFresh, Category: category, ID: id}
}

// LabelKind tags the variant of a Label.
type LabelKind int

const (
	LabelFixed LabelKind = iota
	LabelFresh
)

// Label names a jump target: either a fixed, source-derived symbol (a
// function's enter/exit labels, e.g.) or a compiler-fresh one minted
// during canonization, tiling, or an optimization pass.
type Label struct {
	Kind LabelKind
	Name symbol.Symbol // LabelFixed
	ID   int           // LabelFresh
}

func FixedLabel(name symbol.Symbol) Label { return Label{Kind: LabelFixed, Name: name} }

func (l Label) String() string {
	switch l.Kind {
	case LabelFixed:
		return l.Name.String()
	case LabelFresh:
		return fmt.Sprintf("_l%d", l.ID)
	default:
		panic("operand: unreachable label kind")
	}
}

var freshLabels = struct {
	mu      deadlock.Mutex
	counter int
}{}

// FreshLabel mints a new label, unique for the lifetime of the process.
func FreshLabel() Label {
	freshLabels.mu.Lock()
	defer freshLabels.mu.Unlock()

	id := freshLabels.counter
	freshLabels.counter++
	return Label{Kind: LabelFresh, ID: id}
}

// Scale is the multiplier applied to an index register in a Memory
// address; only these four values are encodable by the target ISA.
type Scale int

const (
	Scale1 Scale = 1
	Scale2 Scale = 2
	Scale4 Scale = 4
	Scale8 Scale = 8
)

// Memory is an effective-address expression: [base + index*scale + disp].
// Every field is optional except that at least one of Base/Index/Disp
// must be present for the address to be meaningful.
type Memory struct {
	Base       *Temporary
	Index      *Temporary
	Scale      Scale
	Disp       int64
	HasDisp    bool
	HasBase    bool
	HasIndex   bool
	LabelDisp  Label
	HasLabel   bool
}

func (m Memory) String() string {
	s := "["
	first := true
	if m.HasBase {
		s += m.Base.String()
		first = false
	}
	if m.HasIndex {
		if !first {
			s += " + "
		}
		s += fmt.Sprintf("%s*%d", m.Index.String(), m.Scale)
		first = false
	}
	if m.HasLabel {
		if !first {
			s += " + "
		}
		s += m.LabelDisp.String()
		first = false
	}
	if m.HasDisp {
		if !first && m.Disp >= 0 {
			s += fmt.Sprintf(" + %d", m.Disp)
		} else if !first {
			s += fmt.Sprintf(" - %d", -m.Disp)
		} else {
			s += fmt.Sprintf("%d", m.Disp)
		}
	}
	return s + "]"
}

// Immediate is a compile-time constant operand: a signed 64-bit integer
// or a label (used for address-of-label immediates like string literals).
type Immediate struct {
	IsLabel bool
	Integer int64
	Label   Label
}

func IntImmediate(v int64) Immediate   { return Immediate{Integer: v} }
func LabelImmediate(l Label) Immediate { return Immediate{IsLabel: true, Label: l} }

func (i Immediate) String() string {
	if i.IsLabel {
		return i.Label.String()
	}
	return fmt.Sprintf("%d", i.Integer)
}
