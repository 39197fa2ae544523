// Package ir defines the read-only SSA intermediate representation the
// analyzer consumes. Producers populate these nodes; the analyzer never
// mutates them.
package ir

import "fmt"

// InstrKind enumerates opcode kinds.
type InstrKind int

const (
	KindValue = InstrKind(iota + 1)
	KindCompare
	KindCall
	KindPhi
	KindStart
	KindChi
	KindLabel
	KindBranch
	KindSwitch
)

// String returns the string representation of the instruction kind.
func (k InstrKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindCompare:
		return "compare"
	case KindCall:
		return "call"
	case KindPhi:
		return "phi"
	case KindStart:
		return "start"
	case KindChi:
		return "chi"
	case KindLabel:
		return "label"
	case KindBranch:
		return "branch"
	case KindSwitch:
		return "switch"
	default:
		return fmt.Sprintf("InstrKind<%d>", int(k))
	}
}

// ValueOp enumerates opcode subkinds of value and compare instructions.
type ValueOp int

const (
	Assign = ValueOp(iota + 1)
	Add
	Sub
	Mul
	Div
	Rem
	Neg
	BitNot
	BoolNot
	BitAnd
	BitOr
	BitXor
	ShiftLeft
	ShiftRight
	Convert
	Subscript

	// Compare subkinds.
	CmpEq
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// TypeKind enumerates source-level type shapes.
type TypeKind int

const (
	Scalar = TypeKind(iota + 1)
	Float
	Pointer
	UnmanagedArray
	Aggregate
)

// Type describes a source-level type as the analyzer needs it:
// bit-accurate sizes plus enough shape to resolve pointers, fixed-size
// arrays, and aggregate fields.
type Type struct {
	Kind     TypeKind
	Name     string
	Bits     uint
	Unsigned bool

	Referent *Type   // Pointer: pointed-to type
	Elem     *Type   // UnmanagedArray: element type
	Length   uint    // UnmanagedArray: element count
	Fields   []Field // Aggregate: fields in declaration order
}

// Field describes one aggregate field with its bit offset and type.
type Field struct {
	Name   string
	Offset uint // bit offset within the aggregate
	Type   *Type
}

// IsPointer returns true if t is a pointer type.
func (t *Type) IsPointer() bool { return t != nil && t.Kind == Pointer }

// IsUnmanagedArray returns true if t is a fixed-size array type.
func (t *Type) IsUnmanagedArray() bool { return t != nil && t.Kind == UnmanagedArray }

// IsAggregate returns true if t is a struct or union type.
func (t *Type) IsAggregate() bool { return t != nil && t.Kind == Aggregate }

// IsFloat returns true if t is a floating-point type.
func (t *Type) IsFloat() bool { return t != nil && t.Kind == Float }

// String returns a short rendering of the type.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Pointer:
		return "*" + t.Referent.String()
	case UnmanagedArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Length)
	default:
		if t.Name != "" {
			return t.Name
		}
		return fmt.Sprintf("i%d", t.Bits)
	}
}

// Immediate is a compile-time constant operand value.
type Immediate struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// Operand represents one SSA operand. Identity is pointer identity.
type Operand struct {
	Name      string
	Type      *Type
	Temporary bool
	AddressOf bool       // the operand is &base
	Imm       *Immediate // non-nil for immediates
	Def       *Instr     // defining instruction; nil if undefined or off-path

	// Memory operands (*p, p->f) carry the traced base pointer operand
	// and the accessed field's bit offset and size.
	Memory      bool
	Base        *Operand
	FieldOffset uint
	FieldBits   uint
}

// Bits returns the operand's bit size.
func (o *Operand) Bits() uint {
	if o.Memory && o.FieldBits != 0 {
		return o.FieldBits
	}
	if o.Type != nil {
		return o.Type.Bits
	}
	return 0
}

// String returns the operand name, or a rendering of its immediate.
func (o *Operand) String() string {
	if o.Imm != nil {
		if o.Imm.IsFloat {
			return fmt.Sprintf("%g", o.Imm.Float)
		}
		return fmt.Sprintf("%d", o.Imm.Int)
	}
	if o.Memory {
		return "*" + o.Base.String()
	}
	return o.Name
}

// PhiSource pairs a phi operand with its defining block.
type PhiSource struct {
	Src   *Operand
	Block int
}

// Instr represents one SSA instruction.
type Instr struct {
	Kind   InstrKind
	Op     ValueOp
	Dsts   []*Operand
	Srcs   []*Operand
	Line   int
	Block  *Block
	Phi    []PhiSource // KindPhi only
	Callee string      // KindCall only
}

// Dst returns the sole destination operand, or nil.
func (in *Instr) Dst() *Operand {
	if len(in.Dsts) == 0 {
		return nil
	}
	return in.Dsts[0]
}

// Block represents one basic block.
type Block struct {
	ID     int
	Instrs []*Instr
	Succs  []int // branch: Succs[0] is the true edge, Succs[1] the false edge
}

// Branch returns the block's terminating branch instruction, or nil.
func (b *Block) Branch() *Instr {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		if b.Instrs[i].Kind == KindBranch {
			return b.Instrs[i]
		}
	}
	return nil
}

// Unit represents one function's instructions and flow graph.
type Unit struct {
	Name   string
	Blocks []*Block
}

// Block returns the block with the given id, or nil.
func (u *Unit) Block(id int) *Block {
	for _, b := range u.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}
