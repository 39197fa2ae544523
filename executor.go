package gametime

import (
	"fmt"
	"strings"

	"github.com/gametime-project/gametime/ir"
)

// Executor performs backward symbolic execution: given an SSA operand
// and the path being analyzed, it produces the expression representing
// the operand's value at the point of its use.
type Executor struct {
	path  *Path
	cache map[traceKey]*Expr
}

// traceKey identifies one memoized trace: the operand plus whether the
// trace ran in complete mode.
type traceKey struct {
	op       *ir.Operand
	complete bool
}

// NewExecutor returns a new executor bound to a path.
func NewExecutor(path *Path) *Executor {
	return &Executor{
		path:  path,
		cache: make(map[traceKey]*Expr),
	}
}

// Trace returns the expression for op. In complete mode a non-temporary
// operand's defining instruction is expanded rather than short-circuited
// to its versioned leaf; the path analyzer uses this to obtain the
// right-hand side of assignments. Results are memoized per path;
// repeated requests return clones.
func (ex *Executor) Trace(op *ir.Operand, complete bool) (*Expr, error) {
	key := traceKey{op, complete}
	if e, ok := ex.cache[key]; ok {
		return e.Clone(), nil
	}
	e, err := ex.trace(op, complete)
	if err != nil {
		return nil, err
	}
	ex.cache[key] = e
	return e.Clone(), nil
}

func (ex *Executor) trace(op *ir.Operand, complete bool) (*Expr, error) {
	if op == nil {
		return nil, NewError(ErrInput, "null operand")
	}

	// Immediates. Floats are coerced to integers by truncation; the
	// analyzer never emits floating-point terms.
	if op.Imm != nil {
		if op.Imm.IsFloat {
			truncated := int64(op.Imm.Float)
			ex.path.warn(WarnFloatTruncated,
				"float immediate %g truncated to %d", op.Imm.Float, truncated)
			return NewConstantExpr(truncated, op.Bits()), nil
		}
		return NewConstantExpr(op.Imm.Int, op.Bits()), nil
	}

	if op.AddressOf {
		return ex.path.promoteAddressTaken(op)
	}

	if op.Memory {
		return ex.traceMemory(op)
	}

	// Non-temporary operands short-circuit to their (later versioned)
	// leaf: the per-block renaming carries their value between
	// assignments.
	if !op.Temporary && !complete {
		return ex.leafFor(op), nil
	}

	def := op.Def
	if def == nil || def.Kind == ir.KindStart || def.Kind == ir.KindChi {
		// Defined outside the path, a chi of the start, or undefined:
		// a fresh symbolic input.
		return ex.leafFor(op), nil
	}

	switch def.Kind {
	case ir.KindCall:
		// One distinct symbolic value per textual call site.
		name := fmt.Sprintf("%s%s@%d", ex.path.cfg.EFCPrefix, def.Callee, def.Line)
		return NewVariableExpr(name, op.Bits(), op.Type), nil
	case ir.KindCompare:
		return ex.traceCompare(def)
	case ir.KindPhi:
		return ex.tracePhi(def)
	case ir.KindValue:
		return ex.traceValue(def, op)
	case ir.KindSwitch:
		return nil, NewError(ErrInput, "switch instruction must be lowered to an if-chain")
	default:
		return nil, NewError(ErrInput, "unknown opcode kind in executor dispatch: %s", def.Kind)
	}
}

// leafFor emits a fresh Variable or ArrayVariable leaf for an operand
// with no on-path definition, stripped of language-mangling prefixes.
func (ex *Executor) leafFor(op *ir.Operand) *Expr {
	name := strings.TrimLeft(op.Name, "_")
	if name == "" {
		name = op.Name
	}
	if op.Type.IsPointer() || op.Type.IsUnmanagedArray() {
		e := NewArrayVariableExpr(name, ex.path.elementWidthOf(op.Type), op.Type)
		return e
	}
	return NewVariableExpr(name, op.Bits(), op.Type)
}

// traceMemory traces a *p or p->f operand: the base pointer is traced
// to its dereferencing function, displaced by the field's bit offset,
// and dereferenced. When the memory operand aliases the whole aggregate
// it reaches (same aggregate type), field decomposition is skipped.
func (ex *Executor) traceMemory(op *ir.Operand) (*Expr, error) {
	base, err := ex.Trace(op.Base, false)
	if err != nil {
		return nil, err
	}
	if alias, ok := ex.path.lookupAlias(base); ok {
		base = alias.Clone()
	}
	fn := ex.path.derefFunction(base)

	accessBits := op.Bits()
	if op.FieldOffset != 0 {
		referent := referentType(op.Base.Type)
		refBits := ex.path.cfg.WordSize
		if referent != nil {
			refBits = referent.Bits
		}
		fn = ex.path.addOffsetToPointer(fn,
			NewConstantExpr(int64(op.FieldOffset), ex.path.cfg.WordSize), refBits)
	}

	fieldAccess := true
	if op.Type.IsAggregate() && referentType(op.Base.Type) == op.Type {
		fieldAccess = false // aliasing: same aggregate type on both sides
	}
	return ex.path.dereference(fn, fieldAccess, accessBits)
}

// traceCompare synthesizes the comparison expression for a compare
// instruction, choosing the signed, unsigned, or float variant from the
// operand types.
func (ex *Executor) traceCompare(def *ir.Instr) (*Expr, error) {
	if len(def.Srcs) < 2 {
		return nil, NewError(ErrInput, "compare instruction with %d operands", len(def.Srcs))
	}
	lhs, err := ex.Trace(def.Srcs[0], false)
	if err != nil {
		return nil, err
	}
	rhs, err := ex.Trace(def.Srcs[1], false)
	if err != nil {
		return nil, err
	}
	op, err := compareOperator(def.Op, def.Srcs[0].Type, def.Srcs[1].Type)
	if err != nil {
		return nil, err
	}
	return NewCompareExpr(op, lhs, rhs, ex.path.cfg.WordSize), nil
}

func compareOperator(sub ir.ValueOp, a, b *ir.Type) (*Operator, error) {
	flt := a.IsFloat() || b.IsFloat()
	uns := a != nil && b != nil && a.Unsigned && b.Unsigned
	switch sub {
	case ir.CmpEq:
		if flt {
			return Op(OpFEq), nil
		}
		return Op(OpEq), nil
	case ir.CmpNe:
		if flt {
			return Op(OpFNe), nil
		}
		return Op(OpNe), nil
	case ir.CmpLt:
		if flt {
			return Op(OpFLt), nil
		} else if uns {
			return Op(OpULt), nil
		}
		return Op(OpSLt), nil
	case ir.CmpLe:
		if flt {
			return Op(OpFLe), nil
		} else if uns {
			return Op(OpULe), nil
		}
		return Op(OpSLe), nil
	case ir.CmpGt:
		if flt {
			return Op(OpFGt), nil
		} else if uns {
			return Op(OpUGt), nil
		}
		return Op(OpSGt), nil
	case ir.CmpGe:
		if flt {
			return Op(OpFGe), nil
		} else if uns {
			return Op(OpUGe), nil
		}
		return Op(OpSGe), nil
	default:
		return nil, NewError(ErrInput, "unknown compare subkind: %d", int(sub))
	}
}

// tracePhi selects the phi source whose defining block is on the path
// and latest in path order, then recurses on it. Ties cannot occur on
// an acyclic single path.
func (ex *Executor) tracePhi(def *ir.Instr) (*Expr, error) {
	best := -1
	var src *ir.Operand
	for _, ps := range def.Phi {
		if idx, ok := ex.path.blockIndex(ps.Block); ok && idx > best {
			best = idx
			src = ps.Src
		}
	}
	if src == nil {
		return nil, NewError(ErrInput, "phi with no source block on the path (line %d)", def.Line)
	}
	return ex.Trace(src, false)
}

// traceValue traces an operand defined by a value instruction:
// arithmetic, bitwise, casts, and subscripts.
func (ex *Executor) traceValue(def *ir.Instr, dst *ir.Operand) (*Expr, error) {
	switch def.Op {
	case ir.Assign:
		return ex.Trace(def.Srcs[0], false)
	case ir.Convert:
		return ex.traceConvert(def, dst)
	case ir.Subscript:
		return ex.traceSubscript(def, dst)
	case ir.Neg:
		x, err := ex.Trace(def.Srcs[0], false)
		if err != nil {
			return nil, err
		}
		return NewUnaryExpr(Op(OpNegate), x), nil
	case ir.BitNot:
		x, err := ex.Trace(def.Srcs[0], false)
		if err != nil {
			return nil, err
		}
		return NewUnaryExpr(Op(OpBitComplement), x), nil
	case ir.BoolNot:
		// !x lowers to ite(x = 0, 1, 0) at the destination width.
		x, err := ex.Trace(def.Srcs[0], false)
		if err != nil {
			return nil, err
		}
		zero := NewConstantExpr(0, x.Width)
		cond := NewCompareExpr(Op(OpEq), x, zero, ex.path.cfg.WordSize)
		return NewIteExpr(cond,
			NewConstantExpr(1, dst.Bits()),
			NewConstantExpr(0, dst.Bits())), nil
	}

	if dst.Type.IsPointer() && def.Op == ir.Add {
		return ex.tracePointerArithmetic(def)
	}

	lhs, err := ex.Trace(def.Srcs[0], false)
	if err != nil {
		return nil, err
	}
	rhs, err := ex.Trace(def.Srcs[1], false)
	if err != nil {
		return nil, err
	}

	var op *Operator
	switch def.Op {
	case ir.Add:
		op = Op(OpAdd)
	case ir.Sub:
		op = Op(OpSub)
	case ir.Mul:
		op = Op(OpMul)
	case ir.Div:
		// Division is unsigned only when both operands are unsigned.
		if def.Srcs[0].Type.Unsigned && def.Srcs[1].Type.Unsigned {
			op = Op(OpUDiv)
		} else {
			op = Op(OpSDiv)
		}
	case ir.Rem:
		op = Op(OpRem)
	case ir.BitAnd:
		op = Op(OpBitAnd)
	case ir.BitOr:
		op = Op(OpBitOr)
	case ir.BitXor:
		op = Op(OpBitXor)
	case ir.ShiftLeft:
		op = Op(OpShl)
	case ir.ShiftRight:
		// Logical shift iff the shifted operand is unsigned.
		if def.Srcs[0].Type.Unsigned {
			op = Op(OpLShr)
		} else {
			op = Op(OpAShr)
		}
	default:
		return nil, NewError(ErrInput, "unknown value subkind: %d (line %d)", int(def.Op), def.Line)
	}
	return NewBinaryExpr(op, lhs, rhs), nil
}

// traceConvert handles Convert instructions: conversions between
// pointer types preserve the source expression; scalar conversions
// adjust the bit size by extension or extraction.
func (ex *Executor) traceConvert(def *ir.Instr, dst *ir.Operand) (*Expr, error) {
	src, err := ex.Trace(def.Srcs[0], false)
	if err != nil {
		return nil, err
	}
	if dst.Type.IsPointer() && def.Srcs[0].Type.IsPointer() {
		out := src.Clone()
		out.Type = def.Srcs[0].Type
		return out, nil
	}
	return adjustBitSize(src, dst.Bits(), !def.Srcs[0].Type.Unsigned), nil
}

// adjustBitSize widens or narrows e to width: sign- or zero-extension
// when widening, extraction when narrowing.
func adjustBitSize(e *Expr, width uint, signed bool) *Expr {
	switch {
	case width == e.Width:
		return e
	case width < e.Width:
		return NewBitExtractExpr(e, 0, width-1)
	case signed:
		return NewSignExtendExpr(e, width-e.Width)
	default:
		return NewZeroExtendExpr(e, width-e.Width)
	}
}

// traceSubscript traces p[i]: the base pointer is dereferenced through
// the alias table, the index is scaled by the element width and folded
// into the dereferencing function, and the element reference is
// produced.
func (ex *Executor) traceSubscript(def *ir.Instr, dst *ir.Operand) (*Expr, error) {
	base, err := ex.Trace(def.Srcs[0], false)
	if err != nil {
		return nil, err
	}
	if alias, ok := ex.path.lookupAlias(base); ok {
		base = alias.Clone()
	}
	fn := ex.path.derefFunction(base)

	index, err := ex.Trace(def.Srcs[1], false)
	if err != nil {
		return nil, err
	}
	index = adjustBitSize(index, ex.path.cfg.WordSize, !def.Srcs[1].Type.Unsigned)

	elemBits := ex.path.elementWidthOf(def.Srcs[0].Type)
	offset := Simplify(NewBinaryExpr(Op(OpMul), index,
		NewConstantExpr(int64(elemBits), index.Width)))
	fn = ex.path.addOffsetToPointer(fn, offset, elemBits)

	if dst.Type.IsPointer() {
		// &p[i] and pointer-valued subscripts stay a pointer.
		return fn, nil
	}
	return ex.path.dereference(fn, true, dst.Bits())
}

// tracePointerArithmetic reshapes a pointer-typed addition as
// (base, offset): the augend is the pointer, the addend is scaled by
// the element width and folded back into the dereferencing function.
// The alias table is consulted only when the first source was a
// non-temporary operand.
func (ex *Executor) tracePointerArithmetic(def *ir.Instr) (*Expr, error) {
	lhs, err := ex.Trace(def.Srcs[0], false)
	if err != nil {
		return nil, err
	}
	rhs, err := ex.Trace(def.Srcs[1], false)
	if err != nil {
		return nil, err
	}

	base, addend := lhs, rhs
	if !def.Srcs[0].Type.IsPointer() && def.Srcs[1].Type.IsPointer() {
		base, addend = rhs, lhs
	}
	if base.Op.Code == OpAdd {
		var inner *Expr
		base, inner = augendAndAddend(base)
		addend = Simplify(NewBinaryExpr(Op(OpAdd), inner, addend))
	}
	if !def.Srcs[0].Temporary {
		if alias, ok := ex.path.lookupAlias(base); ok {
			base = alias.Clone()
		}
	}
	fn := ex.path.derefFunction(base)

	elemBits := ex.path.elementWidthOf(def.Srcs[0].Type)
	offset := Simplify(NewBinaryExpr(Op(OpMul), addend,
		NewConstantExpr(int64(elemBits), addend.Width)))
	return ex.path.addOffsetToPointer(fn, offset, elemBits), nil
}
