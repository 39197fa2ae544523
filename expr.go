package gametime

import (
	"fmt"
	"hash/fnv"
	"io"
	"math/big"
	"strings"

	"github.com/gametime-project/gametime/ir"
)

// Expr represents an immutable, bit-accurate symbolic expression tree.
// Leaves (nil-arity operators) carry a string value and no parameters;
// internal nodes carry ordered parameters. Type optionally records the
// source-level type the expression was traced from.
type Expr struct {
	Op     *Operator
	Width  uint
	Value  string
	Params []*Expr
	Type   *ir.Type
}

// NewConstantExpr returns a constant expression holding the decimal
// representation of value.
func NewConstantExpr(value int64, width uint) *Expr {
	return &Expr{Op: Op(OpConstant), Width: width, Value: fmt.Sprintf("%d", value)}
}

// NewConstantExprFromString returns a constant expression from a decimal
// literal. A leading '-' is permitted.
func NewConstantExprFromString(value string, width uint) *Expr {
	_, ok := new(big.Int).SetString(value, 10)
	assert(ok, "constant: invalid decimal literal: %q", value)
	return &Expr{Op: Op(OpConstant), Width: width, Value: value}
}

// NewVariableExpr returns a variable leaf.
func NewVariableExpr(name string, width uint, typ *ir.Type) *Expr {
	return &Expr{Op: Op(OpVariable), Width: width, Value: name, Type: typ}
}

// NewArrayVariableExpr returns an array variable leaf.
func NewArrayVariableExpr(name string, width uint, typ *ir.Type) *Expr {
	return &Expr{Op: Op(OpArrayVariable), Width: width, Value: name, Type: typ}
}

// NewTrueExpr returns the boolean true leaf at the given width.
func NewTrueExpr(width uint) *Expr {
	return &Expr{Op: Op(OpTrue), Width: width, Value: "true"}
}

// NewFalseExpr returns the boolean false leaf at the given width.
func NewFalseExpr(width uint) *Expr {
	return &Expr{Op: Op(OpFalse), Width: width, Value: "false"}
}

// NewBoolExpr returns the boolean leaf for value at the given width.
func NewBoolExpr(value bool, width uint) *Expr {
	if value {
		return NewTrueExpr(width)
	}
	return NewFalseExpr(width)
}

// NewUnaryExpr returns a unary expression.
func NewUnaryExpr(op *Operator, x *Expr) *Expr {
	assert(op.Arity == ArityUnary, "unary: operator arity mismatch: %s", op)
	return &Expr{Op: op, Width: x.Width, Params: []*Expr{x}}
}

// NewBinaryExpr returns a binary arithmetic, bitwise, or logical
// expression. The result width follows the left operand.
func NewBinaryExpr(op *Operator, lhs, rhs *Expr) *Expr {
	assert(op.Arity == ArityBinary, "binary: operator arity mismatch: %s", op)
	if op.IsArithmetic() || op.IsBitwise() {
		assert(lhs.Width == rhs.Width, "binary: width mismatch: op=%s %d != %d", op, lhs.Width, rhs.Width)
	}
	return &Expr{Op: op, Width: lhs.Width, Params: []*Expr{lhs, rhs}, Type: lhs.Type}
}

// NewCompareExpr returns a comparison expression. Comparison results
// carry the machine word width rather than a single bit so that all
// sub-terms stay in uniform bitvector shape.
func NewCompareExpr(op *Operator, lhs, rhs *Expr, width uint) *Expr {
	assert(op.IsCompare(), "compare: not a comparison operator: %s", op)
	assert(lhs.Width == rhs.Width, "compare: width mismatch: op=%s %d != %d", op, lhs.Width, rhs.Width)
	return &Expr{Op: op, Width: width, Params: []*Expr{lhs, rhs}}
}

// NewIteExpr returns an if-then-else expression.
func NewIteExpr(cond, a, b *Expr) *Expr {
	assert(a.Width == b.Width, "ite: arm width mismatch: %d != %d", a.Width, b.Width)
	return &Expr{Op: Op(OpIte), Width: a.Width, Params: []*Expr{cond, a, b}, Type: a.Type}
}

// NewConcatExpr returns the concatenation of msb and lsb. The result
// width is the sum of the parameter widths.
func NewConcatExpr(msb, lsb *Expr) *Expr {
	return &Expr{Op: Op(OpConcat), Width: msb.Width + lsb.Width, Params: []*Expr{msb, lsb}}
}

// NewZeroExtendExpr returns src zero-extended by count bits.
func NewZeroExtendExpr(src *Expr, count uint) *Expr {
	return &Expr{
		Op:     Op(OpZeroExtend),
		Width:  src.Width + count,
		Params: []*Expr{src, NewConstantExpr(int64(count), src.Width)},
		Type:   src.Type,
	}
}

// NewSignExtendExpr returns src sign-extended by count bits.
func NewSignExtendExpr(src *Expr, count uint) *Expr {
	return &Expr{
		Op:     Op(OpSignExtend),
		Width:  src.Width + count,
		Params: []*Expr{src, NewConstantExpr(int64(count), src.Width)},
		Type:   src.Type,
	}
}

// NewBitExtractExpr returns bits lo through hi of x, inclusive.
func NewBitExtractExpr(x *Expr, lo, hi uint) *Expr {
	assert(hi >= lo, "extract: inverted range: %d > %d", lo, hi)
	assert(hi < x.Width, "extract: out of bounds: %d >= %d", hi, x.Width)
	return &Expr{
		Op:    Op(OpBitExtract),
		Width: hi - lo + 1,
		Params: []*Expr{
			x,
			NewConstantExpr(int64(lo), x.Width),
			NewConstantExpr(int64(hi), x.Width),
		},
	}
}

// NewArrayAccessExpr returns the array access array[index] yielding an
// element of the given width.
func NewArrayAccessExpr(array, index *Expr, width uint) *Expr {
	return &Expr{Op: Op(OpArray), Width: width, Params: []*Expr{array, index}, Type: array.Type}
}

// NewOffsetExpr returns the reference (base . offset), base displaced by
// offset bits.
func NewOffsetExpr(base, offset *Expr) *Expr {
	return &Expr{Op: Op(OpOffset), Width: base.Width, Params: []*Expr{base, offset}, Type: base.Type}
}

// NewSelectExpr returns the array theory read select(array, index).
func NewSelectExpr(array, index *Expr, width uint) *Expr {
	return &Expr{Op: Op(OpSelect), Width: width, Params: []*Expr{array, index}, Type: array.Type}
}

// NewStoreExpr returns the array theory write store(array, index, value).
func NewStoreExpr(array, index, value *Expr) *Expr {
	return &Expr{Op: Op(OpStore), Width: array.Width, Params: []*Expr{array, index, value}, Type: array.Type}
}

// NewFunctionExpr returns a function literal with the given formals and
// body. Formals must be variable leaves.
func NewFunctionExpr(formals []*Expr, body *Expr) *Expr {
	for _, f := range formals {
		assert(f.Op.Code == OpVariable, "function: formal is not a variable: %s", f)
	}
	params := make([]*Expr, 0, len(formals)+1)
	params = append(params, formals...)
	params = append(params, body)
	return &Expr{Op: Op(OpFunction), Width: body.Width, Params: params, Type: body.Type}
}

// NewFunctionCallExpr returns the application of fn to args.
func NewFunctionCallExpr(fn *Expr, args ...*Expr) *Expr {
	params := make([]*Expr, 0, len(args)+1)
	params = append(params, fn)
	params = append(params, args...)
	return &Expr{Op: Op(OpFunctionCall), Width: fn.Width, Params: params}
}

// Formals returns the formal parameters of a function literal.
func (e *Expr) Formals() []*Expr {
	assert(e.Op.Code == OpFunction, "formals: not a function literal: %s", e.Op)
	return e.Params[:len(e.Params)-1]
}

// Body returns the body of a function literal.
func (e *Expr) Body() *Expr {
	assert(e.Op.Code == OpFunction, "body: not a function literal: %s", e.Op)
	return e.Params[len(e.Params)-1]
}

// Param returns the i-th parameter. Panics if i is out of range.
func (e *Expr) Param(i int) *Expr {
	assert(i >= 0 && i < len(e.Params), "param index out of range: %d (n=%d)", i, len(e.Params))
	return e.Params[i]
}

// WithParam returns a fresh expression with the i-th parameter replaced
// and the width re-derived from the new children.
func (e *Expr) WithParam(i int, p *Expr) *Expr {
	assert(i >= 0 && i < len(e.Params), "param index out of range: %d (n=%d)", i, len(e.Params))
	params := make([]*Expr, len(e.Params))
	copy(params, e.Params)
	params[i] = p
	other := &Expr{Op: e.Op, Width: e.Width, Value: e.Value, Params: params, Type: e.Type}
	other.Width = deriveWidth(other)
	return other
}

// deriveWidth recomputes an internal node's width from its children.
// Widths that do not depend on children (comparisons, extracts, array
// accesses) are preserved.
func deriveWidth(e *Expr) uint {
	switch {
	case e.Op.Code == OpConcat:
		return e.Param(0).Width + e.Param(1).Width
	case e.Op.Code == OpZeroExtend || e.Op.Code == OpSignExtend:
		count, ok := e.Param(1).ConstValue()
		assert(ok, "extend: non-constant extension count")
		return e.Param(0).Width + uint(count.Uint64())
	case e.Op.Code == OpIte:
		return e.Param(1).Width
	case e.Op.Code == OpFunction:
		return e.Body().Width
	case e.Op.IsArithmetic() || e.Op.IsBitwise():
		return e.Param(0).Width
	case e.Op.Arity == ArityUnary:
		return e.Param(0).Width
	default:
		return e.Width
	}
}

// Clone returns a deep copy of the expression.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	other := &Expr{Op: e.Op, Width: e.Width, Value: e.Value, Type: e.Type}
	if len(e.Params) > 0 {
		other.Params = make([]*Expr, len(e.Params))
		for i, p := range e.Params {
			other.Params[i] = p.Clone()
		}
	}
	return other
}

// Equal reports whether e and other are structurally equal modulo
// α-renaming of function formals: two function literals of the same
// arity compare equal when substituting the left formals with the right
// formals makes the bodies equal.
func (e *Expr) Equal(other *Expr) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Op != other.Op || e.Width != other.Width {
		return false
	}

	if e.Op.Code == OpFunction {
		if len(e.Params) != len(other.Params) {
			return false
		}
		body := e.Body()
		for i, formal := range e.Formals() {
			if formal.Width != other.Formals()[i].Width {
				return false
			}
			body = body.Replace(formal, other.Formals()[i])
		}
		return body.Equal(other.Body())
	}

	if e.Op.IsLeaf() {
		return e.Value == other.Value
	}
	if len(e.Params) != len(other.Params) {
		return false
	}
	for i := range e.Params {
		if !e.Params[i].Equal(other.Params[i]) {
			return false
		}
	}
	return true
}

// Replace returns a copy of e with every subexpression equal to needle
// (per α-aware equality) replaced by a clone of replacement.
func (e *Expr) Replace(needle, replacement *Expr) *Expr {
	if e.Equal(needle) {
		return replacement.Clone()
	}
	if e.Op.IsLeaf() {
		return e.Clone()
	}
	params := make([]*Expr, len(e.Params))
	for i, p := range e.Params {
		params[i] = p.Replace(needle, replacement)
	}
	other := &Expr{Op: e.Op, Width: e.Width, Value: e.Value, Params: params, Type: e.Type}
	other.Width = deriveWidth(other)
	return other
}

// Hash returns a hash consistent with α-aware equality: equal
// expressions hash equally, and α-equivalent function literals hash
// equally because formals are rendered positionally.
func (e *Expr) Hash() uint32 {
	h := fnv.New32a()
	var ctr int
	e.writeHash(h, map[string]string{}, &ctr)
	return h.Sum32()
}

func (e *Expr) writeHash(w io.Writer, bound map[string]string, ctr *int) {
	fmt.Fprintf(w, "%d:%d(", int(e.Op.Code), e.Width)
	if e.Op.IsLeaf() {
		if name, ok := bound[e.Value]; ok && e.Op.Code == OpVariable {
			io.WriteString(w, name)
		} else {
			io.WriteString(w, e.Value)
		}
	} else if e.Op.Code == OpFunction {
		inner := make(map[string]string, len(bound)+len(e.Params)-1)
		for k, v := range bound {
			inner[k] = v
		}
		for _, formal := range e.Formals() {
			inner[formal.Value] = fmt.Sprintf("%%%d", *ctr)
			*ctr++
		}
		for _, formal := range e.Formals() {
			fmt.Fprintf(w, "%d:", formal.Width)
		}
		e.Body().writeHash(w, inner, ctr)
	} else {
		for _, p := range e.Params {
			p.writeHash(w, bound, ctr)
		}
	}
	io.WriteString(w, ")")
}

// String returns the canonical S-expression-like rendering of the
// expression. The rendering is recomputed from the children, so it
// always reflects the current tree.
func (e *Expr) String() string {
	switch e.Op.Arity {
	case ArityNil:
		return e.Value
	case ArityUnary:
		return fmt.Sprintf("%s(%s)", e.Op.Symbol, e.Param(0))
	case ArityBinary:
		switch e.Op.Code {
		case OpArray:
			return fmt.Sprintf("%s[%s]", e.Param(0), e.Param(1))
		case OpOffset:
			return fmt.Sprintf("(%s . %s)", e.Param(0), e.Param(1))
		case OpConcat, OpZeroExtend, OpSignExtend, OpSelect, OpLet:
			return fmt.Sprintf("%s(%s, %s)", e.Op.Symbol, e.Param(0), e.Param(1))
		default:
			return fmt.Sprintf("(%s %s %s)", e.Param(0), e.Op.Symbol, e.Param(1))
		}
	case ArityTernary:
		return fmt.Sprintf("%s(%s, %s, %s)", e.Op.Symbol, e.Param(0), e.Param(1), e.Param(2))
	case ArityPolynary:
		if e.Op.Code == OpFunction {
			formals := make([]string, len(e.Params)-1)
			for i, f := range e.Formals() {
				formals[i] = f.String()
			}
			return fmt.Sprintf("(f (%s) %s)", strings.Join(formals, ", "), e.Body())
		}
		args := make([]string, len(e.Params)-1)
		for i, a := range e.Params[1:] {
			args[i] = a.String()
		}
		return fmt.Sprintf("(%s %s (%s))", e.Op.Symbol, e.Param(0), strings.Join(args, ", "))
	default:
		panic("unreachable")
	}
}

// ConstValue returns the integer value of a constant expression.
func (e *Expr) ConstValue() (*big.Int, bool) {
	if e.Op.Code != OpConstant {
		return nil, false
	}
	v, ok := new(big.Int).SetString(e.Value, 10)
	assert(ok, "constant: invalid decimal literal: %q", e.Value)
	return v, true
}

// IsConstant returns true if e is a constant leaf.
func (e *Expr) IsConstant() bool { return e.Op.Code == OpConstant }

// IsConstantValue returns true if e is a constant leaf equal to v.
func (e *Expr) IsConstantValue(v int64) bool {
	c, ok := e.ConstValue()
	return ok && c.IsInt64() && c.Int64() == v
}

// IsTrue returns true if e is the boolean true leaf.
func (e *Expr) IsTrue() bool { return e.Op.Code == OpTrue }

// IsFalse returns true if e is the boolean false leaf.
func (e *Expr) IsFalse() bool { return e.Op.Code == OpFalse }

// IsBoolean returns true if e yields a truth value: comparisons,
// connectives, negation of a boolean, and the boolean leaves.
func (e *Expr) IsBoolean() bool {
	if e.Op.Code == OpNot {
		return e.Param(0).IsBoolean()
	}
	return e.Op.IsBoolean()
}

// Walk calls fn for e and every subexpression in preorder.
func (e *Expr) Walk(fn func(*Expr)) {
	fn(e)
	for _, p := range e.Params {
		p.Walk(fn)
	}
}

// Rewrite rebuilds the tree bottom-up, applying fn to every node after
// its children have been rewritten. The receiver is not modified.
func (e *Expr) Rewrite(fn func(*Expr) *Expr) *Expr {
	if e.Op.IsLeaf() {
		return fn(e.Clone())
	}
	params := make([]*Expr, len(e.Params))
	for i, p := range e.Params {
		params[i] = p.Rewrite(fn)
	}
	other := &Expr{Op: e.Op, Width: e.Width, Value: e.Value, Params: params, Type: e.Type}
	other.Width = deriveWidth(other)
	return fn(other)
}
