package gametime

import (
	"strconv"

	"github.com/gametime-project/gametime/ir"
)

// referentType returns the type one dereference level below t.
func referentType(t *ir.Type) *ir.Type {
	switch {
	case t.IsPointer():
		return t.Referent
	case t.IsUnmanagedArray():
		return t.Elem
	default:
		return nil
	}
}

// arrayDimensionsOf yields the index widths of each pointer or
// unmanaged-array level of t followed by the final element width.
// Aggregates collapse: an array of aggregates stops at the aggregate,
// which serves only as an index carrier.
func (p *Path) arrayDimensionsOf(t *ir.Type) []uint {
	var dims []uint
	for t != nil && (t.IsPointer() || t.IsUnmanagedArray()) {
		dims = append(dims, p.cfg.WordSize)
		t = referentType(t)
	}
	if t != nil {
		dims = append(dims, t.Bits)
	} else {
		dims = append(dims, p.cfg.WordSize)
	}
	return dims
}

// elementWidthOf returns the final element width of a pointer or array
// type.
func (p *Path) elementWidthOf(t *ir.Type) uint {
	dims := p.arrayDimensionsOf(t)
	return dims[len(dims)-1]
}

// derefFunction returns the Church-encoded dereferencing function for a
// pointer or array expression: one arity-2 function layer per index
// level, whose application with (index, extra-bit-offset) yields the
// dereferenced reference.
func (p *Path) derefFunction(base *Expr) *Expr {
	if base.Op.Code == OpFunction {
		return base.Clone()
	}
	t := base.Type
	assert(t != nil && (t.IsPointer() || t.IsUnmanagedArray()),
		"deref: not a pointer expression: %s", base)
	return p.derefFunctionLevel(base.Clone(), t)
}

func (p *Path) derefFunctionLevel(base *Expr, t *ir.Type) *Expr {
	ref := referentType(t)
	width := p.cfg.WordSize
	if ref != nil && !ref.IsPointer() && !ref.IsUnmanagedArray() {
		width = ref.Bits
	}
	fi := p.freshFormal()
	fo := p.freshFormal()
	access := NewArrayAccessExpr(base, fi, width)
	access.Type = ref
	body := NewOffsetExpr(access, fo)
	body.Type = ref
	if ref != nil && (ref.IsPointer() || ref.IsUnmanagedArray()) {
		body = p.derefFunctionLevel(body, ref)
	}
	fn := NewFunctionExpr([]*Expr{fi, fo}, body)
	fn.Type = t
	return fn
}

// freshFormal returns a fresh temporary variable usable as a function
// formal.
func (p *Path) freshFormal() *Expr {
	name := p.cfg.TempVarPrefix + strconv.Itoa(p.tempVarSeq)
	p.tempVarSeq++
	return NewVariableExpr(name, p.cfg.WordSize, nil)
}

// addOffsetToPointer displaces the dereferencing function fn by offset
// bits. The offset splits into an array index (offset / referentBits)
// and a remainder (offset mod referentBits), both added to the existing
// formals inside the body; the body is then simplified, which undoes
// exact pointer arithmetic such as (i*w)/w.
func (p *Path) addOffsetToPointer(fn, offset *Expr, referentBits uint) *Expr {
	assert(fn.Op.Code == OpFunction, "offset: not a dereferencing function: %s", fn.Op)
	assert(referentBits > 0, "offset: zero referent width")

	if offset.IsConstantValue(0) {
		return fn.Clone()
	}

	ref := NewConstantExpr(int64(referentBits), offset.Width)
	index := Simplify(NewBinaryExpr(Op(OpSDiv), offset, ref))
	rem := Simplify(NewBinaryExpr(Op(OpRem), offset, ref))

	formals := fn.Formals()
	fi, fo := formals[0], formals[1]
	body := fn.Body()
	body = body.Replace(fi, NewBinaryExpr(Op(OpAdd), fi, index))
	body = body.Replace(fo, NewBinaryExpr(Op(OpAdd), fo, rem))
	body = Simplify(body)

	out := NewFunctionExpr([]*Expr{fi.Clone(), fo.Clone()}, body)
	out.Type = fn.Type
	return out
}

// apply substitutes the outermost function layer's formals with args
// and returns the simplified body.
func (p *Path) apply(fn *Expr, args ...*Expr) *Expr {
	assert(fn.Op.Code == OpFunction, "apply: not a function literal: %s", fn.Op)
	formals := fn.Formals()
	assert(len(formals) == len(args), "apply: arity mismatch: %d != %d", len(formals), len(args))
	body := fn.Body()
	for i, formal := range formals {
		body = body.Replace(formal, args[i])
	}
	return Simplify(body)
}

// dereference applies the dereferencing function with (0, 0) and
// resolves the resulting Offset references. fieldAccess selects whether
// aggregate bases decompose into field accesses or stay whole (the
// aliasing case); accessBits is the width of the requested access.
func (p *Path) dereference(fn *Expr, fieldAccess bool, accessBits uint) (*Expr, error) {
	zero := NewConstantExpr(0, p.cfg.WordSize)
	applied := p.apply(fn, zero, zero.Clone())
	return p.resolveReferences(applied, fieldAccess, accessBits)
}

// resolveReferences walks an applied dereference result, resolving each
// Offset node: aggregate bases decompose into field accesses (or stay
// aliased), zero offsets collapse to the base, and non-zero residual
// offsets from aliasing casts are preserved. Alias table entries are
// applied at every node.
func (p *Path) resolveReferences(e *Expr, fieldAccess bool, accessBits uint) (*Expr, error) {
	var firstErr error
	out := e.Rewrite(func(n *Expr) *Expr {
		if alias, ok := p.lookupAlias(n); ok {
			return alias.Clone()
		}
		if n.Op.Code != OpOffset {
			return n
		}
		base, off := n.Param(0), n.Param(1)
		if base.Type.IsAggregate() {
			if !fieldAccess {
				return base
			}
			resolved, err := p.aggregateAccess(base, off, accessBits)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return n
			}
			return resolved
		}
		if off.IsConstantValue(0) {
			return base
		}
		return n // aliasing cast: residual offset preserved
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// augendAndAddend decomposes a pointer-valued expression into its base
// and displacement.
func augendAndAddend(e *Expr) (base, addend *Expr) {
	if e.Op.Code == OpAdd {
		return e.Param(0), e.Param(1)
	}
	return e, NewConstantExpr(0, e.Width)
}
