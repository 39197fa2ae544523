package gametime

import (
	"fmt"

	"github.com/gametime-project/gametime/ir"
)

// AggregateField records one field slice touched by an aggregate
// access: the declaring aggregate type, the synthesized field-array
// access expression, and the slice's position in bits.
type AggregateField struct {
	Type   *ir.Type
	Access *Expr
	Offset uint // start offset within the aggregate, in bits
	Bits   uint
}

// aggregateOffset is the value of the aggregate-offset table: the
// canonical base aggregate plus the bit displacement into it.
type aggregateOffset struct {
	base   *Expr
	offset *Expr
}

// baseAggregate resolves agg through the aggregate-offset table to its
// canonical base and accumulated bit offset. Offsets compose through
// lookup.
func (p *Path) baseAggregate(agg *Expr) (*Expr, *Expr) {
	base := agg
	offset := NewConstantExpr(0, p.cfg.WordSize)
	for {
		v, ok := p.aggregates.Get(base)
		if !ok {
			break
		}
		ao := v.(aggregateOffset)
		base = ao.base
		offset = Simplify(NewBinaryExpr(Op(OpAdd), offset, ao.offset))
	}
	return base, offset
}

// aggregateAccess resolves an access of accessBits at a bit offset into
// an aggregate expression, producing the field slices recombined into a
// single expression of the access width.
func (p *Path) aggregateAccess(agg, offset *Expr, accessBits uint) (*Expr, error) {
	base, baseOff := p.baseAggregate(agg)
	total := Simplify(NewBinaryExpr(Op(OpAdd), offset, baseOff))
	tv, ok := total.ConstValue()
	if !ok {
		return nil, NewError(ErrUnsupported, "non-constant offset in aggregate access: %s", total)
	}
	fields, err := p.aggregateFields(base, base.Type, uint(tv.Uint64()), accessBits)
	if err != nil {
		return nil, err
	}
	return p.concatFields(fields, uint(tv.Uint64()), accessBits), nil
}

// aggregateFields enumerates the declared fields of the aggregate that
// overlap the accessed bit range [offset, offset+accessBits-1]. Nested
// aggregates recurse with composed offsets; fixed-size array fields
// whose element width differs from the access decompose into
// per-element synthetic fields.
func (p *Path) aggregateFields(agg *Expr, aggType *ir.Type, offset, accessBits uint) ([]AggregateField, error) {
	assert(aggType.IsAggregate(), "aggregate fields: not an aggregate type: %s", aggType)

	var out []AggregateField
	end := offset + accessBits
	for _, f := range aggType.Fields {
		fEnd := f.Offset + f.Type.Bits
		if fEnd <= offset || f.Offset >= end {
			continue
		}

		switch {
		case f.Type.IsAggregate():
			nested, err := p.aggregateFields(agg, f.Type, clampSub(offset, f.Offset), accessBits)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				n.Offset += f.Offset
				out = append(out, n)
			}

		case f.Type.IsUnmanagedArray() && f.Type.Elem.Bits != accessBits:
			elemBits := f.Type.Elem.Bits
			for k := uint(0); k < f.Type.Length; k++ {
				elOff := f.Offset + k*elemBits
				if elOff+elemBits <= offset || elOff >= end {
					continue
				}
				name := fmt.Sprintf("%s@%d", f.Name, k)
				out = append(out, AggregateField{
					Type:   aggType,
					Access: p.fieldAccess(agg, aggType, name, elemBits),
					Offset: elOff,
					Bits:   elemBits,
				})
			}

		default:
			out = append(out, AggregateField{
				Type:   aggType,
				Access: p.fieldAccess(agg, aggType, f.Name, f.Type.Bits),
				Offset: f.Offset,
				Bits:   f.Type.Bits,
			})
		}
	}
	return out, nil
}

func clampSub(a, b uint) uint {
	if a < b {
		return 0
	}
	return a - b
}

// fieldAccess synthesizes the field-array access for one aggregate
// field: a uniquely named array variable indexed by the aggregate's
// index carrier. Two aggregates that reduce to the same base share
// these field arrays, so cast-aliased routes resolve to the same
// storage.
func (p *Path) fieldAccess(agg *Expr, aggType *ir.Type, fieldName string, fieldBits uint) *Expr {
	name := p.cfg.FieldPrefix + fieldName + p.cfg.AggregatePrefix + aggType.Name
	arr := NewArrayVariableExpr(name, fieldBits, nil)
	return NewArrayAccessExpr(arr, p.indexCarrier(agg), fieldBits)
}

// indexCarrier returns the index expression through which an aggregate
// is reached: its subscript when the aggregate is an array element,
// zero for a standalone aggregate.
func (p *Path) indexCarrier(agg *Expr) *Expr {
	if agg.Op.Code == OpArray {
		return agg.Param(1).Clone()
	}
	return NewConstantExpr(0, p.cfg.WordSize)
}

// concatFields recombines the overlapping field slices into one
// expression of the access width. Each slice outside the access range
// is trimmed with BitExtract; field order reverses between little- and
// big-endian targets. Incomplete coverage at the high end is
// zero-padded, a conservative over-approximation surfaced as a warning.
func (p *Path) concatFields(fields []AggregateField, offset, accessBits uint) *Expr {
	end := offset + accessBits

	// Ascending field offset order; slices trimmed to the access range.
	var slices []*Expr
	covered := uint(0)
	for _, f := range fields {
		lo, hi := uint(0), f.Bits-1
		if f.Offset < offset {
			lo = offset - f.Offset
		}
		if f.Offset+f.Bits > end {
			hi = end - f.Offset - 1
		}
		slice := f.Access
		if lo != 0 || hi != f.Bits-1 {
			slice = NewBitExtractExpr(f.Access, lo, hi)
		}
		slices = append(slices, slice)
		covered += hi - lo + 1
	}

	if covered < accessBits {
		pad := NewConstantExpr(0, accessBits-covered)
		slices = append(slices, pad)
		p.warn(WarnAggregatePadded,
			"aggregate access covers %d of %d bits at offset %d; high bits zero-padded",
			covered, accessBits, offset)
	}

	// Lowest-offset field is the least significant on little-endian
	// targets, the most significant on big-endian.
	result := slices[0]
	for _, s := range slices[1:] {
		if p.cfg.BigEndian {
			result = NewConcatExpr(result, s)
		} else {
			result = NewConcatExpr(s, result)
		}
	}
	return result
}
