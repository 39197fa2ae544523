package gametime

import (
	"strconv"
	"strings"
)

// postProcess runs the fixed pipeline over the accumulated conditions:
// array dimensions, index replacement, access witnesses, Array-to-
// Select lowering, and divisor guards.
func (p *Path) postProcess() error {
	p.computeArrayDimensions()
	p.replaceIndices()
	p.recordArrayAccesses()
	p.lowerArrayAccesses()
	p.appendDivisorGuards()
	p.collectVariables()
	return nil
}

// computeArrayDimensions records the dimension list for every array
// variable referenced by the conditions, memoized per base name.
func (p *Path) computeArrayDimensions() {
	for _, c := range p.conditions {
		c.Expr.Walk(func(e *Expr) {
			if e.Op.Code != OpArrayVariable {
				return
			}
			name := baseName(e.Value)
			if _, ok := p.arrayDims[name]; ok {
				return
			}
			if e.Type != nil {
				p.arrayDims[name] = p.arrayDimensionsOf(e.Type)
			} else {
				// Synthesized field arrays: one index level.
				p.arrayDims[name] = []uint{p.cfg.WordSize, e.Width}
			}
		})
	}
}

// replaceIndices rewrites every array and store access so its index is
// a bare temporary variable: the equality __gtINDEXk = <original> is
// appended, plus a bounds condition when the array has a fixed size.
// Under flat modelling a concatenated index splits along the boundary
// and each half is replaced independently.
func (p *Path) replaceIndices() {
	n := len(p.conditions)
	for ci := 0; ci < n; ci++ {
		c := p.conditions[ci]
		// Rewrite before storing back: replaceIndex appends conditions,
		// which may reallocate the slice mid-iteration.
		rewritten := c.Expr.Rewrite(func(e *Expr) *Expr {
			if e.Op.Code != OpArray && e.Op.Code != OpStore && e.Op.Code != OpSelect {
				return e
			}
			idx := e.Param(1)
			if p.isTempIndex(idx) {
				return e
			}
			if p.cfg.FlatArrays && idx.Op.Code == OpConcat {
				msb := p.replaceIndex(idx.Param(0), c.BlockID, 0)
				lsb := p.replaceIndex(idx.Param(1), c.BlockID, 0)
				return e.WithParam(1, NewConcatExpr(msb, lsb))
			}
			return e.WithParam(1, p.replaceIndex(idx, c.BlockID, p.arrayLengthFor(e.Param(0))))
		})
		p.conditions[ci].Expr = rewritten
	}
}

// replaceIndex synthesizes the next temporary index for idx, appending
// its defining equality and, when length is non-zero, the bounds pair
// 0 <= tmp < length.
func (p *Path) replaceIndex(idx *Expr, blockID int, length uint) *Expr {
	k := p.tempIndexSeq
	p.tempIndexSeq++

	tmp := NewVariableExpr(p.cfg.TempIndexPrefix+strconv.Itoa(k), idx.Width, nil)
	p.tempIndexExprs[k] = idx.Clone()
	p.appendCondition(NewCompareExpr(Op(OpEq), tmp, idx, p.cfg.WordSize), blockID)

	if length > 0 {
		zero := NewConstantExpr(0, tmp.Width)
		bound := NewConstantExpr(int64(length), tmp.Width)
		lower := NewCompareExpr(Op(OpSLe), zero, tmp, p.cfg.WordSize)
		upper := NewCompareExpr(Op(OpSLt), tmp.Clone(), bound, p.cfg.WordSize)
		p.appendCondition(NewBinaryExpr(Op(OpAnd), lower, upper), blockID)
	}
	return tmp.Clone()
}

func (p *Path) isTempIndex(e *Expr) bool {
	return e.Op.Code == OpVariable && strings.HasPrefix(e.Value, p.cfg.TempIndexPrefix)
}

// arrayLengthFor returns the fixed element count of the accessed array
// level, or zero when the extent is unknown (plain pointers).
func (p *Path) arrayLengthFor(base *Expr) uint {
	depth := 0
	for base.Op.Code == OpArray || base.Op.Code == OpSelect {
		depth++
		base = base.Param(0)
	}
	if base.Op.Code != OpArrayVariable || base.Type == nil {
		return 0
	}
	t := base.Type
	for i := 0; i < depth && t != nil; i++ {
		t = referentType(t)
	}
	if t.IsUnmanagedArray() {
		return t.Length
	}
	return 0
}

// recordArrayAccesses walks the final conditions and records every
// access whose indices are all temporary index variables.
func (p *Path) recordArrayAccesses() {
	for _, c := range p.conditions {
		p.recordAccessesIn(c.Expr)
	}
}

func (p *Path) recordAccessesIn(e *Expr) {
	if e.Op.Code == OpArray || e.Op.Code == OpSelect || e.Op.Code == OpStore {
		var indices []int
		base := e
		complete := true
		for base.Op.Code == OpArray || base.Op.Code == OpSelect || base.Op.Code == OpStore {
			idx := base.Param(1)
			if n, ok := p.tempIndexNumber(idx); ok {
				indices = append([]int{n}, indices...)
			} else {
				complete = false
			}
			// Recurse into index and store value subtrees.
			p.recordAccessesIn(idx)
			if base.Op.Code == OpStore {
				p.recordAccessesIn(base.Param(2))
			}
			base = base.Param(0)
		}
		if complete && base.Op.Code == OpArrayVariable {
			p.accesses = append(p.accesses, ArrayAccess{
				Array:   baseName(base.Value),
				Indices: indices,
			})
		}
		return
	}
	for _, param := range e.Params {
		p.recordAccessesIn(param)
	}
}

// tempIndexNumber parses the temporary-index number from a replaced
// index variable.
func (p *Path) tempIndexNumber(e *Expr) (int, bool) {
	if !p.isTempIndex(e) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(e.Value, p.cfg.TempIndexPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// lowerArrayAccesses rewrites every Array access node to its array
// theory Select form.
func (p *Path) lowerArrayAccesses() {
	for ci := range p.conditions {
		p.conditions[ci].Expr = p.conditions[ci].Expr.Rewrite(func(e *Expr) *Expr {
			if e.Op.Code != OpArray {
				return e
			}
			return NewSelectExpr(e.Param(0), e.Param(1), e.Width)
		})
	}
}

// appendDivisorGuards appends b != 0 for every division or remainder
// subterm in any condition. The guard is emitted even when the divisor
// is a literal constant, and exactly once per distinct divisor.
func (p *Path) appendDivisorGuards() {
	var seen []*Expr
	n := len(p.conditions)
	for ci := 0; ci < n; ci++ {
		c := p.conditions[ci]
		c.Expr.Walk(func(e *Expr) {
			if e.Op.Code != OpSDiv && e.Op.Code != OpUDiv && e.Op.Code != OpRem {
				return
			}
			divisor := e.Param(1)
			for _, s := range seen {
				if s.Equal(divisor) {
					return
				}
			}
			seen = append(seen, divisor)
			zero := NewConstantExpr(0, divisor.Width)
			p.appendCondition(NewCompareExpr(Op(OpNe), divisor.Clone(), zero, p.cfg.WordSize), c.BlockID)
		})
	}
}

// collectVariables fills the referenced variable and array variable
// sets from the final conditions.
func (p *Path) collectVariables() {
	for _, c := range p.conditions {
		c.Expr.Walk(func(e *Expr) {
			switch e.Op.Code {
			case OpVariable:
				if _, ok := p.variables[e.Value]; !ok {
					p.variables[e.Value] = e.Clone()
				}
			case OpArrayVariable:
				if _, ok := p.arrayVariables[e.Value]; !ok {
					p.arrayVariables[e.Value] = e.Clone()
				}
				if _, ok := p.arrayDims[baseName(e.Value)]; !ok {
					if e.Type != nil {
						p.arrayDims[baseName(e.Value)] = p.arrayDimensionsOf(e.Type)
					} else {
						p.arrayDims[baseName(e.Value)] = []uint{p.cfg.WordSize, e.Width}
					}
				}
			}
		})
	}
}
