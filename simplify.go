package gametime

import "math/big"

// Simplify returns the simplified form of e. The rewriter is structural
// and operator-dispatched: constant folding, identity elimination, and
// exact distribution of division and remainder over constant-factor
// products and sums. Simplify(Simplify(e)) == Simplify(e).
func Simplify(e *Expr) *Expr {
	if e.Op.IsLeaf() {
		return e.Clone()
	}
	params := make([]*Expr, len(e.Params))
	for i, p := range e.Params {
		params[i] = Simplify(p)
	}
	other := &Expr{Op: e.Op, Width: e.Width, Value: e.Value, Params: params, Type: e.Type}
	other.Width = deriveWidth(other)
	return simplifyNode(other)
}

// simplifyNode applies the rewrite rules to a node whose children are
// already simplified.
func simplifyNode(e *Expr) *Expr {
	switch e.Op.Code {
	case OpAdd:
		return simplifyAdd(e)
	case OpSub:
		return simplifySub(e)
	case OpMul:
		return simplifyMul(e)
	case OpSDiv, OpUDiv:
		return simplifyDiv(e)
	case OpRem:
		return simplifyRem(e)
	case OpIte:
		return simplifyIte(e)
	case OpEq, OpNe:
		return simplifyEq(e)
	default:
		return e
	}
}

func simplifyAdd(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	if lv, ok := lhs.ConstValue(); ok {
		if rv, ok := rhs.ConstValue(); ok {
			return NewConstantExprFromString(new(big.Int).Add(lv, rv).String(), e.Width)
		}
		if lv.Sign() == 0 {
			return rhs
		}
	}
	if rhs.IsConstantValue(0) {
		return lhs
	}
	return e
}

func simplifySub(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	if lv, ok := lhs.ConstValue(); ok {
		if rv, ok := rhs.ConstValue(); ok {
			return NewConstantExprFromString(new(big.Int).Sub(lv, rv).String(), e.Width)
		}
	}
	if rhs.IsConstantValue(0) {
		return lhs
	}
	return e
}

// simplifyMul folds constant products, including a constant with a
// leading minus times another constant. Double negation is left alone.
func simplifyMul(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	if lv, ok := lhs.ConstValue(); ok {
		if rv, ok := rhs.ConstValue(); ok {
			return NewConstantExprFromString(new(big.Int).Mul(lv, rv).String(), e.Width)
		}
		if lv.Sign() == 0 {
			return NewConstantExpr(0, e.Width)
		}
		if lv.IsInt64() && lv.Int64() == 1 {
			return rhs
		}
	}
	if rhs.IsConstantValue(0) {
		return NewConstantExpr(0, e.Width)
	}
	if rhs.IsConstantValue(1) {
		return lhs
	}
	return e
}

func simplifyDiv(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	rv, rok := rhs.ConstValue()
	if rok && rv.Sign() != 0 {
		if lv, ok := lhs.ConstValue(); ok {
			return NewConstantExprFromString(new(big.Int).Quo(lv, rv).String(), e.Width)
		}
		if rv.IsInt64() && rv.Int64() == 1 {
			return lhs
		}
		// Undo pointer arithmetic: distribute over products and sums
		// whose terms the divisor divides exactly.
		if divides(lhs, rv) {
			return divideBy(lhs, rv, e.Width)
		}
	}
	return e
}

func simplifyRem(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	rv, rok := rhs.ConstValue()
	if rok && rv.Sign() != 0 {
		if lv, ok := lhs.ConstValue(); ok {
			return NewConstantExprFromString(new(big.Int).Rem(lv, rv).String(), e.Width)
		}
		if rv.IsInt64() && rv.Int64() == 1 {
			return NewConstantExpr(0, e.Width)
		}
		if divides(lhs, rv) {
			return NewConstantExpr(0, e.Width)
		}
	}
	return e
}

func simplifyIte(e *Expr) *Expr {
	cond, a, b := e.Param(0), e.Param(1), e.Param(2)
	if cond.IsTrue() {
		return a
	}
	if cond.IsFalse() {
		return b
	}
	return e
}

func simplifyEq(e *Expr) *Expr {
	lhs, rhs := e.Param(0), e.Param(1)
	lv, lok := lhs.ConstValue()
	rv, rok := rhs.ConstValue()
	if !lok || !rok {
		return e
	}
	eq := lv.Cmp(rv) == 0
	if e.Op.Code == OpNe {
		eq = !eq
	}
	return NewBoolExpr(eq, e.Width)
}

// divides reports whether d divides every term of e exactly: constants
// divisible by d, products with a divisible constant factor, and sums
// or differences of such terms.
func divides(e *Expr, d *big.Int) bool {
	switch e.Op.Code {
	case OpConstant:
		v, _ := e.ConstValue()
		return new(big.Int).Rem(v, d).Sign() == 0
	case OpMul:
		if v, ok := e.Param(0).ConstValue(); ok && new(big.Int).Rem(v, d).Sign() == 0 {
			return true
		}
		if v, ok := e.Param(1).ConstValue(); ok && new(big.Int).Rem(v, d).Sign() == 0 {
			return true
		}
		return false
	case OpAdd, OpSub:
		return divides(e.Param(0), d) && divides(e.Param(1), d)
	default:
		return false
	}
}

// divideBy constructs the exact quotient e/d. Caller must have checked
// divides(e, d).
func divideBy(e *Expr, d *big.Int, width uint) *Expr {
	switch e.Op.Code {
	case OpConstant:
		v, _ := e.ConstValue()
		return NewConstantExprFromString(new(big.Int).Quo(v, d).String(), width)
	case OpMul:
		lhs, rhs := e.Param(0), e.Param(1)
		if v, ok := lhs.ConstValue(); ok && new(big.Int).Rem(v, d).Sign() == 0 {
			q := new(big.Int).Quo(v, d)
			if q.IsInt64() && q.Int64() == 1 {
				return rhs
			}
			return NewBinaryExpr(e.Op, NewConstantExprFromString(q.String(), lhs.Width), rhs)
		}
		v, _ := rhs.ConstValue()
		q := new(big.Int).Quo(v, d)
		if q.IsInt64() && q.Int64() == 1 {
			return lhs
		}
		return NewBinaryExpr(e.Op, lhs, NewConstantExprFromString(q.String(), rhs.Width))
	case OpAdd, OpSub:
		return simplifyNode(NewBinaryExpr(e.Op,
			divideBy(e.Param(0), d, width),
			divideBy(e.Param(1), d, width)))
	default:
		panic("divideBy: not divisible")
	}
}
