package gametime_test

import (
	"testing"

	"github.com/gametime-project/gametime"
)

func add(lhs, rhs *gametime.Expr) *gametime.Expr {
	return gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), lhs, rhs)
}

func mul(lhs, rhs *gametime.Expr) *gametime.Expr {
	return gametime.NewBinaryExpr(gametime.Op(gametime.OpMul), lhs, rhs)
}

func sdiv(lhs, rhs *gametime.Expr) *gametime.Expr {
	return gametime.NewBinaryExpr(gametime.Op(gametime.OpSDiv), lhs, rhs)
}

func rem(lhs, rhs *gametime.Expr) *gametime.Expr {
	return gametime.NewBinaryExpr(gametime.Op(gametime.OpRem), lhs, rhs)
}

func TestSimplify(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)

	t.Run("ConstantFold", func(t *testing.T) {
		e := gametime.Simplify(add(gametime.NewConstantExpr(6, 32), gametime.NewConstantExpr(4, 32)))
		if !e.IsConstantValue(10) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("AddZero", func(t *testing.T) {
		e := gametime.Simplify(add(x, gametime.NewConstantExpr(0, 32)))
		if !e.Equal(gametime.Simplify(x)) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("SubZero", func(t *testing.T) {
		e := gametime.Simplify(gametime.NewBinaryExpr(gametime.Op(gametime.OpSub), x, gametime.NewConstantExpr(0, 32)))
		if !e.Equal(x) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("MulZero", func(t *testing.T) {
		e := gametime.Simplify(mul(x, gametime.NewConstantExpr(0, 32)))
		if !e.IsConstantValue(0) || e.Width != 32 {
			t.Fatalf("unexpected result: %s (width %d)", e, e.Width)
		}
	})
	t.Run("MulOne", func(t *testing.T) {
		e := gametime.Simplify(mul(gametime.NewConstantExpr(1, 32), x))
		if !e.Equal(x) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("MulNegativeLiteral", func(t *testing.T) {
		e := gametime.Simplify(mul(gametime.NewConstantExpr(-1, 32), gametime.NewConstantExpr(5, 32)))
		if !e.IsConstantValue(-5) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("DoubleNegationPreserved", func(t *testing.T) {
		e := gametime.NewUnaryExpr(gametime.Op(gametime.OpNegate), gametime.NewUnaryExpr(gametime.Op(gametime.OpNegate), x))
		if !gametime.Simplify(e).Equal(e) {
			t.Fatal("double negation must not fold")
		}
	})
	t.Run("DivOne", func(t *testing.T) {
		e := gametime.Simplify(sdiv(x, gametime.NewConstantExpr(1, 32)))
		if !e.Equal(x) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("RemOne", func(t *testing.T) {
		e := gametime.Simplify(rem(x, gametime.NewConstantExpr(1, 32)))
		if !e.IsConstantValue(0) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("DivUndoesPointerScaling", func(t *testing.T) {
		// (x * 32) / 32 reduces to x.
		e := gametime.Simplify(sdiv(mul(x, gametime.NewConstantExpr(32, 32)), gametime.NewConstantExpr(32, 32)))
		if !e.Equal(x) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("DivDistributesOverSum", func(t *testing.T) {
		// (x*8 + 16) / 8 reduces to x + 2.
		e := gametime.Simplify(sdiv(
			add(mul(x, gametime.NewConstantExpr(8, 32)), gametime.NewConstantExpr(16, 32)),
			gametime.NewConstantExpr(8, 32)))
		want := add(x, gametime.NewConstantExpr(2, 32))
		if !e.Equal(want) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("RemOfDivisibleIsZero", func(t *testing.T) {
		e := gametime.Simplify(rem(mul(x, gametime.NewConstantExpr(8, 32)), gametime.NewConstantExpr(8, 32)))
		if !e.IsConstantValue(0) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("IteTrue", func(t *testing.T) {
		y := gametime.NewVariableExpr("y", 32, nil)
		e := gametime.Simplify(gametime.NewIteExpr(gametime.NewTrueExpr(32), x, y))
		if !e.Equal(x) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("IteFalse", func(t *testing.T) {
		y := gametime.NewVariableExpr("y", 32, nil)
		e := gametime.Simplify(gametime.NewIteExpr(gametime.NewFalseExpr(32), x, y))
		if !e.Equal(y) {
			t.Fatalf("unexpected result: %s", e)
		}
	})
	t.Run("ConstantEquality", func(t *testing.T) {
		e := gametime.Simplify(gametime.NewCompareExpr(gametime.Op(gametime.OpEq),
			gametime.NewConstantExpr(3, 32), gametime.NewConstantExpr(3, 32), 32))
		if !e.IsTrue() {
			t.Fatalf("unexpected result: %s", e)
		}
		e = gametime.Simplify(gametime.NewCompareExpr(gametime.Op(gametime.OpEq),
			gametime.NewConstantExpr(3, 32), gametime.NewConstantExpr(4, 32), 32))
		if !e.IsFalse() {
			t.Fatalf("unexpected result: %s", e)
		}
	})
}

func TestSimplify_Idempotent(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	exprs := []*gametime.Expr{
		add(x, gametime.NewConstantExpr(0, 32)),
		sdiv(mul(x, gametime.NewConstantExpr(32, 32)), gametime.NewConstantExpr(32, 32)),
		gametime.NewIteExpr(gametime.NewTrueExpr(32), x, gametime.NewConstantExpr(9, 32)),
		rem(add(mul(x, gametime.NewConstantExpr(8, 32)), gametime.NewConstantExpr(24, 32)), gametime.NewConstantExpr(8, 32)),
		gametime.NewBinaryExpr(gametime.Op(gametime.OpSub), x, x.Clone()),
	}
	for _, e := range exprs {
		once := gametime.Simplify(e)
		twice := gametime.Simplify(once)
		if !once.Equal(twice) {
			t.Fatalf("simplify not idempotent: %s -> %s -> %s", e, once, twice)
		}
	}
}
