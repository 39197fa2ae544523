package gametime_test

import (
	"testing"

	"github.com/gametime-project/gametime"
	"github.com/google/go-cmp/cmp"
)

func TestExpr_String(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	y := gametime.NewVariableExpr("y", 32, nil)

	t.Run("Constant", func(t *testing.T) {
		if s := gametime.NewConstantExpr(-7, 32).String(); s != "-7" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Add", func(t *testing.T) {
		e := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, y)
		if s := e.String(); s != "(x + y)" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Ite", func(t *testing.T) {
		cond := gametime.NewCompareExpr(gametime.Op(gametime.OpEq), x, y, 32)
		e := gametime.NewIteExpr(cond, x, y)
		if s := e.String(); s != "ite((x = y), x, y)" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("ArrayAccess", func(t *testing.T) {
		a := gametime.NewArrayVariableExpr("a", 32, nil)
		e := gametime.NewArrayAccessExpr(a, x, 32)
		if s := e.String(); s != "a[x]" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Offset", func(t *testing.T) {
		a := gametime.NewVariableExpr("a", 32, nil)
		e := gametime.NewOffsetExpr(a, gametime.NewConstantExpr(16, 32))
		if s := e.String(); s != "(a . 16)" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Function", func(t *testing.T) {
		f0 := gametime.NewVariableExpr("f0", 32, nil)
		f1 := gametime.NewVariableExpr("f1", 32, nil)
		body := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), f0, f1)
		e := gametime.NewFunctionExpr([]*gametime.Expr{f0, f1}, body)
		if s := e.String(); s != "(f (f0, f1) (f0 + f1))" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestExpr_Width(t *testing.T) {
	x := gametime.NewVariableExpr("x", 16, nil)

	t.Run("Concat", func(t *testing.T) {
		e := gametime.NewConcatExpr(x, gametime.NewVariableExpr("y", 8, nil))
		if e.Width != 24 {
			t.Fatalf("unexpected width: %d", e.Width)
		}
	})
	t.Run("ZeroExtend", func(t *testing.T) {
		if e := gametime.NewZeroExtendExpr(x, 16); e.Width != 32 {
			t.Fatalf("unexpected width: %d", e.Width)
		}
	})
	t.Run("BitExtract", func(t *testing.T) {
		if e := gametime.NewBitExtractExpr(x, 4, 11); e.Width != 8 {
			t.Fatalf("unexpected width: %d", e.Width)
		}
	})
	t.Run("CompareIsWordSized", func(t *testing.T) {
		e := gametime.NewCompareExpr(gametime.Op(gametime.OpSLt), x, x.Clone(), 32)
		if e.Width != 32 {
			t.Fatalf("unexpected width: %d", e.Width)
		}
	})
}

func TestExpr_Param(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	y := gametime.NewVariableExpr("y", 32, nil)
	e := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, y)

	t.Run("OK", func(t *testing.T) {
		if got := e.Param(1); !got.Equal(y) {
			t.Fatalf("unexpected param: %s", got)
		}
	})
	t.Run("OutOfRange", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		e.Param(2)
	})
	t.Run("Negative", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		e.Param(-1)
	})
}

func TestExpr_WithParam(t *testing.T) {
	x := gametime.NewVariableExpr("x", 16, nil)
	y := gametime.NewVariableExpr("y", 16, nil)
	e := gametime.NewConcatExpr(x, y)

	other := e.WithParam(0, gametime.NewVariableExpr("z", 8, nil))
	if other.Width != 24 {
		t.Fatalf("width not re-derived: %d", other.Width)
	}
	if e.Width != 32 {
		t.Fatalf("receiver mutated: %d", e.Width)
	}
	if s := other.String(); s != "concat(z, y)" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestExpr_Equal(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	y := gametime.NewVariableExpr("y", 32, nil)

	t.Run("Reflexive", func(t *testing.T) {
		e := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, y)
		if !e.Equal(e.Clone()) {
			t.Fatal("expected equal")
		}
	})
	t.Run("Symmetric", func(t *testing.T) {
		a := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, y)
		b := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x.Clone(), y.Clone())
		if !a.Equal(b) || !b.Equal(a) {
			t.Fatal("expected equal both ways")
		}
	})
	t.Run("WidthMismatch", func(t *testing.T) {
		if gametime.NewVariableExpr("x", 32, nil).Equal(gametime.NewVariableExpr("x", 16, nil)) {
			t.Fatal("expected unequal")
		}
	})
	t.Run("AlphaRenaming", func(t *testing.T) {
		a := gametime.NewVariableExpr("a", 32, nil)
		b := gametime.NewVariableExpr("b", 32, nil)
		body := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), a, x)

		fa := gametime.NewFunctionExpr([]*gametime.Expr{a}, body)
		fb := gametime.NewFunctionExpr([]*gametime.Expr{b}, body.Replace(a, b))
		if !fa.Equal(fb) {
			t.Fatal("alpha-equivalent functions must compare equal")
		}
	})
	t.Run("AlphaDistinctBodies", func(t *testing.T) {
		a := gametime.NewVariableExpr("a", 32, nil)
		b := gametime.NewVariableExpr("b", 32, nil)
		fa := gametime.NewFunctionExpr([]*gametime.Expr{a}, a)
		fb := gametime.NewFunctionExpr([]*gametime.Expr{b}, x)
		if fa.Equal(fb) {
			t.Fatal("expected unequal")
		}
	})
}

func TestExpr_Hash(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	y := gametime.NewVariableExpr("y", 32, nil)

	t.Run("EqualImpliesSameHash", func(t *testing.T) {
		a := gametime.NewBinaryExpr(gametime.Op(gametime.OpMul), x, y)
		b := gametime.NewBinaryExpr(gametime.Op(gametime.OpMul), x.Clone(), y.Clone())
		if a.Hash() != b.Hash() {
			t.Fatal("equal expressions must hash equally")
		}
	})
	t.Run("AlphaInvariant", func(t *testing.T) {
		a := gametime.NewVariableExpr("a", 32, nil)
		b := gametime.NewVariableExpr("b", 32, nil)
		fa := gametime.NewFunctionExpr([]*gametime.Expr{a}, gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), a, x))
		fb := gametime.NewFunctionExpr([]*gametime.Expr{b}, gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), b, x))
		if fa.Hash() != fb.Hash() {
			t.Fatal("alpha-equivalent functions must hash equally")
		}
	})
	t.Run("DistinctLeaves", func(t *testing.T) {
		if x.Hash() == y.Hash() {
			t.Fatal("expected distinct hashes")
		}
	})
}

func TestExpr_Replace(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	y := gametime.NewVariableExpr("y", 32, nil)
	z := gametime.NewVariableExpr("z", 32, nil)
	e := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, z)

	t.Run("Identity", func(t *testing.T) {
		if !e.Replace(x, x).Equal(e) {
			t.Fatal("replace(e, x, x) must equal e")
		}
	})
	t.Run("RoundTrip", func(t *testing.T) {
		// y is fresh in e.
		if !e.Replace(x, y).Replace(y, x).Equal(e) {
			t.Fatal("replace round trip must restore e")
		}
	})
	t.Run("LeafMiss", func(t *testing.T) {
		if !z.Replace(x, y).Equal(z) {
			t.Fatal("leaf not equal to needle must clone")
		}
	})
	t.Run("Subtree", func(t *testing.T) {
		got := e.Replace(z, gametime.NewConstantExpr(1, 32))
		if s := got.String(); s != "(x + 1)" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestExpr_Clone(t *testing.T) {
	x := gametime.NewVariableExpr("x", 32, nil)
	e := gametime.NewBinaryExpr(gametime.Op(gametime.OpAdd), x, gametime.NewConstantExpr(1, 32))
	other := e.Clone()
	if diff := cmp.Diff(e, other); diff != "" {
		t.Fatal(diff)
	}
	other.Params[0].Value = "y"
	if e.Param(0).Value != "x" {
		t.Fatal("clone must not share structure")
	}
}

func TestNegateCompare(t *testing.T) {
	if op := gametime.NegateCompare(gametime.Op(gametime.OpSLt)); op != gametime.Op(gametime.OpSGe) {
		t.Fatalf("unexpected operator: %s", op)
	}
	if op := gametime.NegateCompare(gametime.Op(gametime.OpEq)); op != gametime.Op(gametime.OpNe) {
		t.Fatalf("unexpected operator: %s", op)
	}
}

func TestOperator(t *testing.T) {
	t.Run("Singleton", func(t *testing.T) {
		if gametime.Op(gametime.OpAdd) != gametime.Op(gametime.OpAdd) {
			t.Fatal("operators must be singletons")
		}
	})
	t.Run("IsCompare", func(t *testing.T) {
		if !gametime.Op(gametime.OpULt).IsCompare() {
			t.Fatal("expected true")
		} else if gametime.Op(gametime.OpAdd).IsCompare() {
			t.Fatal("expected false")
		}
	})
	t.Run("IsArithmetic", func(t *testing.T) {
		if !gametime.Op(gametime.OpRem).IsArithmetic() {
			t.Fatal("expected true")
		} else if gametime.Op(gametime.OpBitAnd).IsArithmetic() {
			t.Fatal("expected false")
		}
	})
	t.Run("Arity", func(t *testing.T) {
		if gametime.Op(gametime.OpIte).Arity != gametime.ArityTernary {
			t.Fatal("unexpected arity")
		}
		if gametime.Op(gametime.OpConstant).Arity != gametime.ArityNil {
			t.Fatal("unexpected arity")
		}
	})
}
