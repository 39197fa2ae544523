package gametime_test

import (
	"testing"

	"github.com/gametime-project/gametime"
	"github.com/gametime-project/gametime/ir"
)

func aggregateUnit() (*ir.Unit, *ir.Type) {
	shortT := &ir.Type{Kind: ir.Scalar, Name: "short", Bits: 16}
	aggT := &ir.Type{Kind: ir.Aggregate, Name: "S", Bits: 32, Fields: []ir.Field{
		{Name: "a", Offset: 0, Type: shortT},
		{Name: "b", Offset: 16, Type: shortT},
	}}
	ptrT := &ir.Type{Kind: ir.Pointer, Name: "S*", Bits: 32, Referent: aggT}

	ps := scalar("ps", ptrT)
	word := &ir.Operand{Memory: true, Base: ps, Type: intType()}
	z := scalar("z", intType())
	asg := &ir.Instr{Kind: ir.KindValue, Op: ir.Assign, Dsts: []*ir.Operand{z}, Srcs: []*ir.Operand{word}, Line: 8}
	z.Def = asg

	return &ir.Unit{Name: "word_access", Blocks: []*ir.Block{
		{ID: 0, Instrs: []*ir.Instr{asg}},
	}}, aggT
}

// A two-field aggregate read as one word decomposes into per-field
// array accesses; field order in the concatenation follows endianness.
func TestPath_AggregateWordAccess(t *testing.T) {
	t.Run("LittleEndian", func(t *testing.T) {
		unit, _ := aggregateUnit()
		path := analyze(t, unit, []int{0})

		conds := conditionStrings(path)
		want := "(z<1> = concat(select(__gtFIELD_b__gtAGG_S, __gtINDEX0), select(__gtFIELD_a__gtAGG_S, __gtINDEX1)))"
		if conds[0] != want {
			t.Fatalf("unexpected condition: %s", conds[0])
		}
		if e := path.Conditions()[0].Expr; e.Param(1).Width != 32 {
			t.Fatalf("unexpected access width: %d", e.Param(1).Width)
		}
	})

	t.Run("BigEndian", func(t *testing.T) {
		unit, _ := aggregateUnit()
		cfg := gametime.DefaultConfig()
		cfg.BigEndian = true
		path, err := gametime.NewPath(cfg, unit, []int{0})
		if err != nil {
			t.Fatal(err)
		}
		if err := path.GenerateConditionsAndAssignments(); err != nil {
			t.Fatal(err)
		}

		conds := conditionStrings(path)
		want := "(z<1> = concat(select(__gtFIELD_a__gtAGG_S, __gtINDEX0), select(__gtFIELD_b__gtAGG_S, __gtINDEX1)))"
		if conds[0] != want {
			t.Fatalf("unexpected condition: %s", conds[0])
		}
	})
}

// Storing one word over a two-field aggregate splits the source at the
// field boundary and emits one store chain per field array.
func TestPath_AggregateWordStore(t *testing.T) {
	shortT := &ir.Type{Kind: ir.Scalar, Name: "short", Bits: 16}
	aggT := &ir.Type{Kind: ir.Aggregate, Name: "S", Bits: 32, Fields: []ir.Field{
		{Name: "a", Offset: 0, Type: shortT},
		{Name: "b", Offset: 16, Type: shortT},
	}}
	ptrT := &ir.Type{Kind: ir.Pointer, Name: "S*", Bits: 32, Referent: aggT}

	ps := scalar("ps", ptrT)
	x := scalar("x", intType())
	word := &ir.Operand{Memory: true, Base: ps, Type: intType()}
	store := &ir.Instr{Kind: ir.KindValue, Op: ir.Assign, Dsts: []*ir.Operand{word}, Srcs: []*ir.Operand{x}, Line: 5}

	unit := &ir.Unit{Name: "word_store", Blocks: []*ir.Block{
		{ID: 0, Instrs: []*ir.Instr{store}},
	}}
	path := analyze(t, unit, []int{0})

	conds := conditionStrings(path)
	if len(conds) < 2 {
		t.Fatalf("unexpected condition count: %d", len(conds))
	}
	if want := "(__gtFIELD_b__gtAGG_S<1> = store(__gtFIELD_b__gtAGG_S, __gtINDEX0, extract(x, 16, 31)))"; conds[0] != want {
		t.Fatalf("unexpected condition: %s", conds[0])
	}
	if want := "(__gtFIELD_a__gtAGG_S<1> = store(__gtFIELD_a__gtAGG_S, __gtINDEX1, extract(x, 0, 15)))"; conds[1] != want {
		t.Fatalf("unexpected condition: %s", conds[1])
	}
}

// Partial coverage at the high end zero-pads and surfaces a warning.
func TestPath_AggregatePadding(t *testing.T) {
	shortT := &ir.Type{Kind: ir.Scalar, Name: "short", Bits: 16}
	aggT := &ir.Type{Kind: ir.Aggregate, Name: "P", Bits: 16, Fields: []ir.Field{
		{Name: "a", Offset: 0, Type: shortT},
	}}
	ptrT := &ir.Type{Kind: ir.Pointer, Name: "P*", Bits: 32, Referent: aggT}

	ps := scalar("ps", ptrT)
	word := &ir.Operand{Memory: true, Base: ps, Type: intType()}
	z := scalar("z", intType())
	asg := &ir.Instr{Kind: ir.KindValue, Op: ir.Assign, Dsts: []*ir.Operand{z}, Srcs: []*ir.Operand{word}, Line: 3}
	z.Def = asg

	unit := &ir.Unit{Name: "padded", Blocks: []*ir.Block{
		{ID: 0, Instrs: []*ir.Instr{asg}},
	}}
	path := analyze(t, unit, []int{0})

	warnings := path.Warnings()
	if len(warnings) != 1 || warnings[0].Kind != gametime.WarnAggregatePadded {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if e := path.Conditions()[0].Expr; e.Param(1).Width != 32 {
		t.Fatalf("padded access must keep the access width: %d", e.Param(1).Width)
	}
}
