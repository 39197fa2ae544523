package gametime_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gametime-project/gametime"
	"github.com/gametime-project/gametime/ir"
)

func branchPath(t *testing.T) *gametime.Path {
	t.Helper()
	intT := intType()
	x := scalar("x", intT)
	y := scalar("y", intT)
	z := scalar("z", intT)

	t1 := temp("t1", intT)
	cmp1 := compare(ir.CmpLt, t1, 10, x, y)
	br1 := branch(t1, 10)

	t2 := temp("t2", intT)
	cmp2 := compare(ir.CmpEq, t2, 20, x, z)
	br2 := branch(t2, 20)

	unit := &ir.Unit{Name: "branches", Blocks: []*ir.Block{
		{ID: 0, Instrs: []*ir.Instr{cmp1, br1}, Succs: []int{1, 3}},
		{ID: 1, Instrs: []*ir.Instr{cmp2, br2}, Succs: []int{3, 2}},
		{ID: 2},
	}}
	return analyze(t, unit, []int{0, 1, 2})
}

func TestPath_DumpConditions(t *testing.T) {
	path := branchPath(t)
	var buf bytes.Buffer
	if err := path.DumpConditions(&buf); err != nil {
		t.Fatal(err)
	}
	want := "(x < y)\n!((x = z))\n"
	if buf.String() != want {
		t.Fatalf("unexpected dump:\n%s", buf.String())
	}
}

func TestPath_DumpLineNumbers(t *testing.T) {
	path := branchPath(t)
	var buf bytes.Buffer
	if err := path.DumpLineNumbers(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "10 20\n" {
		t.Fatalf("unexpected dump: %q", buf.String())
	}
}

func TestPath_DumpConditionEdges(t *testing.T) {
	path := branchPath(t)
	var buf bytes.Buffer
	adjust := func(id int) int { return id + 100 }
	if err := path.DumpConditionEdges(&buf, adjust, adjust); err != nil {
		t.Fatal(err)
	}
	want := "0: 100 101\n1: 101 102\n"
	if buf.String() != want {
		t.Fatalf("unexpected dump:\n%s", buf.String())
	}
}

func TestPath_DumpBranchDirections(t *testing.T) {
	path := branchPath(t)
	var buf bytes.Buffer
	if err := path.DumpBranchDirections(&buf); err != nil {
		t.Fatal(err)
	}
	want := "10: True\n20: False\n"
	if buf.String() != want {
		t.Fatalf("unexpected dump:\n%s", buf.String())
	}
}

func TestPath_DumpArrayAccesses(t *testing.T) {
	intT := intType()
	arrT := &ir.Type{Kind: ir.UnmanagedArray, Name: "int[8]", Bits: 256, Elem: intT, Length: 8}
	p := scalar("p", arrT)
	i := scalar("i", intT)
	t1 := temp("t1", intT)
	z := scalar("z", intT)
	sub := value(ir.Subscript, t1, 12, p, i)
	asg := value(ir.Assign, z, 12, t1)
	unit := &ir.Unit{Name: "index", Blocks: []*ir.Block{{ID: 0, Instrs: []*ir.Instr{sub, asg}}}}
	path := analyze(t, unit, []int{0})

	var buf bytes.Buffer
	if err := path.DumpArrayAccesses(&buf); err != nil {
		t.Fatal(err)
	}
	want := "p: [(0)]\n0: i\n"
	if buf.String() != want {
		t.Fatalf("unexpected dump:\n%s", buf.String())
	}
}

func TestPath_DumpTables(t *testing.T) {
	path := branchPath(t)
	var buf bytes.Buffer
	path.DumpTables(&buf)
	if !strings.Contains(buf.String(), "Conditions") {
		t.Fatalf("unexpected dump:\n%s", buf.String())
	}
}

func TestDumpToFile(t *testing.T) {
	path := branchPath(t)
	name := filepath.Join(t.TempDir(), "conditions.txt")
	if err := gametime.DumpToFile(name, path.DumpConditions); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "(x < y)") {
		t.Fatalf("unexpected file contents:\n%s", data)
	}
}
