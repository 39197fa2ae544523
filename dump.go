package gametime

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DumpConditions writes the condition expressions one per line, in
// path order.
func (p *Path) DumpConditions(w io.Writer) error {
	for _, c := range p.conditions {
		if _, err := fmt.Fprintln(w, c.Expr); err != nil {
			return err
		}
	}
	return nil
}

// DumpLineNumbers writes the sorted unique source line numbers of the
// path, space-separated on a single line.
func (p *Path) DumpLineNumbers(w io.Writer) error {
	lines := p.Lines()
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = fmt.Sprintf("%d", line)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// DumpConditionEdges writes one "k: src sink" line per condition. The
// adjusters map IR block ids to DAG node ids.
func (p *Path) DumpConditionEdges(w io.Writer, adjustSrc, adjustSink func(int) int) error {
	for k, c := range p.conditions {
		sink := c.BlockID
		if succ, ok := p.successorOf(c.BlockID); ok {
			sink = succ
		}
		if _, err := fmt.Fprintf(w, "%d: %d %d\n", k, adjustSrc(c.BlockID), adjustSink(sink)); err != nil {
			return err
		}
	}
	return nil
}

// DumpBranchDirections writes one line per conditional branch crossed:
// the branch's source line and the direction taken.
func (p *Path) DumpBranchDirections(w io.Writer) error {
	for _, b := range p.branches {
		label := "False"
		if b.Taken {
			label = "True"
		}
		if _, err := fmt.Fprintf(w, "%d: %s\n", b.Line, label); err != nil {
			return err
		}
	}
	return nil
}

// DumpArrayAccesses writes the witnessed array accesses as
// "name: [(idx0, idx1, ...)]" followed by the temporary index
// expressions as "k: <expression>", with index brackets and the
// temporary-index prefix stripped.
func (p *Path) DumpArrayAccesses(w io.Writer) error {
	for _, a := range p.accesses {
		parts := make([]string, len(a.Indices))
		for i, n := range a.Indices {
			parts[i] = fmt.Sprintf("%d", n)
		}
		if _, err := fmt.Fprintf(w, "%s: [(%s)]\n", a.Array, strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	for k := 0; k < p.tempIndexSeq; k++ {
		e, ok := p.tempIndexExprs[k]
		if !ok {
			continue
		}
		s := e.String()
		s = strings.ReplaceAll(s, p.cfg.TempIndexPrefix, "")
		s = strings.Map(func(r rune) rune {
			if r == '[' || r == ']' {
				return -1
			}
			return r
		}, s)
		if _, err := fmt.Fprintf(w, "%d: %s\n", k, s); err != nil {
			return err
		}
	}
	return nil
}

// DumpTables writes a debug rendering of the path's bookkeeping tables.
func (p *Path) DumpTables(w io.Writer) {
	spew.Fdump(w, struct {
		Conditions     []Condition
		ArrayDims      map[string][]uint
		AddressTaken   map[string]*Expr
		ArrayAccesses  []ArrayAccess
		TempIndexExprs map[int]*Expr
		Warnings       []Warning
	}{
		Conditions:     p.conditions,
		ArrayDims:      p.arrayDims,
		AddressTaken:   p.addressTaken,
		ArrayAccesses:  p.accesses,
		TempIndexExprs: p.tempIndexExprs,
		Warnings:       p.warnings,
	})
}

// DumpToFile writes one dump via fn to the named file, closing the
// file on every exit path.
func DumpToFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f)
}
