// Package smt serializes path conditions to SMT-LIB v2 queries in the
// quantifier-free theory of arrays, uninterpreted functions, and
// bitvectors.
package smt

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/gametime-project/gametime"
)

// Writer produces QF_AUFBV query text for an analyzed path.
type Writer struct {
	cfg gametime.Config
}

// NewWriter returns a new instance of Writer.
func NewWriter(cfg gametime.Config) *Writer {
	return &Writer{cfg: cfg}
}

// WriteQuery emits the full query: logic, declarations, one boolean
// constant per condition asserted equal to it, the conjunction of all
// constraint booleans, check-sat, and exit. The per-condition booleans
// permit unsat-core extraction by the caller.
func (w *Writer) WriteQuery(out io.Writer, path *gametime.Path) error {
	var buf bytes.Buffer
	buf.WriteString("(set-logic QF_AUFBV)\n")

	for _, v := range path.Variables() {
		fmt.Fprintf(&buf, "(declare-fun %s () (_ BitVec %d))\n", symbol(v.Value), v.Width)
	}
	for _, v := range path.ArrayVariables() {
		dims := path.ArrayDimensions(v.Value)
		if len(dims) < 2 {
			return fmt.Errorf("smt: array %s has no recorded dimensions", v.Value)
		}
		fmt.Fprintf(&buf, "(declare-fun %s () %s)\n", symbol(v.Value), w.arraySort(dims))
	}

	conds := path.Conditions()
	names := make([]string, len(conds))
	for k, c := range conds {
		names[k] = fmt.Sprintf("%s%d", w.cfg.ConstraintPrefix, k)
		fmt.Fprintf(&buf, "(declare-fun %s () Bool)\n", names[k])

		cond, err := w.toBool(c.Expr)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "(assert (= %s %s))\n", names[k], cond)
	}

	fmt.Fprintf(&buf, "(assert (and %s))\n", strings.Join(names, " "))
	buf.WriteString("(check-sat)\n")
	buf.WriteString("(exit)\n")

	_, err := out.Write(buf.Bytes())
	return err
}

// Query returns the query as a string.
func (w *Writer) Query(path *gametime.Path) (string, error) {
	var buf bytes.Buffer
	if err := w.WriteQuery(&buf, path); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// arraySort renders the sort for an array variable from its dimension
// list. Nested modelling folds one Array sort per index level; flat
// modelling concatenates every index width into a single composite
// index.
func (w *Writer) arraySort(dims []uint) string {
	elem := fmt.Sprintf("(_ BitVec %d)", dims[len(dims)-1])
	indices := dims[:len(dims)-1]
	if w.cfg.FlatArrays {
		var sum uint
		for _, d := range indices {
			sum += d
		}
		return fmt.Sprintf("(Array (_ BitVec %d) %s)", sum, elem)
	}
	sort := elem
	for i := len(indices) - 1; i >= 0; i-- {
		sort = fmt.Sprintf("(Array (_ BitVec %d) %s)", indices[i], sort)
	}
	return sort
}

// toBool serializes an expression in boolean position.
func (w *Writer) toBool(e *gametime.Expr) (string, error) {
	switch e.Op.Code {
	case gametime.OpTrue:
		return "true", nil
	case gametime.OpFalse:
		return "false", nil

	case gametime.OpNot:
		inner, err := w.toBool(e.Param(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(not %s)", inner), nil

	case gametime.OpAnd, gametime.OpOr, gametime.OpImplies, gametime.OpIff:
		op := map[gametime.OpCode]string{
			gametime.OpAnd:     "and",
			gametime.OpOr:      "or",
			gametime.OpImplies: "=>",
			gametime.OpIff:     "=",
		}[e.Op.Code]
		lhs, err := w.toBool(e.Param(0))
		if err != nil {
			return "", err
		}
		rhs, err := w.toBool(e.Param(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", op, lhs, rhs), nil

	case gametime.OpEq, gametime.OpNe, gametime.OpFEq, gametime.OpFNe:
		// Boolean sub-terms on either side force both sides into
		// uniform bitvector shape via the ite lift.
		lhs, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		rhs, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		if e.Op.Code == gametime.OpNe || e.Op.Code == gametime.OpFNe {
			return fmt.Sprintf("(not (= %s %s))", lhs, rhs), nil
		}
		return fmt.Sprintf("(= %s %s)", lhs, rhs), nil
	}

	if e.Op.IsCompare() {
		op, ok := compareOps[e.Op.Code]
		if !ok {
			return "", fmt.Errorf("smt: no mapping for comparison %s", e.Op)
		}
		lhs, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		rhs, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", op, lhs, rhs), nil
	}

	// A bitvector-valued condition holds when non-zero.
	bv, err := w.toBV(e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(not (= %s (_ bv0 %d)))", bv, e.Width), nil
}

// compareOps maps ordering comparisons to their bitvector forms. Float
// comparisons share the signed forms: floats were coerced to integers
// at ingest.
var compareOps = map[gametime.OpCode]string{
	gametime.OpSLt: "bvslt",
	gametime.OpSLe: "bvsle",
	gametime.OpSGt: "bvsgt",
	gametime.OpSGe: "bvsge",
	gametime.OpULt: "bvult",
	gametime.OpULe: "bvule",
	gametime.OpUGt: "bvugt",
	gametime.OpUGe: "bvuge",
	gametime.OpFLt: "bvslt",
	gametime.OpFLe: "bvsle",
	gametime.OpFGt: "bvsgt",
	gametime.OpFGe: "bvsge",
}

// binaryOps maps arithmetic and bitwise operators to their bitvector
// forms. Rem lowers to bvsmod even for operands that may be unsigned,
// mirroring the source semantics.
var binaryOps = map[gametime.OpCode]string{
	gametime.OpAdd:    "bvadd",
	gametime.OpSub:    "bvsub",
	gametime.OpMul:    "bvmul",
	gametime.OpSDiv:   "bvsdiv",
	gametime.OpUDiv:   "bvudiv",
	gametime.OpRem:    "bvsmod",
	gametime.OpBitAnd: "bvand",
	gametime.OpBitOr:  "bvor",
	gametime.OpBitXor: "bvxor",
	gametime.OpShl:    "bvshl",
	gametime.OpAShr:   "bvashr",
	gametime.OpLShr:   "bvlshr",
}

// toBV serializes an expression in bitvector position. Boolean-valued
// sub-terms are lifted via ite.
func (w *Writer) toBV(e *gametime.Expr) (string, error) {
	if e.IsBoolean() {
		cond, err := w.toBool(e)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(ite %s (_ bv1 %d) (_ bv0 %d))", cond, e.Width, e.Width), nil
	}

	switch e.Op.Code {
	case gametime.OpConstant:
		return constantBV(e)

	case gametime.OpVariable, gametime.OpArrayVariable:
		return symbol(e.Value), nil

	case gametime.OpNegate:
		inner, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(bvneg %s)", inner), nil

	case gametime.OpBitComplement:
		inner, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(bvnot %s)", inner), nil

	case gametime.OpIte:
		cond, err := w.toBool(e.Param(0))
		if err != nil {
			return "", err
		}
		a, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		b, err := w.toBV(e.Param(2))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(ite %s %s %s)", cond, a, b), nil

	case gametime.OpConcat:
		msb, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		lsb, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(concat %s %s)", msb, lsb), nil

	case gametime.OpZeroExtend, gametime.OpSignExtend:
		count, ok := e.Param(1).ConstValue()
		if !ok {
			return "", fmt.Errorf("smt: non-constant extension count in %s", e)
		}
		form := "zero_extend"
		if e.Op.Code == gametime.OpSignExtend {
			form = "sign_extend"
		}
		src, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((_ %s %d) %s)", form, count.Uint64(), src), nil

	case gametime.OpBitExtract:
		lo, lok := e.Param(1).ConstValue()
		hi, hok := e.Param(2).ConstValue()
		if !lok || !hok {
			return "", fmt.Errorf("smt: non-constant extract bounds in %s", e)
		}
		src, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((_ extract %d %d) %s)", hi.Uint64(), lo.Uint64(), src), nil

	case gametime.OpSelect:
		return w.selectBV(e)

	case gametime.OpStore:
		return w.storeBV(e)
	}

	if op, ok := binaryOps[e.Op.Code]; ok {
		lhs, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		rhs, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", op, lhs, rhs), nil
	}

	return "", fmt.Errorf("smt: no bitvector mapping for operator %s in %s", e.Op, e)
}

// selectBV serializes a select. Under flat modelling, nested selects
// collapse to a single select over the concatenated index; this rewrite
// happens here, not in the expression tree.
func (w *Writer) selectBV(e *gametime.Expr) (string, error) {
	array, indices := flattenSelect(e)
	if !w.cfg.FlatArrays || len(indices) == 1 {
		out, err := w.toBV(array)
		if err != nil {
			return "", err
		}
		for _, idx := range indices {
			s, err := w.toBV(idx)
			if err != nil {
				return "", err
			}
			out = fmt.Sprintf("(select %s %s)", out, s)
		}
		return out, nil
	}

	base, err := w.toBV(array)
	if err != nil {
		return "", err
	}
	idx, err := w.concatIndex(indices)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(select %s %s)", base, idx), nil
}

// storeBV serializes a store. Under flat modelling, a nested
// store-of-select chain collapses to a single store with concatenated
// index.
func (w *Writer) storeBV(e *gametime.Expr) (string, error) {
	array, indices, value := flattenStore(e)
	if !w.cfg.FlatArrays || len(indices) == 1 {
		a, err := w.toBV(e.Param(0))
		if err != nil {
			return "", err
		}
		i, err := w.toBV(e.Param(1))
		if err != nil {
			return "", err
		}
		v, err := w.toBV(e.Param(2))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(store %s %s %s)", a, i, v), nil
	}

	base, err := w.toBV(array)
	if err != nil {
		return "", err
	}
	idx, err := w.concatIndex(indices)
	if err != nil {
		return "", err
	}
	v, err := w.toBV(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(store %s %s %s)", base, idx, v), nil
}

func (w *Writer) concatIndex(indices []*gametime.Expr) (string, error) {
	out, err := w.toBV(indices[0])
	if err != nil {
		return "", err
	}
	for _, idx := range indices[1:] {
		s, err := w.toBV(idx)
		if err != nil {
			return "", err
		}
		out = fmt.Sprintf("(concat %s %s)", out, s)
	}
	return out, nil
}

// flattenSelect peels nested selects down to the base array and the
// index list, outermost level first.
func flattenSelect(e *gametime.Expr) (*gametime.Expr, []*gametime.Expr) {
	var indices []*gametime.Expr
	for e.Op.Code == gametime.OpSelect {
		indices = append([]*gametime.Expr{e.Param(1)}, indices...)
		e = e.Param(0)
	}
	return e, indices
}

// flattenStore peels a store-of-select chain: store(a, i, store(
// select(a, i), j, v)) yields (a, [i j], v).
func flattenStore(e *gametime.Expr) (*gametime.Expr, []*gametime.Expr, *gametime.Expr) {
	array := e.Param(0)
	indices := []*gametime.Expr{e.Param(1)}
	value := e.Param(2)
	for value.Op.Code == gametime.OpStore && value.Param(0).Op.Code == gametime.OpSelect {
		indices = append(indices, value.Param(1))
		value = value.Param(2)
	}
	return array, indices, value
}

// constantBV renders a constant bitvector: (_ bvN W) for non-negative
// N, (bvneg (_ bvN W)) for negatives.
func constantBV(e *gametime.Expr) (string, error) {
	v, ok := e.ConstValue()
	if !ok {
		return "", fmt.Errorf("smt: malformed constant %q", e.Value)
	}
	if v.Sign() < 0 {
		return fmt.Sprintf("(bvneg (_ bv%s %d))", new(big.Int).Neg(v).String(), e.Width), nil
	}
	return fmt.Sprintf("(_ bv%s %d)", v.String(), e.Width), nil
}

// symbol renders a variable name as an SMT-LIB symbol, quoting names
// that contain characters other than letters, digits, '_', '.', '$' and
// '@', such as version tags. Call-site names ("callee@line") stay
// unquoted.
func symbol(name string) string {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '$', r == '@':
			continue
		default:
			return "|" + name + "|"
		}
	}
	return name
}
