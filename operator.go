package gametime

import "fmt"

// Arity enumerates the operand counts an operator accepts.
type Arity int

const (
	ArityNil = Arity(iota)
	ArityUnary
	ArityBinary
	ArityTernary
	ArityPolynary
)

// OpCode identifies an operator in the fixed vocabulary.
type OpCode int

const (
	// Nil-arity leaves.
	leaf_op_begin = OpCode(iota)
	OpConstant
	OpVariable
	OpArrayVariable
	OpTrue
	OpFalse
	OpAcquire
	leaf_op_end

	// Unary operators.
	OpNegate
	OpNot
	OpBitComplement
	OpAddress
	OpRelease

	// Binary arithmetic.
	arith_op_begin
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpRem
	arith_op_end

	// Binary comparison.
	compare_op_begin
	OpEq
	OpNe
	OpSLt
	OpSLe
	OpSGt
	OpSGe
	OpULt
	OpULe
	OpUGt
	OpUGe
	OpFEq
	OpFNe
	OpFLt
	OpFLe
	OpFGt
	OpFGe
	compare_op_end

	// Binary logical.
	OpAnd
	OpOr

	// Binary bitwise.
	bitwise_op_begin
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpAShr
	OpLShr
	bitwise_op_end

	// Bitvector shape.
	OpConcat
	OpZeroExtend
	OpSignExtend

	// Memory.
	OpArray
	OpOffset
	OpSelect

	// Meta.
	OpImplies
	OpIff
	OpLet

	// Ternary.
	OpIte
	OpStore
	OpBitExtract

	// Polynary.
	OpFunction
	OpFunctionCall
)

// Operator describes one member of the fixed operator vocabulary.
// Operators are process-global singletons; pointer identity is
// operator identity.
type Operator struct {
	Code   OpCode
	Arity  Arity
	Symbol string
}

// String returns the operator's symbol.
func (o *Operator) String() string { return o.Symbol }

// IsLeaf returns true if the operator takes no parameters.
func (o *Operator) IsLeaf() bool { return o.Arity == ArityNil }

// IsArithmetic returns true for the binary arithmetic operators.
func (o *Operator) IsArithmetic() bool {
	return o.Code > arith_op_begin && o.Code < arith_op_end
}

// IsCompare returns true for the binary comparison operators.
func (o *Operator) IsCompare() bool {
	return o.Code > compare_op_begin && o.Code < compare_op_end
}

// IsBitwise returns true for the binary bitwise operators.
func (o *Operator) IsBitwise() bool {
	return o.Code > bitwise_op_begin && o.Code < bitwise_op_end
}

// IsLogical returns true for the boolean connectives.
func (o *Operator) IsLogical() bool {
	return o.Code == OpAnd || o.Code == OpOr
}

// IsBoolean returns true if the operator yields a truth value:
// comparisons, connectives, and the boolean leaves.
func (o *Operator) IsBoolean() bool {
	return o.IsCompare() || o.IsLogical() ||
		o.Code == OpTrue || o.Code == OpFalse ||
		o.Code == OpImplies || o.Code == OpIff
}

// operators is the process-wide registry, indexed by OpCode.
// It is initialized once and read-only thereafter.
var operators = map[OpCode]*Operator{
	OpConstant:      {OpConstant, ArityNil, "const"},
	OpVariable:      {OpVariable, ArityNil, "var"},
	OpArrayVariable: {OpArrayVariable, ArityNil, "arrayvar"},
	OpTrue:          {OpTrue, ArityNil, "true"},
	OpFalse:         {OpFalse, ArityNil, "false"},
	OpAcquire:       {OpAcquire, ArityNil, "acquire"},

	OpNegate:        {OpNegate, ArityUnary, "-"},
	OpNot:           {OpNot, ArityUnary, "!"},
	OpBitComplement: {OpBitComplement, ArityUnary, "~"},
	OpAddress:       {OpAddress, ArityUnary, "&"},
	OpRelease:       {OpRelease, ArityUnary, "release"},

	OpAdd:  {OpAdd, ArityBinary, "+"},
	OpSub:  {OpSub, ArityBinary, "-"},
	OpMul:  {OpMul, ArityBinary, "*"},
	OpSDiv: {OpSDiv, ArityBinary, "/"},
	OpUDiv: {OpUDiv, ArityBinary, "/u"},
	OpRem:  {OpRem, ArityBinary, "%"},

	OpEq:  {OpEq, ArityBinary, "="},
	OpNe:  {OpNe, ArityBinary, "!="},
	OpSLt: {OpSLt, ArityBinary, "<"},
	OpSLe: {OpSLe, ArityBinary, "<="},
	OpSGt: {OpSGt, ArityBinary, ">"},
	OpSGe: {OpSGe, ArityBinary, ">="},
	OpULt: {OpULt, ArityBinary, "<u"},
	OpULe: {OpULe, ArityBinary, "<=u"},
	OpUGt: {OpUGt, ArityBinary, ">u"},
	OpUGe: {OpUGe, ArityBinary, ">=u"},
	OpFEq: {OpFEq, ArityBinary, "=f"},
	OpFNe: {OpFNe, ArityBinary, "!=f"},
	OpFLt: {OpFLt, ArityBinary, "<f"},
	OpFLe: {OpFLe, ArityBinary, "<=f"},
	OpFGt: {OpFGt, ArityBinary, ">f"},
	OpFGe: {OpFGe, ArityBinary, ">=f"},

	OpAnd: {OpAnd, ArityBinary, "&&"},
	OpOr:  {OpOr, ArityBinary, "||"},

	OpBitAnd: {OpBitAnd, ArityBinary, "&"},
	OpBitOr:  {OpBitOr, ArityBinary, "|"},
	OpBitXor: {OpBitXor, ArityBinary, "^"},
	OpShl:    {OpShl, ArityBinary, "<<"},
	OpAShr:   {OpAShr, ArityBinary, ">>"},
	OpLShr:   {OpLShr, ArityBinary, ">>u"},

	OpConcat:     {OpConcat, ArityBinary, "concat"},
	OpZeroExtend: {OpZeroExtend, ArityBinary, "zext"},
	OpSignExtend: {OpSignExtend, ArityBinary, "sext"},

	OpArray:  {OpArray, ArityBinary, "array"},
	OpOffset: {OpOffset, ArityBinary, "."},
	OpSelect: {OpSelect, ArityBinary, "select"},

	OpImplies: {OpImplies, ArityBinary, "=>"},
	OpIff:     {OpIff, ArityBinary, "<=>"},
	OpLet:     {OpLet, ArityBinary, "let"},

	OpIte:        {OpIte, ArityTernary, "ite"},
	OpStore:      {OpStore, ArityTernary, "store"},
	OpBitExtract: {OpBitExtract, ArityTernary, "extract"},

	OpFunction:     {OpFunction, ArityPolynary, "f"},
	OpFunctionCall: {OpFunctionCall, ArityPolynary, "apply"},
}

// Op returns the singleton operator for code. Panics on an unknown code.
func Op(code OpCode) *Operator {
	op, ok := operators[code]
	assert(ok, "unknown operator code: %d", int(code))
	return op
}

// NegateCompare returns the comparison operator expressing the negation
// of op, e.g. < becomes >=. Panics if op is not a comparison.
func NegateCompare(op *Operator) *Operator {
	switch op.Code {
	case OpEq:
		return Op(OpNe)
	case OpNe:
		return Op(OpEq)
	case OpSLt:
		return Op(OpSGe)
	case OpSLe:
		return Op(OpSGt)
	case OpSGt:
		return Op(OpSLe)
	case OpSGe:
		return Op(OpSLt)
	case OpULt:
		return Op(OpUGe)
	case OpULe:
		return Op(OpUGt)
	case OpUGt:
		return Op(OpULe)
	case OpUGe:
		return Op(OpULt)
	case OpFEq:
		return Op(OpFNe)
	case OpFNe:
		return Op(OpFEq)
	case OpFLt:
		return Op(OpFGe)
	case OpFLe:
		return Op(OpFGt)
	case OpFGt:
		return Op(OpFLe)
	case OpFGe:
		return Op(OpFLt)
	default:
		panic(fmt.Sprintf("negate: not a comparison operator: %s", op.Symbol))
	}
}
