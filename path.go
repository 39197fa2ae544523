package gametime

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/gametime-project/gametime/ir"
)

// Condition is one path condition stamped with the basic block that
// produced it.
type Condition struct {
	Expr    *Expr
	BlockID int
}

// BranchRecord records one conditional branch crossed by the path and
// the direction taken.
type BranchRecord struct {
	Line  int
	Taken bool
}

// ArrayAccess records one witnessed array access: the array variable
// and the temporary-index numbers standing in for its indices.
type ArrayAccess struct {
	Array   string
	Indices []int
}

// BasicBlockAddendum tracks, per block, how many assignments each
// original variable has received on the path up to and including that
// block. Variables render as "name" for version 0 and "name<k>" for
// version k.
type BasicBlockAddendum struct {
	counts map[string]int
}

// NewBasicBlockAddendum returns an empty addendum.
func NewBasicBlockAddendum() *BasicBlockAddendum {
	return &BasicBlockAddendum{counts: make(map[string]int)}
}

// Assignments returns the number of assignments observed for the
// original (unversioned) variable name.
func (a *BasicBlockAddendum) Assignments(name string) int {
	return a.counts[baseName(name)]
}

// SetAssignments records the assignment count for a variable.
func (a *BasicBlockAddendum) SetAssignments(name string, n int) {
	a.counts[baseName(name)] = n
}

// VersionedName renders the variable at its current version.
func (a *BasicBlockAddendum) VersionedName(name string) string {
	return versionedName(baseName(name), a.Assignments(name))
}

// baseName strips the version tag: "x<2>" yields "x".
func baseName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

// versionedName renders a variable name at version k.
func versionedName(name string, k int) string {
	if k == 0 {
		return name
	}
	return name + "<" + strconv.Itoa(k) + ">"
}

// exprHasher implements immutable.Hasher for expression-keyed tables
// using the α-aware structural equality and hash.
type exprHasher struct{}

func (h *exprHasher) Hash(key interface{}) uint32 { return key.(*Expr).Hash() }
func (h *exprHasher) Equal(a, b interface{}) bool { return a.(*Expr).Equal(b.(*Expr)) }

// Path holds the mutable analysis state for one acyclic path through a
// function unit. All tables are populated by
// GenerateConditionsAndAssignments; nothing is modified after lowering
// begins. A Path must not be shared across goroutines.
type Path struct {
	cfg    Config
	unit   *ir.Unit
	blocks []*ir.Block
	cur    int // index of the block being walked

	addenda map[int]*BasicBlockAddendum

	conditions []Condition
	branches   []BranchRecord
	lines      map[int]struct{}

	variables      map[string]*Expr
	arrayVariables map[string]*Expr
	arrayDims      map[string][]uint

	addressTaken map[string]*Expr
	aliases      *immutable.Map
	aggregates   *immutable.Map

	accesses       []ArrayAccess
	tempIndexExprs map[int]*Expr

	tempVarSeq   int
	tempIndexSeq int
	tempPtrSeq   int

	warnings  []Warning
	generated bool
}

// NewPath returns a path over the ordered block ids of unit.
func NewPath(cfg Config, unit *ir.Unit, blockIDs []int) (*Path, error) {
	if unit == nil {
		return nil, ErrUnitNotFound
	}
	if len(blockIDs) == 0 {
		return nil, ErrBlockNotFound
	}
	blocks := make([]*ir.Block, 0, len(blockIDs))
	for _, id := range blockIDs {
		b := unit.Block(id)
		if b == nil {
			return nil, ErrBlockNotFound
		}
		blocks = append(blocks, b)
	}

	hasher := &exprHasher{}
	return &Path{
		cfg:    cfg,
		unit:   unit,
		blocks: blocks,

		addenda: make(map[int]*BasicBlockAddendum),
		lines:   make(map[int]struct{}),

		variables:      make(map[string]*Expr),
		arrayVariables: make(map[string]*Expr),
		arrayDims:      make(map[string][]uint),

		addressTaken: make(map[string]*Expr),
		aliases:      immutable.NewMap(hasher),
		aggregates:   immutable.NewMap(hasher),

		tempIndexExprs: make(map[int]*Expr),
	}, nil
}

// blockIndex returns the position of a block id on the path.
func (p *Path) blockIndex(id int) (int, bool) {
	for i, b := range p.blocks {
		if b.ID == id {
			return i, true
		}
	}
	return 0, false
}

// successorOf returns the path successor of a block id.
func (p *Path) successorOf(id int) (int, bool) {
	if i, ok := p.blockIndex(id); ok && i+1 < len(p.blocks) {
		return p.blocks[i+1].ID, true
	}
	return 0, false
}

// GenerateConditionsAndAssignments walks the blocks in path order,
// accumulating conditions and assignment equalities, then runs the
// post-processing passes. It must be called exactly once.
func (p *Path) GenerateConditionsAndAssignments() error {
	assert(!p.generated, "conditions already generated")
	p.generated = true

	for _, b := range p.blocks {
		p.addenda[b.ID] = NewBasicBlockAddendum()
	}

	ex := NewExecutor(p)
	log.Printf("[path] %s: %d blocks", p.unit.Name, len(p.blocks))

	for i, b := range p.blocks {
		p.cur = i
		for _, instr := range b.Instrs {
			if instr.Line > 0 {
				p.lines[instr.Line] = struct{}{}
			}
			if err := p.walkInstr(ex, b, instr); err != nil {
				return err
			}
		}
		if err := p.walkBranch(ex, b, i); err != nil {
			return err
		}
	}

	// A path with nothing to say still yields a well-formed query.
	if len(p.conditions) == 0 {
		p.appendCondition(NewTrueExpr(p.cfg.WordSize), p.blocks[0].ID)
	}

	return p.postProcess()
}

func (p *Path) walkInstr(ex *Executor, b *ir.Block, instr *ir.Instr) error {
	switch instr.Kind {
	case ir.KindSwitch:
		return NewError(ErrInput, "switch instruction in block %d: switches must be lowered to if-chains upstream", b.ID)

	case ir.KindCall:
		switch instr.Callee {
		case p.cfg.SimulateFunc:
			return nil
		case p.cfg.AssumeFunc:
			if len(instr.Srcs) == 0 {
				return NewError(ErrInput, "%s call with no argument in block %d", p.cfg.AssumeFunc, b.ID)
			}
			arg, err := ex.Trace(instr.Srcs[0], false)
			if err != nil {
				return err
			}
			arg = p.updateExpression(arg)
			zero := NewConstantExpr(0, arg.Width)
			p.appendCondition(NewCompareExpr(Op(OpNe), arg, zero, p.cfg.WordSize), b.ID)
			return nil
		}
		return p.walkAssignment(ex, b, instr)

	case ir.KindValue, ir.KindCompare:
		return p.walkAssignment(ex, b, instr)

	default:
		return nil
	}
}

// walkAssignment emits assignment equalities for instructions whose
// destination is non-temporary (or a memory reference).
func (p *Path) walkAssignment(ex *Executor, b *ir.Block, instr *ir.Instr) error {
	dst := instr.Dst()
	if dst == nil || (dst.Temporary && !dst.Memory) {
		return nil
	}

	dstExpr, err := ex.Trace(dst, false)
	if err != nil {
		return err
	}

	var srcExpr *Expr
	if dst.Memory {
		srcExpr, err = ex.Trace(instr.Srcs[0], false)
	} else {
		srcExpr, err = ex.Trace(dst, true)
	}
	if err != nil {
		return err
	}
	srcExpr = p.updateExpression(srcExpr)

	return p.generateAndLogAssignment(dstExpr, srcExpr, b.ID)
}

// walkBranch appends the branch condition for blocks with multiple
// successors, negated when the path takes the false edge.
func (p *Path) walkBranch(ex *Executor, b *ir.Block, i int) error {
	if len(b.Succs) < 2 || i+1 >= len(p.blocks) {
		return nil
	}
	branch := b.Branch()
	if branch == nil {
		return NewError(ErrInput, "block %d has %d successors but no branch instruction", b.ID, len(b.Succs))
	}

	next := p.blocks[i+1].ID
	var taken bool
	switch next {
	case b.Succs[0]:
		taken = true
	case b.Succs[1]:
		taken = false
	default:
		return NewError(ErrInput, "block %d is not a successor of block %d", next, b.ID)
	}

	cond, err := ex.Trace(branch.Srcs[0], false)
	if err != nil {
		return err
	}
	cond = p.updateExpression(cond)
	if !taken {
		cond = NewUnaryExpr(Op(OpNot), cond)
	}
	p.appendCondition(cond, b.ID)
	p.branches = append(p.branches, BranchRecord{Line: branch.Line, Taken: taken})
	return nil
}

// generateAndLogAssignment dispatches on the destination expression's
// shape, splitting composite destinations until a scalar variable,
// array element, pointer, or aggregate remains.
func (p *Path) generateAndLogAssignment(dst, src *Expr, blockID int) error {
	switch dst.Op.Code {
	case OpConcat:
		hi, lo := dst.Param(0), dst.Param(1)
		hiSlice := NewBitExtractExpr(src, lo.Width, lo.Width+hi.Width-1)
		loSlice := NewBitExtractExpr(src, 0, lo.Width-1)
		if err := p.generateAndLogAssignment(hi, hiSlice, blockID); err != nil {
			return err
		}
		return p.generateAndLogAssignment(lo, loSlice, blockID)

	case OpZeroExtend, OpSignExtend:
		x := dst.Param(0)
		return p.generateAndLogAssignment(x, NewBitExtractExpr(src, 0, x.Width-1), blockID)

	case OpBitExtract:
		x := dst.Param(0)
		lov, ok := dst.Param(1).ConstValue()
		assert(ok, "assignment: non-constant extract bound")
		hiv, ok := dst.Param(2).ConstValue()
		assert(ok, "assignment: non-constant extract bound")
		lo, hi := uint(lov.Uint64()), uint(hiv.Uint64())

		// Reassemble x around the stored slice.
		reassembled := src
		if lo > 0 {
			reassembled = NewConcatExpr(reassembled, NewBitExtractExpr(x, 0, lo-1))
		}
		if hi < x.Width-1 {
			reassembled = NewConcatExpr(NewBitExtractExpr(x, hi+1, x.Width-1), reassembled)
		}
		return p.generateAndLogAssignment(x, reassembled, blockID)

	case OpIte:
		c, a, b := dst.Param(0), dst.Param(1), dst.Param(2)
		if err := p.generateAndLogAssignment(a, NewIteExpr(c, src, a), blockID); err != nil {
			return err
		}
		return p.generateAndLogAssignment(b, src, blockID)

	case OpConstant:
		// Padding bits synthesized by aggregate reassembly absorb the
		// stored slice.
		return nil
	}

	// Pointer destinations record a definitional alias; no condition.
	if dst.Op.Code == OpFunction || dst.Type.IsPointer() {
		p.setAlias(dst, src)
		return nil
	}

	// Aggregate destinations record base and offset; no condition.
	if dst.Type.IsAggregate() {
		base, off := p.baseAggregate(src)
		p.aggregates = p.aggregates.Set(dst.Clone(), aggregateOffset{base: base.Clone(), offset: off})
		return nil
	}

	switch dst.Op.Code {
	case OpArray:
		return p.logArrayAssignment(dst, src, blockID)

	case OpVariable:
		name := baseName(dst.Value)
		k := p.bumpAssignments(name)
		lhs := NewVariableExpr(versionedName(name, k), dst.Width, dst.Type)
		p.appendCondition(NewCompareExpr(Op(OpEq), lhs, src, p.cfg.WordSize), blockID)
		return nil

	default:
		return NewError(ErrUnsupported, "assignment destination shape: %s", dst.Op)
	}
}

// logArrayAssignment emits array<k+1> = store(array<k>, i, source),
// nesting store-of-select for multi-level accesses.
func (p *Path) logArrayAssignment(dst, src *Expr, blockID int) error {
	// Collect the index chain down to the array variable leaf.
	var indices []*Expr
	base := dst
	for base.Op.Code == OpArray {
		indices = append([]*Expr{p.updateExpression(base.Param(1))}, indices...)
		base = base.Param(0)
	}
	if base.Op.Code != OpArrayVariable {
		return NewError(ErrUnsupported, "array assignment through non-array base: %s", base)
	}

	name := baseName(base.Value)
	old := NewArrayVariableExpr(p.addenda[p.blocks[p.cur].ID].VersionedName(name), base.Width, base.Type)
	k := p.bumpAssignments(name)
	updated := NewArrayVariableExpr(versionedName(name, k), base.Width, base.Type)

	rhs := storeChain(old, indices, src)
	p.appendCondition(NewCompareExpr(Op(OpEq), updated, rhs, p.cfg.WordSize), blockID)
	return nil
}

// storeChain builds nested store-of-select updates for an index chain.
func storeChain(arr *Expr, indices []*Expr, value *Expr) *Expr {
	if len(indices) == 1 {
		return NewStoreExpr(arr, indices[0], value)
	}
	inner := NewSelectExpr(arr, indices[0], arr.Width)
	return NewStoreExpr(arr, indices[0], storeChain(inner, indices[1:], value))
}

// bumpAssignments increments the assignment counter for name in the
// current block's addendum and every later block's, so subsequent uses
// pick up the new version. Returns the new version number.
func (p *Path) bumpAssignments(name string) int {
	k := p.addenda[p.blocks[p.cur].ID].Assignments(name) + 1
	for i := p.cur; i < len(p.blocks); i++ {
		p.addenda[p.blocks[i].ID].SetAssignments(name, k)
	}
	return k
}

// updateExpression renames every unversioned variable leaf to its
// current version per the current block's addendum.
func (p *Path) updateExpression(e *Expr) *Expr {
	addendum := p.addenda[p.blocks[p.cur].ID]
	return e.Rewrite(func(n *Expr) *Expr {
		if n.Op.Code != OpVariable && n.Op.Code != OpArrayVariable {
			return n
		}
		if strings.IndexByte(n.Value, '<') >= 0 {
			return n
		}
		if k := addendum.Assignments(n.Value); k > 0 {
			n.Value = versionedName(n.Value, k)
		}
		return n
	})
}

// promoteAddressTaken returns the synthetic temporary pointer standing
// for &x. The first promotion of a variable synthesizes the pointer,
// appends the equality *p = x at the address-taking point, and records
// the alias so later dereferences resolve back to the variable.
func (p *Path) promoteAddressTaken(op *ir.Operand) (*Expr, error) {
	name := baseName(strings.TrimLeft(op.Name, "_"))
	if fn, ok := p.addressTaken[name]; ok {
		return fn.Clone(), nil
	}
	assert(op.Type.IsPointer(), "temporary pointer construction with non-pointer type: %s", op.Type)

	varBits := op.Type.Referent.Bits
	ptrName := p.cfg.TempPtrPrefix + strconv.Itoa(p.tempPtrSeq)
	p.tempPtrSeq++

	ptr := NewArrayVariableExpr(ptrName, varBits, op.Type)
	deref := NewArrayAccessExpr(ptr, NewConstantExpr(0, p.cfg.WordSize), varBits)

	current := p.updateExpression(NewVariableExpr(name, varBits, op.Type.Referent))
	p.appendCondition(NewCompareExpr(Op(OpEq), deref, current, p.cfg.WordSize), p.blocks[p.cur].ID)

	p.setAlias(deref, NewVariableExpr(name, varBits, op.Type.Referent))

	fn := p.derefFunction(ptr)
	p.addressTaken[name] = fn
	return fn.Clone(), nil
}

// setAlias records that key is definitionally equal to value.
func (p *Path) setAlias(key, value *Expr) {
	p.aliases = p.aliases.Set(key.Clone(), value.Clone())
}

// lookupAlias returns the expression key is definitionally equal to.
func (p *Path) lookupAlias(key *Expr) (*Expr, bool) {
	v, ok := p.aliases.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Expr), true
}

func (p *Path) appendCondition(e *Expr, blockID int) {
	p.conditions = append(p.conditions, Condition{Expr: e, BlockID: blockID})
}

func (p *Path) warn(kind WarningKind, format string, args ...interface{}) {
	w := Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
	p.warnings = append(p.warnings, w)
	log.Printf("[warn] %s", w.Message)
}

// Conditions returns the accumulated conditions in path order.
func (p *Path) Conditions() []Condition {
	out := make([]Condition, len(p.conditions))
	copy(out, p.conditions)
	return out
}

// Warnings returns the warnings surfaced during analysis.
func (p *Path) Warnings() []Warning {
	out := make([]Warning, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// Branches returns the conditional branches crossed, in path order.
func (p *Path) Branches() []BranchRecord {
	out := make([]BranchRecord, len(p.branches))
	copy(out, p.branches)
	return out
}

// ArrayAccesses returns the witnessed array accesses, in path order.
func (p *Path) ArrayAccesses() []ArrayAccess {
	out := make([]ArrayAccess, len(p.accesses))
	copy(out, p.accesses)
	return out
}

// TempIndexExpr returns the original index expression a temporary
// index replaced.
func (p *Path) TempIndexExpr(k int) (*Expr, bool) {
	e, ok := p.tempIndexExprs[k]
	return e, ok
}

// TempIndexCount returns the number of temporary indices synthesized.
func (p *Path) TempIndexCount() int { return p.tempIndexSeq }

// AddressTaken returns the synthetic pointer for a promoted variable.
func (p *Path) AddressTaken(name string) (*Expr, bool) {
	e, ok := p.addressTaken[name]
	return e, ok
}

// Variables returns the scalar variable leaves referenced by the final
// conditions, sorted by name.
func (p *Path) Variables() []*Expr { return sortedLeaves(p.variables) }

// ArrayVariables returns the array variable leaves referenced by the
// final conditions, sorted by name.
func (p *Path) ArrayVariables() []*Expr { return sortedLeaves(p.arrayVariables) }

// ArrayDimensions returns the index widths and element width recorded
// for an array variable (versioned names share the base entry).
func (p *Path) ArrayDimensions(name string) []uint {
	return p.arrayDims[baseName(name)]
}

// Lines returns the sorted unique source line numbers on the path.
func (p *Path) Lines() []int {
	out := make([]int, 0, len(p.lines))
	for line := range p.lines {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}

// Config returns the configuration the path was analyzed under.
func (p *Path) Config() Config { return p.cfg }

func sortedLeaves(m map[string]*Expr) []*Expr {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Expr, len(names))
	for i, name := range names {
		out[i] = m[name]
	}
	return out
}
