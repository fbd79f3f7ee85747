package vm

import "fmt"

// Pos is a source position.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Bind names one captured cell of a Block. Local binds read register Index
// of the enclosing frame (which holds a cell); non-local binds forward the
// enclosing frame's own bind Index.
type Bind struct {
	Local bool
	Index int
}

// Instruction is one register-machine instruction. Which operand fields
// are meaningful depends on Op; unused ones are zero.
type Instruction struct {
	Op     Opcode
	Dest   int
	A      int
	B      int
	C      int
	K      int   // constant pool index
	Args   []int // argument registers of calls
	Target int   // branch target
	Tail   bool  // the result of this call is the block's result
	Pos    Pos
}

// Block is the unit of compiled code: the program, a function literal or a
// match arm.
type Block struct {
	ID     int
	Name   string
	Slots  int // register file size
	Params int
	Ret    int // register holding the result when pc runs off the end
	Consts []Value
	Binds  []Bind
	Code   []Instruction
}

func (b *Block) Inspect() string {
	if b.Name != "" {
		return fmt.Sprintf("<block %d %s>", b.ID, b.Name)
	}
	return fmt.Sprintf("<block %d>", b.ID)
}

// Nested returns the block referenced by constant k, or nil.
func (b *Block) Nested(k int) *Block {
	if k < 0 || k >= len(b.Consts) || b.Consts[k].Type != valBlock {
		return nil
	}
	return b.Consts[k].asBlock()
}

// Children returns the blocks in the constant pool, in pool order.
func (b *Block) Children() []*Block {
	var out []*Block
	for _, c := range b.Consts {
		if c.Type == valBlock {
			out = append(out, c.asBlock())
		}
	}
	return out
}

// Walk visits b and every nested block depth first.
func (b *Block) Walk(fn func(*Block)) {
	fn(b)
	for _, child := range b.Children() {
		child.Walk(fn)
	}
}

// AddConst appends v to the pool and returns its index.
func (b *Block) AddConst(v Value) int {
	b.Consts = append(b.Consts, v)
	return len(b.Consts) - 1
}

// AddBlockConst appends a nested block to the pool.
func (b *Block) AddBlockConst(child *Block) int {
	return b.AddConst(blockVal(child))
}

// IsBlockConst reports whether constant k is a nested block.
func (b *Block) IsBlockConst(k int) bool {
	return b.Nested(k) != nil
}

// Clone deep-copies the block tree. Constant values are shared; nested
// blocks and instruction slices are not.
func (b *Block) Clone() *Block {
	nb := *b
	nb.Consts = make([]Value, len(b.Consts))
	for i, c := range b.Consts {
		if c.Type == valBlock {
			nb.Consts[i] = blockVal(c.asBlock().Clone())
		} else {
			nb.Consts[i] = c
		}
	}
	nb.Binds = append([]Bind(nil), b.Binds...)
	nb.Code = make([]Instruction, len(b.Code))
	for i, ins := range b.Code {
		nb.Code[i] = ins
		if ins.Args != nil {
			nb.Code[i].Args = append([]int(nil), ins.Args...)
		}
	}
	return &nb
}

// CountInstructions totals instructions over the block tree.
func (b *Block) CountInstructions() int {
	n := 0
	b.Walk(func(blk *Block) { n += len(blk.Code) })
	return n
}

// CountBlocks totals the blocks in the tree.
func (b *Block) CountBlocks() int {
	n := 0
	b.Walk(func(*Block) { n++ })
	return n
}

// Reads returns the registers ins reads in block b. Register operands of
// the local binds of a nested block count as reads, because creating a
// closure or entering an arm resolves them.
func (b *Block) Reads(ins *Instruction) []int {
	switch ins.Op {
	case OP_MOV, OP_LOAD_CELL, OP_NEG, OP_MATCH_FAIL:
		return []int{ins.A}
	case OP_STORE_ESC:
		return []int{ins.B}
	case OP_MAKE_CELL:
		if ins.A >= 0 {
			return []int{ins.A}
		}
		return nil
	case OP_STORE_CELL, OP_GET_ELEM, OP_CONST_IF_EQ:
		return []int{ins.A, ins.B}
	case OP_SET_ELEM:
		return []int{ins.A, ins.B, ins.C}
	case OP_CALL, OP_TAIL_CALL:
		return append([]int{ins.A}, ins.Args...)
	case OP_CLOSURE, OP_CALL_ARM:
		return b.localBindRegs(ins.K)
	case OP_CALL_IF_EQ:
		return append([]int{ins.A, ins.B}, b.localBindRegs(ins.K)...)
	}
	if ins.Op.IsBinary() {
		return []int{ins.A, ins.B}
	}
	return nil
}

func (b *Block) localBindRegs(k int) []int {
	child := b.Nested(k)
	if child == nil {
		return nil
	}
	var regs []int
	for _, bind := range child.Binds {
		if bind.Local {
			regs = append(regs, bind.Index)
		}
	}
	return regs
}

// Writes returns the register ins defines, if any.
func Writes(ins *Instruction) (int, bool) {
	switch ins.Op {
	case OP_MOV, OP_LOAD_CONST, OP_LOAD_ESC, OP_MAKE_CELL, OP_LOAD_CELL,
		OP_CLOSURE, OP_CALL, OP_CALL_IF_EQ, OP_CONST_IF_EQ, OP_CALL_ARM,
		OP_MAKE_COMP, OP_GET_ELEM:
		return ins.Dest, true
	}
	if ins.Op.IsPure() {
		return ins.Dest, true
	}
	return 0, false
}
