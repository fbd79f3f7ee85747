package vm

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/token"
)

func (c *Compiler) allocReg() int {
	r := c.nextReg
	c.nextReg++
	return r
}

// emit appends ins, stamped with the position of tok, and returns its index.
func (c *Compiler) emit(ins Instruction, tok token.Token) int {
	ins.Pos = Pos{Line: tok.Line, Column: tok.Column}
	c.block.Code = append(c.block.Code, ins)
	return len(c.block.Code) - 1
}

// patchTargets points the branch instructions at idxs to the current end
// of code.
func (c *Compiler) patchTargets(idxs []int) {
	end := len(c.block.Code)
	for _, i := range idxs {
		c.block.Code[i].Target = end
	}
}

type constKey struct {
	typ  ValueType
	data uint64
	str  string
}

// addConst returns the pool index of v, adding it if no equal constant is
// present. Byte strings are deduplicated by content.
func (c *Compiler) addConst(v Value) int {
	key := constKey{typ: v.Type, data: v.Data}
	if v.Type == ValString {
		key.str = string(v.AsBytes().B)
	}
	if k, ok := c.consts[key]; ok {
		return k
	}
	k := c.block.AddConst(v)
	c.consts[key] = k
	return k
}

// resolveCapture returns the bind index through which this unit reaches a
// binding owned by an enclosing unit, adding binds along the chain of
// enclosing compilers as needed.
func (c *Compiler) resolveCapture(b *ast.Binding) int {
	if i, ok := c.binds[b]; ok {
		return i
	}
	parent := c.enclosing
	var bind Bind
	if slot, ok := parent.slots[b]; ok {
		bind = Bind{Local: true, Index: slot}
	} else {
		bind = Bind{Local: false, Index: parent.resolveCapture(b)}
	}
	c.block.Binds = append(c.block.Binds, bind)
	i := len(c.block.Binds) - 1
	c.binds[b] = i
	return i
}

// loadBinding emits the read of b into a fresh register.
func (c *Compiler) loadBinding(b *ast.Binding, tok token.Token) int {
	dest := c.allocReg()
	slot, own := c.slots[b]
	switch {
	case own && !b.Escapes:
		c.emit(Instruction{Op: OP_MOV, Dest: dest, A: slot}, tok)
	case own:
		c.emit(Instruction{Op: OP_LOAD_CELL, Dest: dest, A: slot}, tok)
	default:
		c.emit(Instruction{Op: OP_LOAD_ESC, Dest: dest, A: c.resolveCapture(b)}, tok)
	}
	return dest
}

// storeBinding emits the write of register src into b.
func (c *Compiler) storeBinding(b *ast.Binding, src int, tok token.Token) {
	slot, own := c.slots[b]
	switch {
	case own && !b.Escapes:
		c.emit(Instruction{Op: OP_MOV, Dest: slot, A: src}, tok)
	case own:
		c.emit(Instruction{Op: OP_STORE_CELL, A: slot, B: src}, tok)
	default:
		c.emit(Instruction{Op: OP_STORE_ESC, A: c.resolveCapture(b), B: src}, tok)
	}
}
