package vm

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

// MaxRegisters bounds the register file of a single Block.
const MaxRegisters = 1 << 16

// Compiler lowers a resolved program into Blocks. One Compiler exists per
// unit being compiled; nested units get a child compiler whose enclosing
// field points at the parent.
type Compiler struct {
	enclosing *Compiler
	unit      ast.Unit
	block     *Block

	// slots maps bindings owned by this unit to their registers.
	slots map[*ast.Binding]int
	// binds maps captured bindings to this block's bind list.
	binds map[*ast.Binding]int
	// consts deduplicates the constant pool.
	consts map[constKey]int

	nextReg int

	// shared by the whole compilation
	natives *NativeRegistry
	file    string
	nextID  *int
	errors  *[]*diagnostics.DiagnosticError
}

// NewCompiler creates a compiler for a top-level program using the default
// natives.
func NewCompiler() *Compiler {
	id := 0
	errs := []*diagnostics.DiagnosticError{}
	return &Compiler{
		natives: DefaultNatives(),
		nextID:  &id,
		errors:  &errs,
	}
}

// SetNatives sets the registry global names are looked up in.
func (c *Compiler) SetNatives(r *NativeRegistry) {
	c.natives = r
}

// SetFile names the source file in diagnostics and the root block.
func (c *Compiler) SetFile(file string) {
	c.file = file
}

// Errors returns every diagnostic reported by the last Compile.
func (c *Compiler) Errors() []*diagnostics.DiagnosticError {
	return *c.errors
}

// Compile lowers a resolved program to its root Block. The program must
// have been through the analyzer; escape analysis is run here.
func (c *Compiler) Compile(program *ast.Program) (*Block, error) {
	*c.errors = (*c.errors)[:0]
	*c.nextID = 0
	MarkEscapes(program)

	name := "<program>"
	if c.file != "" {
		name = c.file
	} else if program.File != "" {
		name = program.File
	}

	c.unit = program
	c.compileUnit(name, nil, program.Expressions, program.Token)

	if errs := *c.errors; len(errs) > 0 {
		return nil, errs[0]
	}
	return c.block, nil
}

func (c *Compiler) newChild(unit ast.Unit) *Compiler {
	return &Compiler{
		enclosing: c,
		unit:      unit,
		natives:   c.natives,
		file:      c.file,
		nextID:    c.nextID,
		errors:    c.errors,
	}
}

// compileUnit compiles the body of c.unit into c.block. Parameters occupy
// the leading registers; every other local of the unit gets the next free
// register, then temporaries follow.
func (c *Compiler) compileUnit(name string, params []*ast.Identifier, body []ast.Expression, tok token.Token) {
	c.block = &Block{ID: *c.nextID, Name: name, Params: len(params)}
	*c.nextID++
	c.slots = make(map[*ast.Binding]int)
	c.binds = make(map[*ast.Binding]int)
	c.consts = make(map[constKey]int)
	c.nextReg = len(params)

	locals := c.unit.UnitFrame().Locals
	for _, b := range locals {
		if b.Param >= 0 {
			c.slots[b] = b.Param
		} else {
			c.slots[b] = c.allocReg()
		}
	}

	// prologue
	for _, b := range locals {
		if !b.Escapes {
			continue
		}
		slot := c.slots[b]
		src := -1
		if b.Param >= 0 {
			src = slot
		}
		c.emit(Instruction{Op: OP_MAKE_CELL, Dest: slot, A: src}, tok)
	}

	result := -1
	for i, expr := range body {
		result = c.compileExpr(expr, i == len(body)-1)
	}
	if result < 0 {
		result = c.allocReg()
		c.emit(Instruction{Op: OP_LOAD_CONST, Dest: result, K: c.addConst(EmptyVal())}, tok)
	}
	c.block.Ret = result
	c.block.Slots = c.nextReg

	if c.block.Slots > MaxRegisters {
		c.addError(diagnostics.ErrC003, tok, "%s needs %d registers (limit %d)", name, c.block.Slots, MaxRegisters)
	}
}

func (c *Compiler) addError(code diagnostics.ErrorCode, tok token.Token, format string, args ...interface{}) {
	err := diagnostics.NewError(code, tok, format, args...)
	err.File = c.file
	*c.errors = append(*c.errors, err)
}
