package ast

import (
	"strings"

	"github.com/funvibe/inkvm/internal/token"
)

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string
	GetToken() token.Token
	String() string
}

// Expression is a Node that produces a value. Ink has no statements.
type Expression interface {
	Node
	expressionNode()
}

// Unit is a node whose code runs in a frame of its own: the program, a
// function literal, or a match arm compiled to a separate block.
type Unit interface {
	Node
	unitNode()
	UnitFrame() *Frame
}

// Frame lists the bindings whose storage lives in a unit's register file.
type Frame struct {
	Locals []*Binding
}

func (f *Frame) UnitFrame() *Frame { return f }

// Declare appends b to the frame's locals.
func (f *Frame) Declare(b *Binding) {
	f.Locals = append(f.Locals, b)
}

// Binding is one declared name. Every Identifier that refers to the same
// declaration shares the same *Binding.
type Binding struct {
	Name  string
	ID    int
	Owner Unit

	// Param is the position in the owner's parameter list, or -1.
	Param int

	// Defs counts `:=` definitions of this binding.
	Defs int

	// Function is the literal bound by the only definition, if any. Used
	// for static arity checks.
	Function *FunctionLiteral

	// Escapes is set by escape analysis when the binding is referenced from
	// a unit other than its owner.
	Escapes bool
}

// Program is the root node of every AST our parser produces.
type Program struct {
	Token       token.Token
	File        string
	Expressions []Expression
	Frame
}

func (p *Program) unitNode()             {}
func (p *Program) GetToken() token.Token { return p.Token }
func (p *Program) TokenLiteral() string {
	if len(p.Expressions) > 0 {
		return p.Expressions[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	parts := make([]string, len(p.Expressions))
	for i, e := range p.Expressions {
		parts[i] = e.String()
	}
	return strings.Join(parts, "\n")
}

// IsLiteral reports whether e is a constant literal.
func IsLiteral(e Expression) bool {
	switch e.(type) {
	case *NumberLiteral, *StringLiteral, *BooleanLiteral, *EmptyLiteral:
		return true
	}
	return false
}
