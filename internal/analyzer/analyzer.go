package analyzer

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

// Analyzer binds every identifier of a program to its declaration.
//
// Scopes are opened by the program, by function literals and by expression
// lists. A reference made directly in a function sees only declarations
// that precede it; function bodies are resolved after the enclosing body
// has been walked, so a reference from inside a nested function sees the
// complete enclosing scopes. This is what lets sibling functions call each
// other regardless of definition order.
type Analyzer struct {
	globals  map[string]bool
	errors   []*diagnostics.DiagnosticError
	deferred []deferredBody
	nextID   int
}

type deferredBody struct {
	fn    *ast.FunctionLiteral
	scope *scope
}

type scope struct {
	names  map[string]*ast.Binding
	parent *scope
	unit   ast.Unit
}

func newScope(parent *scope, unit ast.Unit) *scope {
	return &scope{names: make(map[string]*ast.Binding), parent: parent, unit: unit}
}

func (s *scope) lookup(name string) *ast.Binding {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.names[name]; ok {
			return b
		}
	}
	return nil
}

// New creates an Analyzer. globals are the names that resolve without a
// declaration (natives).
func New(globals map[string]bool) *Analyzer {
	if globals == nil {
		globals = DefaultGlobals()
	}
	return &Analyzer{globals: globals}
}

// Analyze resolves the program in place and returns the diagnostics found.
func (a *Analyzer) Analyze(program *ast.Program) []*diagnostics.DiagnosticError {
	if program == nil {
		return nil
	}
	root := newScope(nil, program)
	for _, expr := range program.Expressions {
		a.resolve(expr, root)
	}
	for len(a.deferred) > 0 {
		next := a.deferred[0]
		a.deferred = a.deferred[1:]
		a.resolveFunctionBody(next.fn, next.scope)
	}
	return a.errors
}

func (a *Analyzer) declare(s *scope, ident *ast.Identifier, param int) *ast.Binding {
	a.nextID++
	b := &ast.Binding{
		Name:  ident.Value,
		ID:    a.nextID,
		Owner: s.unit,
		Param: param,
	}
	s.names[ident.Value] = b
	s.unit.UnitFrame().Declare(b)
	ident.Binding = b
	return b
}

func (a *Analyzer) addError(code diagnostics.ErrorCode, tok token.Token, format string, args ...interface{}) {
	a.errors = append(a.errors, diagnostics.NewError(code, tok, format, args...))
}
