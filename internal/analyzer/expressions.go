package analyzer

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
)

func (a *Analyzer) resolve(node ast.Expression, s *scope) {
	switch n := node.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.EmptyLiteral:
		// nothing to bind

	case *ast.Identifier:
		a.resolveIdentifier(n, s)

	case *ast.PrefixExpression:
		a.resolve(n.Right, s)

	case *ast.InfixExpression:
		a.resolve(n.Left, s)
		a.resolve(n.Right, s)

	case *ast.DefineExpression:
		a.resolveDefine(n, s)

	case *ast.AccessExpression:
		a.resolve(n.Left, s)
		a.resolve(n.Key, s)

	case *ast.CallExpression:
		a.resolve(n.Function, s)
		for _, arg := range n.Arguments {
			a.resolve(arg, s)
		}

	case *ast.MatchExpression:
		a.resolve(n.Subject, s)
		for _, arm := range n.Arms {
			if arm.Pattern != nil {
				a.resolve(arm.Pattern, s)
			}
			a.resolveArmBody(arm, s)
		}

	case *ast.ExpressionList:
		inner := newScope(s, s.unit)
		for _, expr := range n.Expressions {
			a.resolve(expr, inner)
		}

	case *ast.ListLiteral:
		for _, el := range n.Elements {
			a.resolve(el, s)
		}

	case *ast.ObjectLiteral:
		for _, entry := range n.Entries {
			a.resolve(entry.Key, s)
			a.resolve(entry.Value, s)
		}

	case *ast.FunctionLiteral:
		a.deferred = append(a.deferred, deferredBody{fn: n, scope: s})

	default:
		a.addError(diagnostics.ErrC002, node.GetToken(), "unsupported expression %T", node)
	}
}

func (a *Analyzer) resolveIdentifier(ident *ast.Identifier, s *scope) {
	if b := s.lookup(ident.Value); b != nil {
		ident.Binding = b
		return
	}
	if a.globals[ident.Value] {
		ident.Global = true
		return
	}
	a.addError(diagnostics.ErrA001, ident.Token, "undefined name %q", ident.Value)
}

// resolveDefine handles `target := value`. The value is resolved first, so
// `x := x + 1` reads an enclosing x before declaring a local one.
func (a *Analyzer) resolveDefine(def *ast.DefineExpression, s *scope) {
	a.resolve(def.Value, s)

	switch target := def.Target.(type) {
	case *ast.Identifier:
		b, ok := s.names[target.Value]
		if !ok {
			b = a.declare(s, target, -1)
		}
		target.Binding = b
		b.Defs++
		if fn, isFn := def.Value.(*ast.FunctionLiteral); isFn && b.Defs == 1 && b.Param < 0 {
			b.Function = fn
		} else {
			b.Function = nil
		}

	case *ast.EmptyLiteral:
		if target.Token.Lexeme != "_" {
			a.addError(diagnostics.ErrA002, def.Token, "invalid assignment target %s", target.String())
		}

	case *ast.AccessExpression:
		a.resolve(target.Left, s)
		a.resolve(target.Key, s)

	default:
		a.addError(diagnostics.ErrA002, def.Token, "invalid assignment target %s", def.Target.String())
	}
}

// resolveArmBody resolves an arm body in the arm's own unit. An expression
// list body gets its own scope owned by the arm; any other body declares
// into the enclosing scope.
func (a *Analyzer) resolveArmBody(arm *ast.MatchArm, s *scope) {
	unit := s.unit
	if !arm.Inline() {
		unit = arm
	}
	if list, ok := arm.Body.(*ast.ExpressionList); ok {
		inner := newScope(s, unit)
		for _, expr := range list.Expressions {
			a.resolve(expr, inner)
		}
		return
	}
	a.resolve(arm.Body, s)
}

func (a *Analyzer) resolveFunctionBody(fn *ast.FunctionLiteral, parent *scope) {
	s := newScope(parent, fn)
	for i, param := range fn.Parameters {
		if param.IsDiscard() {
			continue
		}
		a.declare(s, param, i)
	}
	a.resolve(fn.Body, s)
}
