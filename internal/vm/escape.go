package vm

import "github.com/funvibe/inkvm/internal/ast"

// MarkEscapes sets Binding.Escapes on every binding that is referenced from
// a unit other than the one owning it. Such bindings live in cells; all
// others stay in plain registers. Mutation alone never promotes a binding.
func MarkEscapes(program *ast.Program) {
	if program == nil {
		return
	}
	for _, expr := range program.Expressions {
		markEscapes(expr, program)
	}
}

func markEscapes(node ast.Expression, unit ast.Unit) {
	switch n := node.(type) {
	case *ast.Identifier:
		if n.Binding != nil && n.Binding.Owner != unit {
			n.Binding.Escapes = true
		}

	case *ast.PrefixExpression:
		markEscapes(n.Right, unit)

	case *ast.InfixExpression:
		markEscapes(n.Left, unit)
		markEscapes(n.Right, unit)

	case *ast.DefineExpression:
		markEscapes(n.Value, unit)
		markEscapes(n.Target, unit)

	case *ast.AccessExpression:
		markEscapes(n.Left, unit)
		markEscapes(n.Key, unit)

	case *ast.CallExpression:
		markEscapes(n.Function, unit)
		for _, arg := range n.Arguments {
			markEscapes(arg, unit)
		}

	case *ast.MatchExpression:
		markEscapes(n.Subject, unit)
		for _, arm := range n.Arms {
			if arm.Pattern != nil {
				markEscapes(arm.Pattern, unit)
			}
			body := unit
			if !arm.Inline() {
				body = arm
			}
			markEscapes(arm.Body, body)
		}

	case *ast.ExpressionList:
		for _, expr := range n.Expressions {
			markEscapes(expr, unit)
		}

	case *ast.ListLiteral:
		for _, el := range n.Elements {
			markEscapes(el, unit)
		}

	case *ast.ObjectLiteral:
		for _, entry := range n.Entries {
			markEscapes(entry.Key, unit)
			markEscapes(entry.Value, unit)
		}

	case *ast.FunctionLiteral:
		markEscapes(n.Body, n)
	}
}
