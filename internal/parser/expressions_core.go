package parser

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

func (p *Parser) parseExpression(precedence int) ast.Expression {
	p.depth++
	defer func() { p.depth-- }()

	if p.depth > MaxRecursionDepth {
		p.errorAt(diagnostics.ErrP004, p.curToken, "expression too complex: recursion depth limit exceeded")
		return nil
	}

	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
		if leftExp == nil {
			return nil
		}
	}

	return leftExp
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	expression := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Lexeme,
	}
	p.nextToken()
	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}
	return expression
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expression := &ast.InfixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Lexeme,
		Left:     left,
	}

	precedence := p.curPrecedence()
	p.nextToken()
	expression.Right = p.parseExpression(precedence)
	if expression.Right == nil {
		return nil
	}
	return expression
}

// parseDefineExpression parses `target := value`. It is right-associative;
// target validity is checked by the analyzer.
func (p *Parser) parseDefineExpression(left ast.Expression) ast.Expression {
	expression := &ast.DefineExpression{Token: p.curToken, Target: left}
	p.nextToken()
	expression.Value = p.parseExpression(DEFINE - 1)
	if expression.Value == nil {
		return nil
	}
	if fn, ok := expression.Value.(*ast.FunctionLiteral); ok {
		if ident, ok := left.(*ast.Identifier); ok {
			fn.Name = ident.Value
		}
	}
	return expression
}

// parseGroupedExpression parses `( ... )`: an expression list, the empty
// value `()`, or the parameter list of a function literal.
func (p *Parser) parseGroupedExpression() ast.Expression {
	tok := p.curToken
	p.skipSeparators()

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		if p.peekTokenIs(token.FNARROW) {
			p.nextToken()
			return p.parseFunctionBody(tok, nil)
		}
		return &ast.EmptyLiteral{Token: tok}
	}

	exprs := p.parseSeparatedList(token.RPAREN)
	if exprs == nil {
		return nil
	}

	if p.peekTokenIs(token.FNARROW) {
		params := make([]*ast.Identifier, 0, len(exprs))
		for _, e := range exprs {
			switch e := e.(type) {
			case *ast.Identifier:
				params = append(params, e)
			case *ast.EmptyLiteral:
				params = append(params, &ast.Identifier{Token: e.Token, Value: "_"})
			default:
				p.errorAt(diagnostics.ErrP003, e.GetToken(), "invalid parameter %s", e.String())
				return nil
			}
		}
		p.nextToken()
		return p.parseFunctionBody(tok, params)
	}

	return &ast.ExpressionList{Token: tok, Expressions: exprs}
}

// parseSeparatedList parses expressions separated by SEPARATOR up to the
// closing token. curToken is the opening token on entry and the closing
// token on exit.
func (p *Parser) parseSeparatedList(end token.TokenType) []ast.Expression {
	list := []ast.Expression{}
	for {
		p.skipSeparators()
		if p.peekTokenIs(end) {
			p.nextToken()
			return list
		}
		p.nextToken()
		expr := p.parseExpression(LOWEST)
		if expr == nil {
			return nil
		}
		list = append(list, expr)
		if !p.peekTokenIs(token.SEPARATOR) && !p.peekTokenIs(end) {
			p.peekError(end)
			return nil
		}
	}
}
