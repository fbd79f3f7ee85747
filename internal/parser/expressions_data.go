package parser

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

// parseObjectLiteral parses `{key: value, ...}`. A bare identifier key is
// the string of its name; any other key is an expression.
func (p *Parser) parseObjectLiteral() ast.Expression {
	obj := &ast.ObjectLiteral{Token: p.curToken, Entries: []*ast.ObjectEntry{}}

	for {
		p.skipSeparators()
		if p.peekTokenIs(token.RBRACE) {
			p.nextToken()
			return obj
		}
		p.nextToken()

		key := p.parseObjectKey()
		if key == nil {
			return nil
		}
		if !p.expectPeek(token.COLON) {
			return nil
		}
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		obj.Entries = append(obj.Entries, &ast.ObjectEntry{Key: key, Value: value})

		if !p.peekTokenIs(token.SEPARATOR) && !p.peekTokenIs(token.RBRACE) {
			p.peekError(token.RBRACE)
			return nil
		}
	}
}

func (p *Parser) parseObjectKey() ast.Expression {
	switch p.curToken.Type {
	case token.IDENT:
		return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Lexeme}
	case token.EMPTY:
		p.errorAt(diagnostics.ErrP001, p.curToken, "'_' is not a valid object key")
		return nil
	}
	// keys bind tighter than the ':' that follows them
	return p.parseExpression(CALL - 1)
}

// parseAccessExpression parses `left.key`. The key is an identifier name,
// a number, a string or a parenthesised expression.
func (p *Parser) parseAccessExpression(left ast.Expression) ast.Expression {
	expr := &ast.AccessExpression{Token: p.curToken, Left: left}
	p.nextToken()

	switch p.curToken.Type {
	case token.IDENT:
		expr.Key = &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Lexeme}
	case token.NUMBER:
		expr.Key = p.parseNumberLiteral()
	case token.STRING:
		expr.Key = p.parseStringLiteral()
	case token.LPAREN:
		expr.Key = p.parseGroupedExpression()
	default:
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	if expr.Key == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.curToken, Function: function}
	exp.Arguments = p.parseSeparatedList(token.RPAREN)
	if exp.Arguments == nil {
		return nil
	}
	return exp
}
