package parser

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/token"
)

func (p *Parser) parseNumberLiteral() ast.Expression {
	value, _ := p.curToken.Literal.(float64)
	return &ast.NumberLiteral{Token: p.curToken, Value: value}
}

func (p *Parser) parseStringLiteral() ast.Expression {
	value, _ := p.curToken.Literal.(string)
	return &ast.StringLiteral{Token: p.curToken, Value: value}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(token.TRUE)}
}

// parseIdentifier parses a name use, or a one-parameter function literal
// when followed by `=>`.
func (p *Parser) parseIdentifier() ast.Expression {
	ident := &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if p.peekTokenIs(token.FNARROW) {
		p.nextToken()
		return p.parseFunctionBody(ident.Token, []*ast.Identifier{ident})
	}
	return ident
}

// parseUnderscore parses `_`: the empty value, or an ignored parameter of
// a function literal.
func (p *Parser) parseUnderscore() ast.Expression {
	tok := p.curToken
	if p.peekTokenIs(token.FNARROW) {
		p.nextToken()
		return p.parseFunctionBody(tok, []*ast.Identifier{{Token: tok, Value: "_"}})
	}
	return &ast.EmptyLiteral{Token: tok}
}

// parseFunctionBody parses the body after `=>`; curToken is the arrow.
func (p *Parser) parseFunctionBody(start token.Token, params []*ast.Identifier) ast.Expression {
	fn := &ast.FunctionLiteral{Token: p.curToken, Parameters: params}
	if fn.Parameters == nil {
		fn.Parameters = []*ast.Identifier{}
	}
	p.nextToken()
	fn.Body = p.parseExpression(DEFINE - 1)
	if fn.Body == nil {
		return nil
	}
	return fn
}

func (p *Parser) parseListLiteral() ast.Expression {
	list := &ast.ListLiteral{Token: p.curToken}
	list.Elements = p.parseSeparatedList(token.RBRACKET)
	if list.Elements == nil {
		return nil
	}
	return list
}
