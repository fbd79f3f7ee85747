package parser

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/token"
)

// parseMatchExpression parses `subject :: { pattern -> body, ... }`.
// A `_` pattern is the wildcard.
func (p *Parser) parseMatchExpression(subject ast.Expression) ast.Expression {
	match := &ast.MatchExpression{Token: p.curToken, Subject: subject, Arms: []*ast.MatchArm{}}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}

	for {
		p.skipSeparators()
		if p.peekTokenIs(token.RBRACE) {
			p.nextToken()
			return match
		}
		p.nextToken()

		arm := p.parseMatchArm()
		if arm == nil {
			return nil
		}
		match.Arms = append(match.Arms, arm)

		if !p.peekTokenIs(token.SEPARATOR) && !p.peekTokenIs(token.RBRACE) {
			p.peekError(token.RBRACE)
			return nil
		}
	}
}

func (p *Parser) parseMatchArm() *ast.MatchArm {
	var pattern ast.Expression
	if p.curTokenIs(token.EMPTY) && p.peekTokenIs(token.ARROW) {
		pattern = nil
	} else {
		pattern = p.parseExpression(LOWEST)
		if pattern == nil {
			return nil
		}
	}
	if !p.expectPeek(token.ARROW) {
		return nil
	}
	arm := &ast.MatchArm{Token: p.curToken, Pattern: pattern}
	p.nextToken()
	arm.Body = p.parseExpression(LOWEST)
	if arm.Body == nil {
		return nil
	}
	return arm
}
