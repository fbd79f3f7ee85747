package parser

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/token"
)

// MaxRecursionDepth bounds expression nesting so that pathological input
// reports an error instead of exhausting the Go stack.
const MaxRecursionDepth = 1000

const (
	_ int = iota
	LOWEST
	DEFINE  // :=
	MATCH   // ::
	OR      // |
	XOR     // ^
	AND     // &
	COMPARE // > < =
	SUM     // + -
	PRODUCT // * /
	MODULUS // %
	PREFIX  // ~x
	CALL    // f(x) a.b
)

var precedences = map[token.TokenType]int{
	token.DEFINE:  DEFINE,
	token.MATCH:   MATCH,
	token.OR:      OR,
	token.XOR:     XOR,
	token.AND:     AND,
	token.GT:      COMPARE,
	token.LT:      COMPARE,
	token.EQ:      COMPARE,
	token.PLUS:    SUM,
	token.MINUS:   SUM,
	token.STAR:    PRODUCT,
	token.SLASH:   PRODUCT,
	token.PERCENT: MODULUS,
	token.LPAREN:  CALL,
	token.DOT:     CALL,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

type Parser struct {
	tokens []token.Token
	pos    int
	ctx    *pipeline.PipelineContext

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn

	depth int
	// failed is set when the current top-level expression reported an
	// error; further errors are suppressed until the parser resynchronises.
	failed bool
}

func New(tokens []token.Token, ctx *pipeline.PipelineContext) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	p := &Parser{tokens: tokens, ctx: ctx}

	p.prefixParseFns = map[token.TokenType]prefixParseFn{
		token.IDENT:    p.parseIdentifier,
		token.EMPTY:    p.parseUnderscore,
		token.NUMBER:   p.parseNumberLiteral,
		token.STRING:   p.parseStringLiteral,
		token.TRUE:     p.parseBoolean,
		token.FALSE:    p.parseBoolean,
		token.TILDE:    p.parsePrefixExpression,
		token.LPAREN:   p.parseGroupedExpression,
		token.LBRACKET: p.parseListLiteral,
		token.LBRACE:   p.parseObjectLiteral,
	}
	p.infixParseFns = map[token.TokenType]infixParseFn{
		token.DEFINE: p.parseDefineExpression,
		token.MATCH:  p.parseMatchExpression,
		token.LPAREN: p.parseCallExpression,
		token.DOT:    p.parseAccessExpression,
	}
	for _, t := range []token.TokenType{
		token.OR, token.XOR, token.AND, token.GT, token.LT, token.EQ,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
	} {
		p.infixParseFns[t] = p.parseInfixExpression
	}

	// Read two tokens, so curToken and peekToken are both set
	p.curToken = p.tokens[0]
	p.peekToken = p.at(1)
	p.pos = 0
	return p
}

func (p *Parser) at(i int) token.Token {
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.curToken = p.tokens[p.pos]
	p.peekToken = p.at(p.pos + 1)
}

func (p *Parser) curTokenIs(t token.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) errorAt(code diagnostics.ErrorCode, tok token.Token, format string, args ...interface{}) {
	if p.failed {
		return
	}
	p.failed = true
	p.ctx.AddError(diagnostics.NewError(code, tok, format, args...))
}

func (p *Parser) peekError(t token.TokenType) {
	if p.peekTokenIs(token.EOF) {
		p.errorAt(diagnostics.ErrP002, p.peekToken, "unexpected end of input, expected %s", t)
		return
	}
	p.errorAt(diagnostics.ErrP001, p.peekToken, "expected %s, got %s", t, describe(p.peekToken))
}

func (p *Parser) noPrefixParseFnError(tok token.Token) {
	if tok.Type == token.EOF {
		p.errorAt(diagnostics.ErrP002, tok, "unexpected end of input")
		return
	}
	p.errorAt(diagnostics.ErrP001, tok, "unexpected %s", describe(tok))
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.SEPARATOR:
		if tok.Lexeme == "\n" {
			return "newline"
		}
		return "','"
	case token.EOF:
		return "end of input"
	}
	return "'" + tok.Lexeme + "'"
}

// ParseProgram parses a sequence of separated expressions until EOF.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{Token: p.curToken}

	for !p.curTokenIs(token.EOF) {
		if p.curTokenIs(token.SEPARATOR) {
			p.nextToken()
			continue
		}
		p.failed = false
		expr := p.parseExpression(LOWEST)
		if expr != nil && !p.failed {
			program.Expressions = append(program.Expressions, expr)
			if !p.peekTokenIs(token.SEPARATOR) && !p.peekTokenIs(token.EOF) {
				p.errorAt(diagnostics.ErrP001, p.peekToken, "unexpected %s after expression", describe(p.peekToken))
			}
		}
		if p.failed {
			p.synchronize()
			continue
		}
		p.nextToken()
	}
	return program
}

// synchronize skips to the next top-level separator.
func (p *Parser) synchronize() {
	depth := 0
	for !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.LPAREN, token.LBRACKET, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACKET, token.RBRACE:
			if depth > 0 {
				depth--
			}
		case token.SEPARATOR:
			if depth == 0 {
				p.nextToken()
				return
			}
		}
		p.nextToken()
	}
}

// skipSeparators advances while the peek token is a separator.
func (p *Parser) skipSeparators() {
	for p.peekTokenIs(token.SEPARATOR) {
		p.nextToken()
	}
}
