package token

import "fmt"

type TokenType string

// Token is a single lexeme with its source position.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{} // float64 for NUMBER, string for STRING and IDENT
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Lexeme, t.Line, t.Column)
}

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	// SEPARATOR is an explicit comma or a significant newline.
	SEPARATOR TokenType = "SEPARATOR"

	IDENT  TokenType = "IDENT"
	EMPTY  TokenType = "_"
	NUMBER TokenType = "NUMBER"
	STRING TokenType = "STRING"
	TRUE   TokenType = "true"
	FALSE  TokenType = "false"

	DOT     TokenType = "."
	COLON   TokenType = ":"
	DEFINE  TokenType = ":="
	MATCH   TokenType = "::"
	ARROW   TokenType = "->"
	FNARROW TokenType = "=>"

	PLUS    TokenType = "+"
	MINUS   TokenType = "-"
	STAR    TokenType = "*"
	SLASH   TokenType = "/"
	PERCENT TokenType = "%"
	TILDE   TokenType = "~"

	GT  TokenType = ">"
	LT  TokenType = "<"
	EQ  TokenType = "="
	AND TokenType = "&"
	OR  TokenType = "|"
	XOR TokenType = "^"

	LPAREN   TokenType = "("
	RPAREN   TokenType = ")"
	LBRACKET TokenType = "["
	RBRACKET TokenType = "]"
	LBRACE   TokenType = "{"
	RBRACE   TokenType = "}"
)

var keywords = map[string]TokenType{
	"true":  TRUE,
	"false": FALSE,
}

// LookupIdent returns the keyword type for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	if ident == "_" {
		return EMPTY
	}
	return IDENT
}

// EndsExpression reports whether a newline following a token of this type
// terminates the current expression.
func (t TokenType) EndsExpression() bool {
	switch t {
	case IDENT, EMPTY, NUMBER, STRING, TRUE, FALSE, RPAREN, RBRACKET, RBRACE:
		return true
	}
	return false
}
