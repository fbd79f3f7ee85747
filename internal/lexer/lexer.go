package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number

	// last significant token type, used for newline separators and for
	// lexing numbers right after an accessor dot
	last   token.TokenType
	errors []*diagnostics.DiagnosticError
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		l.readPosition++
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// Errors returns the diagnostics collected while tokenizing.
func (l *Lexer) Errors() []*diagnostics.DiagnosticError {
	return l.errors
}

// Tokenize consumes the whole input. The returned slice always ends with EOF.
func (l *Lexer) Tokenize() []token.Token {
	var tokens []token.Token
	for {
		tok := l.NextToken()
		if tok.Type == token.SEPARATOR && len(tokens) > 0 && tokens[len(tokens)-1].Type == token.SEPARATOR {
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

func (l *Lexer) NextToken() token.Token {
	tok := l.nextToken()
	if tok.Type != token.SEPARATOR {
		l.last = tok.Type
	} else {
		l.last = token.SEPARATOR
	}
	return tok
}

func (l *Lexer) nextToken() token.Token {
	for {
		l.skipWhitespace()
		if l.ch == '\n' {
			line, col := l.line, l.column
			l.readChar()
			if l.last.EndsExpression() {
				return token.Token{Type: token.SEPARATOR, Lexeme: "\n", Line: line, Column: col}
			}
			continue
		}
		break
	}

	line, col := l.line, l.column
	simple := func(t token.TokenType, lexeme string) token.Token {
		for range []rune(lexeme) {
			l.readChar()
		}
		return token.Token{Type: t, Lexeme: lexeme, Literal: lexeme, Line: line, Column: col}
	}

	switch l.ch {
	case 0:
		return token.Token{Type: token.EOF, Line: line, Column: col}
	case ',':
		return simple(token.SEPARATOR, ",")
	case ':':
		switch l.peekChar() {
		case '=':
			return simple(token.DEFINE, ":=")
		case ':':
			return simple(token.MATCH, "::")
		}
		return simple(token.COLON, ":")
	case '-':
		if l.peekChar() == '>' {
			return simple(token.ARROW, "->")
		}
		return simple(token.MINUS, "-")
	case '=':
		if l.peekChar() == '>' {
			return simple(token.FNARROW, "=>")
		}
		return simple(token.EQ, "=")
	case '.':
		return simple(token.DOT, ".")
	case '+':
		return simple(token.PLUS, "+")
	case '*':
		return simple(token.STAR, "*")
	case '/':
		return simple(token.SLASH, "/")
	case '%':
		return simple(token.PERCENT, "%")
	case '~':
		return simple(token.TILDE, "~")
	case '>':
		return simple(token.GT, ">")
	case '<':
		return simple(token.LT, "<")
	case '&':
		return simple(token.AND, "&")
	case '|':
		return simple(token.OR, "|")
	case '^':
		return simple(token.XOR, "^")
	case '(':
		return simple(token.LPAREN, "(")
	case ')':
		return simple(token.RPAREN, ")")
	case '[':
		return simple(token.LBRACKET, "[")
	case ']':
		return simple(token.RBRACKET, "]")
	case '{':
		return simple(token.LBRACE, "{")
	case '}':
		return simple(token.RBRACE, "}")
	case '\'':
		s, ok := l.readString()
		if !ok {
			l.errorf(diagnostics.ErrL002, line, col, "unterminated string literal")
		}
		return token.Token{Type: token.STRING, Lexeme: "'" + s + "'", Literal: s, Line: line, Column: col}
	}

	if isDigit(l.ch) {
		return l.readNumber(line, col)
	}
	if isLetter(l.ch) {
		ident := l.readIdentifier()
		return token.Token{Type: token.LookupIdent(ident), Lexeme: ident, Literal: ident, Line: line, Column: col}
	}

	ch := l.ch
	l.readChar()
	l.errorf(diagnostics.ErrL001, line, col, "unexpected character %q", ch)
	return token.Token{Type: token.ILLEGAL, Lexeme: string(ch), Line: line, Column: col}
}

// escapes maps the character after a backslash to the byte it stands for.
// A backslash before any other character makes that character literal.
var escapes = map[rune]rune{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'\\': '\\',
	'\'': '\'',
}

// readString reads a single-quoted string, decoding escapes.
func (l *Lexer) readString() (string, bool) {
	var sb strings.Builder
	l.readChar() // opening quote
	for {
		switch l.ch {
		case 0:
			return sb.String(), false
		case '\'':
			l.readChar()
			return sb.String(), true
		case '\\':
			l.readChar()
			if l.ch == 0 {
				return sb.String(), false
			}
			if r, ok := escapes[l.ch]; ok {
				sb.WriteRune(r)
				l.readChar()
				continue
			}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '?' || l.ch == '!' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber(line, col int) token.Token {
	position := l.position
	// after an accessor dot, `a.0.1` is two integer keys, not a float
	allowFraction := l.last != token.DOT
	for isDigit(l.ch) {
		l.readChar()
	}
	if allowFraction && l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lexeme := l.input[position:l.position]
	n, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		l.errorf(diagnostics.ErrL003, line, col, "malformed number %q", lexeme)
	}
	return token.Token{Type: token.NUMBER, Lexeme: lexeme, Literal: n, Line: line, Column: col}
}

func (l *Lexer) skipWhitespace() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch != '`' {
			return
		}
		line, col := l.line, l.column
		if l.peekChar() == '`' {
			// `` line comment
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		l.readChar()
		for l.ch != '`' && l.ch != 0 {
			l.readChar()
		}
		if l.ch == 0 {
			l.errorf(diagnostics.ErrL002, line, col, "unterminated comment")
			return
		}
		l.readChar()
	}
}

func (l *Lexer) errorf(code diagnostics.ErrorCode, line, col int, format string, args ...interface{}) {
	tok := token.Token{Line: line, Column: col}
	l.errors = append(l.errors, diagnostics.NewError(code, tok, format, args...))
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
