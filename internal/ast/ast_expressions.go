package ast

import (
	"strconv"
	"strings"

	"github.com/funvibe/inkvm/internal/token"
)

type NumberLiteral struct {
	Token token.Token
	Value float64
}

func (nl *NumberLiteral) expressionNode()       {}
func (nl *NumberLiteral) TokenLiteral() string  { return nl.Token.Lexeme }
func (nl *NumberLiteral) GetToken() token.Token { return nl.Token }
func (nl *NumberLiteral) String() string        { return strconv.FormatFloat(nl.Value, 'f', -1, 64) }

type StringLiteral struct {
	Token token.Token
	Value string
}

func (sl *StringLiteral) expressionNode()       {}
func (sl *StringLiteral) TokenLiteral() string  { return sl.Token.Lexeme }
func (sl *StringLiteral) GetToken() token.Token { return sl.Token }
func (sl *StringLiteral) String() string {
	return "'" + strings.ReplaceAll(sl.Value, "'", "\\'") + "'"
}

type BooleanLiteral struct {
	Token token.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()       {}
func (bl *BooleanLiteral) TokenLiteral() string  { return bl.Token.Lexeme }
func (bl *BooleanLiteral) GetToken() token.Token { return bl.Token }
func (bl *BooleanLiteral) String() string        { return strconv.FormatBool(bl.Value) }

// EmptyLiteral is `_` in expression position or an empty group `()`.
type EmptyLiteral struct {
	Token token.Token
}

func (el *EmptyLiteral) expressionNode()       {}
func (el *EmptyLiteral) TokenLiteral() string  { return el.Token.Lexeme }
func (el *EmptyLiteral) GetToken() token.Token { return el.Token }
func (el *EmptyLiteral) String() string        { return "()" }

// Identifier is a name use or a definition target. After resolution either
// Binding is set or Global is true (a native).
type Identifier struct {
	Token   token.Token
	Value   string
	Binding *Binding
	Global  bool
}

func (i *Identifier) expressionNode()       {}
func (i *Identifier) TokenLiteral() string  { return i.Token.Lexeme }
func (i *Identifier) GetToken() token.Token { return i.Token }
func (i *Identifier) String() string        { return i.Value }

// IsDiscard reports whether the identifier is the `_` placeholder.
func (i *Identifier) IsDiscard() bool { return i.Value == "_" }

// PrefixExpression is `~x`.
type PrefixExpression struct {
	Token    token.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()       {}
func (pe *PrefixExpression) TokenLiteral() string  { return pe.Token.Lexeme }
func (pe *PrefixExpression) GetToken() token.Token { return pe.Token }
func (pe *PrefixExpression) String() string        { return "~" + pe.Right.String() }

type InfixExpression struct {
	Token    token.Token
	Operator string
	Left     Expression
	Right    Expression
}

func (ie *InfixExpression) expressionNode()       {}
func (ie *InfixExpression) TokenLiteral() string  { return ie.Token.Lexeme }
func (ie *InfixExpression) GetToken() token.Token { return ie.Token }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// DefineExpression is `target := value`. Target is an *Identifier or an
// *AccessExpression.
type DefineExpression struct {
	Token  token.Token
	Target Expression
	Value  Expression
}

func (de *DefineExpression) expressionNode()       {}
func (de *DefineExpression) TokenLiteral() string  { return de.Token.Lexeme }
func (de *DefineExpression) GetToken() token.Token { return de.Token }
func (de *DefineExpression) String() string {
	return de.Target.String() + " := " + de.Value.String()
}

// AccessExpression is `left.key`. A bare identifier key is parsed as a
// string literal.
type AccessExpression struct {
	Token token.Token
	Left  Expression
	Key   Expression
}

func (ae *AccessExpression) expressionNode()       {}
func (ae *AccessExpression) TokenLiteral() string  { return ae.Token.Lexeme }
func (ae *AccessExpression) GetToken() token.Token { return ae.Token }
func (ae *AccessExpression) String() string {
	if s, ok := ae.Key.(*StringLiteral); ok {
		return ae.Left.String() + "." + s.Value
	}
	return ae.Left.String() + ".(" + ae.Key.String() + ")"
}

type CallExpression struct {
	Token     token.Token // the '(' token
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()       {}
func (ce *CallExpression) TokenLiteral() string  { return ce.Token.Lexeme }
func (ce *CallExpression) GetToken() token.Token { return ce.Token }
func (ce *CallExpression) String() string {
	return ce.Function.String() + "(" + joinExpressions(ce.Arguments) + ")"
}

type MatchExpression struct {
	Token   token.Token // the '::' token
	Subject Expression
	Arms    []*MatchArm
}

func (me *MatchExpression) expressionNode()       {}
func (me *MatchExpression) TokenLiteral() string  { return me.Token.Lexeme }
func (me *MatchExpression) GetToken() token.Token { return me.Token }
func (me *MatchExpression) String() string {
	arms := make([]string, len(me.Arms))
	for i, a := range me.Arms {
		arms[i] = a.String()
	}
	return me.Subject.String() + " :: {" + strings.Join(arms, ", ") + "}"
}

// MatchArm is `pattern -> body`. A nil Pattern is the `_` wildcard.
type MatchArm struct {
	Token   token.Token // the '->' token
	Pattern Expression
	Body    Expression
	Frame
}

func (ma *MatchArm) unitNode()             {}
func (ma *MatchArm) TokenLiteral() string  { return ma.Token.Lexeme }
func (ma *MatchArm) GetToken() token.Token { return ma.Token }
func (ma *MatchArm) String() string {
	pattern := "_"
	if ma.Pattern != nil {
		pattern = ma.Pattern.String()
	}
	return pattern + " -> " + ma.Body.String()
}

// IsWildcard reports whether the arm matches any subject.
func (ma *MatchArm) IsWildcard() bool { return ma.Pattern == nil }

// Inline reports whether the arm's body is a literal that is loaded in
// place instead of being compiled to a separate block.
func (ma *MatchArm) Inline() bool { return IsLiteral(ma.Body) }

// ExpressionList is `(a, b, c)`; its value is the last expression's.
type ExpressionList struct {
	Token       token.Token
	Expressions []Expression
}

func (el *ExpressionList) expressionNode()       {}
func (el *ExpressionList) TokenLiteral() string  { return el.Token.Lexeme }
func (el *ExpressionList) GetToken() token.Token { return el.Token }
func (el *ExpressionList) String() string        { return "(" + joinExpressions(el.Expressions) + ")" }

type ListLiteral struct {
	Token    token.Token
	Elements []Expression
}

func (ll *ListLiteral) expressionNode()       {}
func (ll *ListLiteral) TokenLiteral() string  { return ll.Token.Lexeme }
func (ll *ListLiteral) GetToken() token.Token { return ll.Token }
func (ll *ListLiteral) String() string        { return "[" + joinExpressions(ll.Elements) + "]" }

type ObjectEntry struct {
	Key   Expression
	Value Expression
}

type ObjectLiteral struct {
	Token   token.Token
	Entries []*ObjectEntry
}

func (ol *ObjectLiteral) expressionNode()       {}
func (ol *ObjectLiteral) TokenLiteral() string  { return ol.Token.Lexeme }
func (ol *ObjectLiteral) GetToken() token.Token { return ol.Token }
func (ol *ObjectLiteral) String() string {
	parts := make([]string, len(ol.Entries))
	for i, e := range ol.Entries {
		parts[i] = e.Key.String() + ": " + e.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type FunctionLiteral struct {
	Token      token.Token // the '=>' token
	Parameters []*Identifier
	Body       Expression
	Name       string // set when the literal is directly bound to a name
	Frame
}

func (fl *FunctionLiteral) expressionNode()       {}
func (fl *FunctionLiteral) unitNode()             {}
func (fl *FunctionLiteral) TokenLiteral() string  { return fl.Token.Lexeme }
func (fl *FunctionLiteral) GetToken() token.Token { return fl.Token }
func (fl *FunctionLiteral) String() string {
	params := make([]string, len(fl.Parameters))
	for i, p := range fl.Parameters {
		params[i] = p.Value
	}
	return "(" + strings.Join(params, ", ") + ") => " + fl.Body.String()
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
