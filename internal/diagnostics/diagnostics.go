// Package diagnostics defines the errors reported before a program runs:
// lexer, parser, name resolution and code generation failures.
package diagnostics

import (
	"fmt"

	"github.com/funvibe/inkvm/internal/token"
)

// ErrorCode classifies a diagnostic. The first letter names the stage:
// L lexer, P parser, A analyzer, C code generator, R runtime.
type ErrorCode string

const (
	ErrL001 ErrorCode = "L001" // illegal character
	ErrL002 ErrorCode = "L002" // unterminated string or comment
	ErrL003 ErrorCode = "L003" // malformed number

	ErrP001 ErrorCode = "P001" // unexpected token
	ErrP002 ErrorCode = "P002" // unexpected end of input
	ErrP003 ErrorCode = "P003" // invalid parameter list
	ErrP004 ErrorCode = "P004" // expression too deeply nested

	ErrA001 ErrorCode = "A001" // unresolved name
	ErrA002 ErrorCode = "A002" // invalid assignment target

	ErrC001 ErrorCode = "C001" // arity mismatch
	ErrC002 ErrorCode = "C002" // unsupported node
	ErrC003 ErrorCode = "C003" // block limits exceeded

	ErrR001 ErrorCode = "R001" // runtime error surfaced by the backend
)

// DiagnosticError is a compile-time error with the position it refers to.
type DiagnosticError struct {
	Code    ErrorCode
	Token   token.Token
	Message string
	File    string
}

func NewError(code ErrorCode, tok token.Token, format string, args ...interface{}) *DiagnosticError {
	return &DiagnosticError{
		Code:    code,
		Token:   tok,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *DiagnosticError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	if e.Token.Line == 0 {
		return fmt.Sprintf("%s: error [%s]: %s", file, e.Code, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: error [%s]: %s", file, e.Token.Line, e.Token.Column, e.Code, e.Message)
}

// IsCompileError reports whether the code belongs to a stage that runs
// before execution.
func (e *DiagnosticError) IsCompileError() bool {
	return len(e.Code) > 0 && e.Code[0] != 'R'
}
