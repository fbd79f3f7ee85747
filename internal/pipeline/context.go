package pipeline

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

// PipelineContext carries a program through the stages. Later stages
// (code generation, execution) keep their own products on the backend side,
// so this package stays free of VM dependencies.
type PipelineContext struct {
	SourceCode string
	FilePath   string

	Tokens  []token.Token
	AstRoot *ast.Program

	// Globals are the names resolvable without a declaration (natives).
	Globals map[string]bool

	Errors []*diagnostics.DiagnosticError
}

func NewPipelineContext(sourceCode string) *PipelineContext {
	return &PipelineContext{SourceCode: sourceCode}
}

// AddError records a diagnostic, stamping it with the current file.
func (ctx *PipelineContext) AddError(err *diagnostics.DiagnosticError) {
	if err.File == "" {
		err.File = ctx.FilePath
	}
	ctx.Errors = append(ctx.Errors, err)
}

func (ctx *PipelineContext) HasErrors() bool {
	return len(ctx.Errors) > 0
}
