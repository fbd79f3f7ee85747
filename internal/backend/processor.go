package backend

import (
	"errors"
	"strings"

	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/token"
	"github.com/funvibe/inkvm/internal/vm"
)

// ExecutionProcessor implements pipeline.Processor to run a Backend
type ExecutionProcessor struct {
	Backend Backend

	// Result is the value of the last successful run. The caller owns it
	// and gives it up with vm.Release.
	Result vm.Value
}

// NewExecutionProcessor creates a new pipeline step for the given backend
func NewExecutionProcessor(b Backend) *ExecutionProcessor {
	return &ExecutionProcessor{Backend: b}
}

func (p *ExecutionProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	// If previous steps failed, don't run execution
	if ctx.AstRoot == nil || ctx.HasErrors() {
		return ctx
	}

	result, err := p.Backend.Run(ctx)
	if err != nil {
		p.handleError(ctx, err)
		return ctx
	}
	p.Result = result
	return ctx
}

func (p *ExecutionProcessor) handleError(ctx *pipeline.PipelineContext, err error) {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		for _, d := range compileErr.Diagnostics {
			ctx.AddError(d)
		}
		return
	}

	var runtimeErr *vm.RuntimeError
	if errors.As(err, &runtimeErr) {
		tok := token.Token{Line: runtimeErr.Pos.Line, Column: runtimeErr.Pos.Column}
		ctx.AddError(diagnostics.NewError(diagnostics.ErrR001, tok, "%s", formatRuntimeError(runtimeErr)))
		return
	}

	ctx.AddError(diagnostics.NewError(diagnostics.ErrR001, token.Token{}, "%s", err.Error()))
}

func formatRuntimeError(err *vm.RuntimeError) string {
	if len(err.Trace) == 0 {
		return err.Message
	}
	var sb strings.Builder
	sb.WriteString(err.Message)
	sb.WriteString("\nStack trace:")
	for _, entry := range err.Trace {
		sb.WriteString("\n  at ")
		sb.WriteString(entry.Block)
		sb.WriteString(":")
		sb.WriteString(entry.Pos.String())
	}
	return sb.String()
}
