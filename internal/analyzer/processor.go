package analyzer

import (
	"github.com/funvibe/inkvm/internal/pipeline"
)

type SemanticAnalyzerProcessor struct{}

func (sap *SemanticAnalyzerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.AstRoot == nil || ctx.HasErrors() {
		return ctx
	}

	if ctx.Globals == nil {
		ctx.Globals = DefaultGlobals()
	}

	analyzer := New(ctx.Globals)
	for _, err := range analyzer.Analyze(ctx.AstRoot) {
		ctx.AddError(err)
	}
	return ctx
}
