package lexer

import "github.com/funvibe/inkvm/internal/pipeline"

// LexerProcessor is the pipeline stage that turns source text into tokens.
type LexerProcessor struct{}

func (lp *LexerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	l := New(ctx.SourceCode)
	ctx.Tokens = l.Tokenize()
	for _, err := range l.Errors() {
		ctx.AddError(err)
	}
	return ctx
}
