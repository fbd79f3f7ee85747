// Package backend compiles resolved programs and runs them. The VM backend
// is the only implementation; the interface keeps the pipeline independent
// of how code is executed.
package backend

import (
	"github.com/funvibe/inkvm/internal/analyzer"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/lexer"
	"github.com/funvibe/inkvm/internal/parser"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

// Backend is the interface for execution backends
type Backend interface {
	// Run executes the program from pipeline context and returns the result.
	// The caller owns the result.
	Run(ctx *pipeline.PipelineContext) (vm.Value, error)

	// Name returns the backend name for display
	Name() string
}

// CompileError carries every diagnostic of a failed code generation.
type CompileError struct {
	Diagnostics []*diagnostics.DiagnosticError
}

func (e *CompileError) Error() string {
	return e.Diagnostics[0].Error()
}

func frontEnd() []pipeline.Processor {
	return []pipeline.Processor{
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
	}
}

// NewFrontEnd resolves a program without running it.
func NewFrontEnd() *pipeline.Pipeline {
	return pipeline.New(frontEnd()...)
}

// NewPipeline chains the front end with exec.
func NewPipeline(exec *ExecutionProcessor) *pipeline.Pipeline {
	return pipeline.New(append(frontEnd(), exec)...)
}
