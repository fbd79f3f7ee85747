package backend

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/inkvm/internal/cache"
	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

func runSource(t *testing.T, b *VMBackend, src string) (*pipeline.PipelineContext, *ExecutionProcessor) {
	t.Helper()
	exec := NewExecutionProcessor(b)
	ctx := pipeline.NewPipelineContext(src)
	ctx.Globals = b.Globals()
	return NewPipeline(exec).Run(ctx), exec
}

func newBackend(t *testing.T, opts *config.Options) (*VMBackend, *bytes.Buffer) {
	t.Helper()
	b, err := NewVM(opts, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	b.SetOutput(&out)
	return b, &out
}

func TestRun(t *testing.T) {
	b, out := newBackend(t, nil)
	ctx, exec := runSource(t, b, "sq := n => n * n, out(string(sq(9))), sq(3)")

	require.Empty(t, ctx.Errors)
	assert.Equal(t, "81", out.String())
	assert.Equal(t, "9", exec.Result.Inspect())
	assert.Equal(t, "vm", b.Name())
}

func TestRunWithoutOptimizer(t *testing.T) {
	opts := config.Default()
	opts.DisableOptimizer()
	b, _ := newBackend(t, opts)
	assert.Nil(t, b.optimizer)

	ctx, exec := runSource(t, b, "x := 1 + 2, x * x")
	require.Empty(t, ctx.Errors)
	assert.Equal(t, "9", exec.Result.Inspect())
}

func TestCompileErrorsBecomeDiagnostics(t *testing.T) {
	b, _ := newBackend(t, nil)
	ctx, _ := runSource(t, b, "f := (a, b) => a, f(1, 2, 3), f(4, 5, 6)")

	require.Len(t, ctx.Errors, 2)
	for _, err := range ctx.Errors {
		assert.Equal(t, diagnostics.ErrC001, err.Code)
		assert.True(t, err.IsCompileError())
	}
}

func TestRuntimeErrorsBecomeDiagnostics(t *testing.T) {
	// inlining would drop f from the trace
	opts := config.Default()
	opts.DisableOptimizer()
	b, _ := newBackend(t, opts)
	ctx, _ := runSource(t, b, "f := n => 10 / n\nf(0)")

	require.Len(t, ctx.Errors, 1)
	err := ctx.Errors[0]
	assert.Equal(t, diagnostics.ErrR001, err.Code)
	assert.False(t, err.IsCompileError())
	assert.Equal(t, 1, err.Token.Line)
	assert.True(t, strings.HasPrefix(err.Message, "division by zero\nStack trace:"), err.Message)
	assert.Contains(t, err.Message, "at f:1:")
}

func TestFrontEndErrorsSkipExecution(t *testing.T) {
	b, out := newBackend(t, nil)
	ctx, exec := runSource(t, b, "out('x'), y")

	require.Len(t, ctx.Errors, 1)
	assert.Equal(t, diagnostics.ErrA001, ctx.Errors[0].Code)
	assert.Empty(t, out.String())
	assert.True(t, exec.Result.IsEmpty())
}

func TestCachedImagesAreReused(t *testing.T) {
	store, err := cache.Open(config.CacheOptions{}, nil)
	require.NoError(t, err)
	b, out := newBackend(t, nil)
	b.SetCache(store)

	const src = "out('hi '), 6 * 7"
	for i := 0; i < 2; i++ {
		ctx, exec := runSource(t, b, src)
		require.Empty(t, ctx.Errors)
		assert.Equal(t, "42", exec.Result.Inspect())
	}
	assert.Equal(t, "hi hi ", out.String())
	assert.Equal(t, cache.Stats{MemoryHits: 1, Misses: 1}, store.Stats())
}

func TestCorruptCacheEntryIsRecompiled(t *testing.T) {
	store, err := cache.Open(config.CacheOptions{}, nil)
	require.NoError(t, err)
	b, _ := newBackend(t, nil)
	b.SetCache(store)

	const src = "1 + 1"
	ctx := pipeline.NewPipelineContext(src)
	require.NoError(t, store.Put(cache.Key(src, b.fingerprint(ctx)), []byte("garbage")))

	ctx, exec := runSource(t, b, src)
	require.Empty(t, ctx.Errors)
	assert.Equal(t, "2", exec.Result.Inspect())
}

func TestCustomNative(t *testing.T) {
	b, _ := newBackend(t, nil)
	b.Natives().Register("double", func(_ *vm.CallContext, args []vm.Value) (vm.Value, error) {
		return vm.NumberVal(args[0].AsNumber() * 2), nil
	})

	ctx, exec := runSource(t, b, "double(21)")
	require.Empty(t, ctx.Errors)
	assert.Equal(t, "42", exec.Result.Inspect())
}

func TestDisassemble(t *testing.T) {
	b, _ := newBackend(t, nil)
	ctx := pipeline.NewPipelineContext("f := x => x + 1, f(1)")
	ctx.FilePath = "main.ink"
	ctx = NewFrontEnd().Run(ctx)
	require.Empty(t, ctx.Errors)

	listing, err := b.Disassemble(ctx)
	require.NoError(t, err)
	assert.Contains(t, listing, "== main.ink (block 0)")
}
