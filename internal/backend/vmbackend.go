package backend

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/funvibe/inkvm/internal/cache"
	"github.com/funvibe/inkvm/internal/codec"
	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/optimizer"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

// VMBackend compiles programs to blocks, optimizes them, and executes them
// on one VM. Compiled images are looked up in and stored to the cache when
// one is set. A VMBackend runs one program at a time.
type VMBackend struct {
	opts      *config.Options
	natives   *vm.NativeRegistry
	optimizer *optimizer.Optimizer
	cache     *cache.Store
	machine   *vm.VM
	logger    *zap.Logger
}

// NewVM creates a VM backend for opts. A nil logger discards output.
func NewVM(opts *config.Options, logger *zap.Logger) (*VMBackend, error) {
	if opts == nil {
		opts = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &VMBackend{
		opts:    opts,
		natives: vm.DefaultNatives(),
		logger:  logger.With(zap.String("component", "backend")),
	}
	if opts.OptimizerEnabled() {
		o, err := optimizer.New(opts.Optimizer, logger)
		if err != nil {
			return nil, err
		}
		b.optimizer = o
	}

	b.machine = vm.New()
	b.machine.SetNatives(b.natives)
	b.machine.SetMaxFrames(opts.VM.MaxFrames)
	b.machine.SetLogger(logger)
	return b, nil
}

// SetCache enables lookups of compiled images in s.
func (b *VMBackend) SetCache(s *cache.Store) {
	b.cache = s
}

func (b *VMBackend) SetOutput(w io.Writer) {
	b.machine.SetOutput(w)
}

// SetContext bounds every following run by ctx.
func (b *VMBackend) SetContext(ctx context.Context) {
	b.machine.SetContext(ctx)
}

// Natives is the registry shared by the compiler and the VM. Natives must
// be registered before the front end resolves names.
func (b *VMBackend) Natives() *vm.NativeRegistry {
	return b.natives
}

// Globals returns the names the resolver should accept as natives.
func (b *VMBackend) Globals() map[string]bool {
	return b.natives.Globals()
}

// Compile turns the resolved program of ctx into a block, going through
// the cache when one is set.
func (b *VMBackend) Compile(ctx *pipeline.PipelineContext) (*vm.Block, error) {
	if ctx.AstRoot == nil {
		return nil, errors.New("no AST to compile")
	}

	var key string
	if b.cache != nil {
		key = cache.Key(ctx.SourceCode, b.fingerprint(ctx))
		if block, ok := b.lookup(key); ok {
			return block, nil
		}
	}

	compiler := vm.NewCompiler()
	compiler.SetNatives(b.natives)
	compiler.SetFile(ctx.FilePath)
	block, err := compiler.Compile(ctx.AstRoot)
	if err != nil {
		return nil, &CompileError{Diagnostics: compiler.Errors()}
	}
	b.logger.Debug("program compiled",
		zap.Int("blocks", block.CountBlocks()),
		zap.Int("instructions", block.CountInstructions()),
	)

	if b.optimizer != nil {
		block = b.optimizer.Optimize(block)
		b.logger.Debug("program optimized", zap.Int("instructions", block.CountInstructions()))
	}

	if b.cache != nil {
		b.store(key, block)
	}
	return block, nil
}

// fingerprint covers everything besides the source text that changes the
// generated code.
func (b *VMBackend) fingerprint(ctx *pipeline.PipelineContext) string {
	return b.opts.Fingerprint() + ";natives=" + strings.Join(b.natives.Names(), ",") + ";file=" + ctx.FilePath
}

// lookup treats an unreadable image like a miss.
func (b *VMBackend) lookup(key string) (*vm.Block, bool) {
	data, ok, err := b.cache.Get(key)
	if err != nil {
		b.logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	block, err := codec.Decode(data, b.natives)
	if err != nil {
		b.logger.Warn("discarding cached image", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return block, true
}

func (b *VMBackend) store(key string, block *vm.Block) {
	data, err := codec.Encode(block, b.natives)
	if err == nil {
		err = b.cache.Put(key, data)
	}
	if err != nil {
		b.logger.Warn("cache store failed", zap.Error(err))
	}
}

// Run compiles and executes the program using the VM
func (b *VMBackend) Run(ctx *pipeline.PipelineContext) (vm.Value, error) {
	block, err := b.Compile(ctx)
	if err != nil {
		return vm.EmptyVal(), err
	}
	return b.machine.Run(block)
}

// Name returns the backend name
func (b *VMBackend) Name() string {
	return "vm"
}

// Disassemble returns the listing of the code Run would execute.
func (b *VMBackend) Disassemble(ctx *pipeline.PipelineContext) (string, error) {
	block, err := b.Compile(ctx)
	if err != nil {
		return "", err
	}
	return vm.Disassemble(block), nil
}
