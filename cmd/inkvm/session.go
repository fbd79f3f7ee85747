package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/funvibe/inkvm/internal/backend"
	"github.com/funvibe/inkvm/internal/cache"
	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

// session is one configured backend plus the streams the CLI reports to.
type session struct {
	backend *backend.VMBackend
	store   *cache.Store
	logger  *zap.Logger
	out     io.Writer
	errOut  io.Writer
	colors  bool
}

func loadOptions(c *cli.Context) (*config.Options, error) {
	path := c.String(configFlag.Name)
	if path == "" {
		found, err := config.FindConfig(".")
		if err != nil {
			return nil, err
		}
		path = found
	}
	opts := config.Default()
	if path != "" {
		loaded, err := config.LoadOptions(path)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}
	if c.Bool(noOptFlag.Name) {
		opts.DisableOptimizer()
	}
	if p := c.String(cacheFlag.Name); p != "" {
		opts.Cache.Path = p
	}
	return opts, nil
}

func newSession(c *cli.Context) (*session, error) {
	opts, err := loadOptions(c)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if c.Bool(verboseFlag.Name) {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, errors.Wrap(err, "creating logger")
		}
	}

	b, err := backend.NewVM(opts, logger)
	if err != nil {
		return nil, err
	}
	s := &session{
		backend: b,
		logger:  logger,
		out:     c.App.Writer,
		errOut:  c.App.ErrWriter,
		colors:  isTerminal(c.App.ErrWriter),
	}
	b.SetOutput(s.out)

	if opts.Cache.Path != "" {
		store, err := cache.Open(opts.Cache, logger)
		if err != nil {
			return nil, err
		}
		s.store = store
		b.SetCache(store)
	}
	return s, nil
}

func (s *session) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing cache", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// run executes one program and reports its diagnostics. The returned value
// is owned by the caller.
func (s *session) run(source, file string) (vm.Value, bool) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	s.backend.SetContext(ctx)

	exec := backend.NewExecutionProcessor(s.backend)
	pctx := pipeline.NewPipelineContext(source)
	pctx.FilePath = file
	pctx.Globals = s.backend.Globals()
	pctx = backend.NewPipeline(exec).Run(pctx)

	if pctx.HasErrors() {
		s.report(pctx.Errors)
		return vm.EmptyVal(), false
	}
	return exec.Result, true
}

func (s *session) report(errs []*diagnostics.DiagnosticError) {
	paint := color.New(color.FgRed)
	if !s.colors {
		paint.DisableColor()
	}
	for _, err := range errs {
		fmt.Fprintln(s.errOut, paint.Sprint(err.Error()))
	}
}

// printValue writes v in its inspected form and gives up ownership of it.
func (s *session) printValue(v vm.Value) {
	fmt.Fprintln(s.out, v.Inspect())
	vm.Release(v)
}

func readSource(c *cli.Context) (string, string, error) {
	if c.NArg() < 1 {
		return "", "", errors.New("missing program file")
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), path, nil
}

func runCommand(c *cli.Context) error {
	source, path, err := readSource(c)
	if err != nil {
		return err
	}
	return execute(c, source, path)
}

func evalCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("missing program")
	}
	return execute(c, c.Args().First(), "")
}

func execute(c *cli.Context, source, file string) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	result, ok := s.run(source, file)
	if !ok {
		return cli.Exit("", 1)
	}
	if c.Bool(printFlag.Name) {
		s.printValue(result)
	} else {
		vm.Release(result)
	}
	return nil
}

func disasmCommand(c *cli.Context) error {
	source, path, err := readSource(c)
	if err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	pctx := pipeline.NewPipelineContext(source)
	pctx.FilePath = path
	pctx.Globals = s.backend.Globals()
	pctx = backend.NewFrontEnd().Run(pctx)
	if pctx.HasErrors() {
		s.report(pctx.Errors)
		return cli.Exit("", 1)
	}

	listing, err := s.backend.Disassemble(pctx)
	if err != nil {
		var compileErr *backend.CompileError
		if errors.As(err, &compileErr) {
			s.report(compileErr.Diagnostics)
			return cli.Exit("", 1)
		}
		return err
	}
	fmt.Fprint(s.out, listing)
	return nil
}
