// Package optimizer rewrites compiled blocks without changing what they
// compute. Every pass runs on a copy of the block tree; the copy replaces
// the original only if the pass finished and the result validates.
package optimizer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/vm"
)

// Pass rewrites one block in place and reports whether it changed
// anything. A pass that finds one of its assumptions broken panics with
// *InvariantViolation.
type Pass interface {
	Name() string
	Run(b *vm.Block) bool
}

// InvariantViolation aborts a pass. It never reaches the caller of Optimize.
type InvariantViolation struct {
	Pass    string
	Block   string
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: block %s: %s", e.Pass, e.Block, e.Message)
}

func violation(pass string, b *vm.Block, format string, args ...interface{}) {
	panic(&InvariantViolation{Pass: pass, Block: b.Name, Message: fmt.Sprintf(format, args...)})
}

type Optimizer struct {
	passes        []Pass
	maxIterations int
	logger        *zap.Logger
}

// New builds an optimizer running the passes named in opts, in order.
// A nil logger discards output.
func New(opts config.OptimizerOptions, logger *zap.Logger) (*Optimizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := opts.Passes
	if names == nil {
		names = config.DefaultPasses
	}
	threshold := opts.InlineThreshold
	if threshold <= 0 {
		threshold = config.DefaultInlineThreshold
	}
	iterations := opts.MaxIterations
	if iterations <= 0 {
		iterations = config.DefaultMaxIterations
	}

	o := &Optimizer{maxIterations: iterations, logger: logger.With(zap.String("component", "optimizer"))}
	for _, name := range names {
		p, err := NewPass(name, threshold)
		if err != nil {
			return nil, err
		}
		o.passes = append(o.passes, p)
	}
	return o, nil
}

// NewPass returns the pass registered under name.
func NewPass(name string, inlineThreshold int) (Pass, error) {
	switch name {
	case config.PassConstProp:
		return constProp{}, nil
	case config.PassCSE:
		return cse{}, nil
	case config.PassDCE:
		return dce{}, nil
	case config.PassInline:
		return inliner{threshold: inlineThreshold}, nil
	case config.PassTailCall:
		return tailCall{}, nil
	}
	return nil, fmt.Errorf("unknown optimizer pass %q", name)
}

// Passes returns the names of the configured passes.
func (o *Optimizer) Passes() []string {
	names := make([]string, len(o.passes))
	for i, p := range o.passes {
		names[i] = p.Name()
	}
	return names
}

// Optimize runs the passes until none of them changes the tree or the
// iteration limit is reached. root itself is never modified.
func (o *Optimizer) Optimize(root *vm.Block) *vm.Block {
	current := root
	for iter := 0; iter < o.maxIterations; iter++ {
		changed := false
		for _, p := range o.passes {
			if next, ok := o.apply(p, current); ok {
				current = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

func (o *Optimizer) apply(p Pass, root *vm.Block) (result *vm.Block, changed bool) {
	clone := root.Clone()
	defer func() {
		if r := recover(); r != nil {
			o.decline(p, r)
			result, changed = root, false
		}
	}()

	clone.Walk(func(b *vm.Block) {
		if p.Run(b) {
			changed = true
		}
	})
	if !changed {
		return root, false
	}
	if err := vm.Validate(clone); err != nil {
		o.decline(p, err)
		return root, false
	}
	o.logger.Debug("pass applied",
		zap.String("pass", p.Name()),
		zap.Int("before", root.CountInstructions()),
		zap.Int("after", clone.CountInstructions()),
	)
	return clone, true
}

func (o *Optimizer) decline(p Pass, reason interface{}) {
	switch r := reason.(type) {
	case *InvariantViolation:
		o.logger.Debug("pass declined", zap.String("pass", p.Name()), zap.String("reason", r.Message), zap.String("block", r.Block))
	case error:
		o.logger.Warn("pass declined", zap.String("pass", p.Name()), zap.Error(r))
	default:
		o.logger.Warn("pass declined", zap.String("pass", p.Name()), zap.Any("panic", r))
	}
}
