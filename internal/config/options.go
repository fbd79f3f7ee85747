package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options is the inkvm.yaml configuration. Every field has a default, so
// an absent file is the same as an empty one.
type Options struct {
	Optimizer OptimizerOptions `yaml:"optimizer"`
	VM        VMOptions        `yaml:"vm"`
	Cache     CacheOptions     `yaml:"cache"`
}

type OptimizerOptions struct {
	// Enabled is a pointer so that an explicit `enabled: false` can be told
	// apart from an omitted key.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Passes run in the listed order on every iteration.
	Passes []string `yaml:"passes,omitempty"`

	MaxIterations   int `yaml:"max_iterations,omitempty"`
	InlineThreshold int `yaml:"inline_threshold,omitempty"`
}

type VMOptions struct {
	// MaxFrames bounds non-tail call depth.
	MaxFrames int `yaml:"max_frames,omitempty"`
}

type CacheOptions struct {
	// Path of the sqlite database. Empty disables the persistent cache.
	Path string `yaml:"path,omitempty"`

	// MemoryEntries is the size of the in-memory LRU in front of the store.
	MemoryEntries int `yaml:"memory_entries,omitempty"`
}

// Default returns the options used when no configuration file exists.
func Default() *Options {
	opts := &Options{}
	opts.setDefaults()
	return opts
}

// OptimizerEnabled reports whether the optimizer runs.
func (o *Options) OptimizerEnabled() bool {
	return o.Optimizer.Enabled == nil || *o.Optimizer.Enabled
}

// DisableOptimizer turns the optimizer off, as --no-opt does.
func (o *Options) DisableOptimizer() {
	off := false
	o.Optimizer.Enabled = &off
}

// LoadOptions reads and validates the configuration file at path.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseOptions(data, path)
}

// ParseOptions parses configuration bytes. path is used in error messages.
func ParseOptions(data []byte, path string) (*Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	opts.setDefaults()
	if err := opts.validate(path); err != nil {
		return nil, err
	}
	return &opts, nil
}

// FindConfig searches dir and its parents for inkvm.yaml. It returns an
// empty path when there is none.
func FindConfig(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolving directory")
	}
	for {
		candidate := filepath.Join(abs, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

func (o *Options) setDefaults() {
	if o.Optimizer.Passes == nil {
		o.Optimizer.Passes = append([]string(nil), DefaultPasses...)
	}
	if o.Optimizer.MaxIterations == 0 {
		o.Optimizer.MaxIterations = DefaultMaxIterations
	}
	if o.Optimizer.InlineThreshold == 0 {
		o.Optimizer.InlineThreshold = DefaultInlineThreshold
	}
	if o.VM.MaxFrames == 0 {
		o.VM.MaxFrames = DefaultMaxFrames
	}
	if o.Cache.MemoryEntries == 0 {
		o.Cache.MemoryEntries = DefaultCacheEntries
	}
}

func (o *Options) validate(path string) error {
	known := map[string]bool{}
	for _, p := range DefaultPasses {
		known[p] = true
	}
	for i, p := range o.Optimizer.Passes {
		if !known[p] {
			return errors.Errorf("%s: optimizer.passes[%d]: unknown pass %q (known: %s)",
				path, i, p, strings.Join(DefaultPasses, ", "))
		}
	}
	if o.Optimizer.MaxIterations < 0 {
		return errors.Errorf("%s: optimizer.max_iterations must be positive", path)
	}
	if o.Optimizer.InlineThreshold < 0 {
		return errors.Errorf("%s: optimizer.inline_threshold must be positive", path)
	}
	if o.VM.MaxFrames < 0 {
		return errors.Errorf("%s: vm.max_frames must be positive", path)
	}
	if o.Cache.MemoryEntries < 0 {
		return errors.Errorf("%s: cache.memory_entries must be positive", path)
	}
	return nil
}

// Fingerprint is a stable rendering of the options that affect generated
// code. It is part of the compiled-program cache key.
func (o *Options) Fingerprint() string {
	var sb strings.Builder
	if o.OptimizerEnabled() {
		sb.WriteString("opt=")
		sb.WriteString(strings.Join(o.Optimizer.Passes, ","))
	} else {
		sb.WriteString("opt=off")
	}
	sb.WriteString(";iter=")
	sb.WriteString(strconv.Itoa(o.Optimizer.MaxIterations))
	sb.WriteString(";inline=")
	sb.WriteString(strconv.Itoa(o.Optimizer.InlineThreshold))
	return sb.String()
}
