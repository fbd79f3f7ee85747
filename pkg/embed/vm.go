// Package inkvm embeds the Ink compiler and VM in Go programs. Go
// functions bound with Bind become natives that scripts can call, and
// Eval converts results back to Go values.
package inkvm

import (
	"context"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/funvibe/inkvm/internal/backend"
	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

// VM wraps a VM backend and provides a high-level embedding API.
type VM struct {
	backend    *backend.VMBackend
	marshaller *Marshaller
}

// New creates a VM with the default options.
func New() *VM {
	b, err := backend.NewVM(config.Default(), nil)
	if err != nil {
		// the default pass list always resolves
		panic(err)
	}
	return &VM{backend: b, marshaller: NewMarshaller()}
}

// SetOutput redirects what scripts print with out().
func (v *VM) SetOutput(w io.Writer) {
	v.backend.SetOutput(w)
}

// SetContext bounds every following Eval by ctx.
func (v *VM) SetContext(ctx context.Context) {
	v.backend.SetContext(ctx)
}

// Bind makes the Go function fn callable from scripts under name. Arguments
// and results are converted by the Marshaller; a trailing error result
// becomes a runtime error. Binding an existing name replaces it.
func (v *VM) Bind(name string, fn interface{}) error {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return errors.Errorf("cannot bind %T to %q: not a function", fn, name)
	}
	v.backend.Natives().Register(name, v.hostCall(rv))
	return nil
}

func (v *VM) hostCall(fn reflect.Value) vm.NativeFunc {
	fnType := fn.Type()
	numIn := fnType.NumIn()
	isVariadic := fnType.IsVariadic()

	return func(_ *vm.CallContext, args []vm.Value) (vm.Value, error) {
		if isVariadic {
			if len(args) < numIn-1 {
				return vm.EmptyVal(), errors.Errorf("expected at least %d arguments, got %d", numIn-1, len(args))
			}
		} else if len(args) != numIn {
			return vm.EmptyVal(), errors.Errorf("expected %d arguments, got %d", numIn, len(args))
		}

		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			var target reflect.Type
			if isVariadic && i >= numIn-1 {
				target = fnType.In(numIn - 1).Elem()
			} else {
				target = fnType.In(i)
			}
			val, err := v.marshaller.fromValue(arg, target, 0)
			if err != nil {
				return vm.EmptyVal(), errors.Wrapf(err, "argument %d", i)
			}
			in[i] = val
		}

		return v.results(fn.Call(in))
	}
}

func (v *VM) results(out []reflect.Value) (vm.Value, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return vm.EmptyVal(), err
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return vm.EmptyVal(), nil
	case 1:
		return v.marshaller.ToValue(out[0].Interface())
	}
	// several results become a list
	list := make([]interface{}, len(out))
	for i, r := range out {
		list[i] = r.Interface()
	}
	return v.marshaller.ToValue(list)
}

// Eval runs code and returns the value of its last expression converted
// to a Go value.
func (v *VM) Eval(code string) (interface{}, error) {
	return v.eval(code, "<eval>")
}

// LoadFile runs the program in path for its effects.
func (v *VM) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	_, err = v.eval(string(content), path)
	return err
}

func (v *VM) eval(code, file string) (interface{}, error) {
	exec := backend.NewExecutionProcessor(v.backend)
	ctx := pipeline.NewPipelineContext(code)
	ctx.FilePath = file
	ctx.Globals = v.backend.Globals()
	ctx = backend.NewPipeline(exec).Run(ctx)

	if ctx.HasErrors() {
		msgs := make([]string, len(ctx.Errors))
		for i, e := range ctx.Errors {
			msgs[i] = e.Error()
		}
		return nil, errors.New(strings.Join(msgs, "\n"))
	}

	defer vm.Release(exec.Result)
	return v.marshaller.FromValue(exec.Result, nil)
}
