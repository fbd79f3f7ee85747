package vm

import (
	"io"
	"strconv"
	"strings"

	"github.com/funvibe/inkvm/internal/config"
	"go.uber.org/zap"
)

// CallContext is what a native sees of the VM calling it.
type CallContext struct {
	Out    io.Writer
	Logger *zap.Logger
}

// NativeFunc is a Go function callable from guest code. Missing arguments
// arrive as Empty; the result is stored like any other call result.
type NativeFunc func(c *CallContext, args []Value) (Value, error)

type native struct {
	Name string
	Fn   NativeFunc
}

// NativeRegistry maps native ids to Go functions. Ids are positions in
// registration order and are what NativeVal carries.
type NativeRegistry struct {
	natives []native
	byName  map[string]int
}

func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{byName: make(map[string]int)}
}

// Register adds fn under name, replacing an existing native of that name
// in place so that its id stays stable.
func (r *NativeRegistry) Register(name string, fn NativeFunc) int {
	if id, ok := r.byName[name]; ok {
		r.natives[id].Fn = fn
		return id
	}
	r.natives = append(r.natives, native{Name: name, Fn: fn})
	id := len(r.natives) - 1
	r.byName[name] = id
	return id
}

func (r *NativeRegistry) Lookup(name string) (int, bool) {
	id, ok := r.byName[name]
	return id, ok
}

func (r *NativeRegistry) Get(id int) (string, NativeFunc, bool) {
	if id < 0 || id >= len(r.natives) {
		return "", nil, false
	}
	n := r.natives[id]
	return n.Name, n.Fn, true
}

// Names returns the registered names in id order.
func (r *NativeRegistry) Names() []string {
	names := make([]string, len(r.natives))
	for i, n := range r.natives {
		names[i] = n.Name
	}
	return names
}

// Globals returns the registered names as a resolver globals set.
func (r *NativeRegistry) Globals() map[string]bool {
	globals := make(map[string]bool, len(r.natives))
	for _, n := range r.natives {
		globals[n.Name] = true
	}
	return globals
}

// DefaultNatives returns a registry holding the standard natives.
func DefaultNatives() *NativeRegistry {
	r := NewNativeRegistry()
	r.Register(config.OutFuncName, nativeOut)
	r.Register(config.StringFuncName, nativeString)
	r.Register(config.NumberFuncName, nativeNumber)
	r.Register(config.LenFuncName, nativeLen)
	r.Register(config.CharFuncName, nativeChar)
	r.Register(config.PointFuncName, nativePoint)
	r.Register(config.TypeFuncName, nativeType)
	r.Register(config.KeysFuncName, nativeKeys)
	return r
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return EmptyVal()
}

func nativeOut(c *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Type != ValString {
		return EmptyVal(), errorf("out() expects a string, got %s", v.TypeName())
	}
	if _, err := c.Out.Write(v.AsBytes().B); err != nil {
		return EmptyVal(), errorf("out(): %v", err)
	}
	return v, nil
}

func nativeString(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Type == ValString {
		return v.copyString(), nil
	}
	return StringVal(v.String()), nil
}

func nativeNumber(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	switch v.Type {
	case ValNumber:
		return v, nil
	case ValBool:
		if v.AsBool() {
			return NumberVal(1), nil
		}
		return NumberVal(0), nil
	case ValString:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(v.AsBytes().B)), 64)
		if err != nil {
			return EmptyVal(), nil
		}
		return NumberVal(n), nil
	}
	return EmptyVal(), nil
}

func nativeLen(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	switch v.Type {
	case ValComposite:
		c := v.AsComposite()
		if err := c.checkLive(); err != nil {
			return EmptyVal(), err
		}
		return NumberVal(float64(c.Len())), nil
	case ValString:
		return NumberVal(float64(len(v.AsBytes().B))), nil
	}
	return EmptyVal(), errorf("len() expects a composite or string, got %s", v.TypeName())
}

func nativeChar(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Type != ValNumber {
		return EmptyVal(), errorf("char() expects a number, got %s", v.TypeName())
	}
	return BytesVal([]byte{byte(int64(v.AsNumber()))}), nil
}

func nativePoint(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Type != ValString {
		return EmptyVal(), errorf("point() expects a string, got %s", v.TypeName())
	}
	b := v.AsBytes().B
	if len(b) == 0 {
		return EmptyVal(), errorf("point() of empty string")
	}
	return NumberVal(float64(b[0])), nil
}

func nativeType(_ *CallContext, args []Value) (Value, error) {
	return StringVal(arg(args, 0).TypeName()), nil
}

func nativeKeys(_ *CallContext, args []Value) (Value, error) {
	v := arg(args, 0)
	if v.Type != ValComposite {
		return EmptyVal(), errorf("keys() expects a composite, got %s", v.TypeName())
	}
	src := v.AsComposite()
	if err := src.checkLive(); err != nil {
		return EmptyVal(), err
	}
	out := AllocComposite()
	for i, k := range src.Keys() {
		if k.Type == ValString {
			k = k.copyString()
		}
		if err := out.Set(NumberVal(float64(i)), k); err != nil {
			return EmptyVal(), err
		}
	}
	return CompositeVal(out), nil
}
