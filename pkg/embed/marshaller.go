package inkvm

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/funvibe/inkvm/internal/vm"
)

// maxDepth bounds nested conversion; guest composites may be cyclic.
const maxDepth = 64

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	anyType   = reflect.TypeOf((*interface{})(nil)).Elem()
	valueType = reflect.TypeOf(vm.Value{})
)

// Marshaller handles conversion between Go and guest values.
//
// Go numbers become numbers, strings and byte slices become byte strings,
// and slices, arrays, maps and structs become composites. Guest composites
// whose keys are all dense indices convert to []interface{}; other
// composites convert to map[string]interface{}.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// ToValue converts a Go value to a guest value. The result has no owners.
func (m *Marshaller) ToValue(val interface{}) (vm.Value, error) {
	return m.toValue(reflect.ValueOf(val), 0)
}

func (m *Marshaller) toValue(v reflect.Value, depth int) (vm.Value, error) {
	if depth > maxDepth {
		return vm.EmptyVal(), errors.New("value nested too deeply")
	}
	if !v.IsValid() {
		return vm.EmptyVal(), nil
	}
	if v.Type() == valueType {
		return v.Interface().(vm.Value), nil
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.NumberVal(float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.NumberVal(float64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.NumberVal(v.Float()), nil
	case reflect.Bool:
		return vm.BoolVal(v.Bool()), nil
	case reflect.String:
		return vm.StringVal(v.String()), nil
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return vm.EmptyVal(), nil
		}
		return m.toValue(v.Elem(), depth+1)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			copy(b, v.Bytes())
			return vm.BytesVal(b), nil
		}
		if v.IsNil() {
			return vm.EmptyVal(), nil
		}
		return m.listToComposite(v, depth)
	case reflect.Array:
		return m.listToComposite(v, depth)
	case reflect.Map:
		return m.mapToComposite(v, depth)
	case reflect.Struct:
		return m.structToComposite(v, depth)
	}
	return vm.EmptyVal(), errors.Errorf("cannot convert %s to a guest value", v.Type())
}

func (m *Marshaller) listToComposite(v reflect.Value, depth int) (vm.Value, error) {
	c := vm.AllocComposite()
	for i := 0; i < v.Len(); i++ {
		elem, err := m.toValue(v.Index(i), depth+1)
		if err != nil {
			return vm.EmptyVal(), err
		}
		if err := c.Set(vm.NumberVal(float64(i)), elem); err != nil {
			return vm.EmptyVal(), err
		}
	}
	return vm.CompositeVal(c), nil
}

// mapToComposite inserts entries in key order so that the composite's
// iteration order does not depend on Go map order.
func (m *Marshaller) mapToComposite(v reflect.Value, depth int) (vm.Value, error) {
	if v.IsNil() {
		return vm.EmptyVal(), nil
	}
	type entry struct {
		key vm.Value
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := m.toValue(iter.Key(), depth+1)
		if err != nil {
			return vm.EmptyVal(), err
		}
		entries = append(entries, entry{key, iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key.String() < entries[j].key.String()
	})

	c := vm.AllocComposite()
	for _, e := range entries {
		val, err := m.toValue(e.val, depth+1)
		if err != nil {
			return vm.EmptyVal(), err
		}
		if err := c.Set(e.key, val); err != nil {
			return vm.EmptyVal(), err
		}
	}
	return vm.CompositeVal(c), nil
}

func (m *Marshaller) structToComposite(v reflect.Value, depth int) (vm.Value, error) {
	c := vm.AllocComposite()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		val, err := m.toValue(v.Field(i), depth+1)
		if err != nil {
			return vm.EmptyVal(), errors.Wrapf(err, "field %s", field.Name)
		}
		if err := c.Set(vm.StringVal(field.Name), val); err != nil {
			return vm.EmptyVal(), err
		}
	}
	return vm.CompositeVal(c), nil
}

// FromValue converts a guest value to a Go value. targetType is optional;
// without it the natural Go type of the value is used.
func (m *Marshaller) FromValue(val vm.Value, targetType reflect.Type) (interface{}, error) {
	if targetType == nil {
		targetType = anyType
	}
	v, err := m.fromValue(val, targetType, 0)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func (m *Marshaller) fromValue(val vm.Value, t reflect.Type, depth int) (reflect.Value, error) {
	if depth > maxDepth {
		return reflect.Value{}, errors.New("value nested too deeply")
	}
	if t == valueType {
		return reflect.ValueOf(val), nil
	}
	if val.IsEmpty() {
		return reflect.Zero(t), nil
	}

	if t.Kind() == reflect.Interface {
		natural, err := m.naturalType(val)
		if err != nil {
			return reflect.Value{}, err
		}
		if !natural.Implements(t) {
			return reflect.Value{}, mismatch(val, t)
		}
		return m.fromValue(val, natural, depth)
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if val.Type == vm.ValNumber {
			return reflect.ValueOf(val.AsNumber()).Convert(t), nil
		}
	case reflect.Bool:
		if val.Type == vm.ValBool {
			return reflect.ValueOf(val.AsBool()).Convert(t), nil
		}
	case reflect.String:
		if val.Type == vm.ValString {
			return reflect.ValueOf(string(val.AsBytes().B)).Convert(t), nil
		}
	case reflect.Slice:
		if val.Type == vm.ValString && t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, len(val.AsBytes().B))
			copy(b, val.AsBytes().B)
			return reflect.ValueOf(b).Convert(t), nil
		}
		if val.Type == vm.ValComposite {
			return m.compositeToSlice(val.AsComposite(), t, depth)
		}
	case reflect.Map:
		if val.Type == vm.ValComposite && t.Key().Kind() == reflect.String {
			return m.compositeToMap(val.AsComposite(), t, depth)
		}
	}
	return reflect.Value{}, mismatch(val, t)
}

// naturalType picks the Go type a value converts to when the target is an
// interface.
func (m *Marshaller) naturalType(val vm.Value) (reflect.Type, error) {
	switch val.Type {
	case vm.ValNumber:
		return reflect.TypeOf(float64(0)), nil
	case vm.ValBool:
		return reflect.TypeOf(false), nil
	case vm.ValString:
		return reflect.TypeOf(""), nil
	case vm.ValComposite:
		c := val.AsComposite()
		if c.Len() == c.ArrayLen() {
			return reflect.TypeOf([]interface{}(nil)), nil
		}
		return reflect.TypeOf(map[string]interface{}(nil)), nil
	}
	return nil, errors.Errorf("cannot convert %s to a Go value", val.TypeName())
}

func (m *Marshaller) compositeToSlice(c *vm.Composite, t reflect.Type, depth int) (reflect.Value, error) {
	if c.Len() != c.ArrayLen() {
		return reflect.Value{}, errors.Errorf("cannot convert composite with non-index keys to %s", t)
	}
	n := c.ArrayLen()
	out := reflect.MakeSlice(t, n, n)
	for i := 0; i < n; i++ {
		elem, err := c.Get(vm.NumberVal(float64(i)))
		if err != nil {
			return reflect.Value{}, err
		}
		ev, err := m.fromValue(elem, t.Elem(), depth+1)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func (m *Marshaller) compositeToMap(c *vm.Composite, t reflect.Type, depth int) (reflect.Value, error) {
	out := reflect.MakeMapWithSize(t, c.Len())
	for _, key := range c.Keys() {
		elem, err := c.Get(key)
		if err != nil {
			return reflect.Value{}, err
		}
		ev, err := m.fromValue(elem, t.Elem(), depth+1)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(reflect.ValueOf(key.String()).Convert(t.Key()), ev)
	}
	return out, nil
}

func mismatch(val vm.Value, t reflect.Type) error {
	return errors.Errorf("cannot convert %s to %s", val.TypeName(), t)
}
