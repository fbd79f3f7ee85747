package vm

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValEmpty ValueType = iota
	ValNumber
	ValBool
	ValString
	ValComposite
	ValFunction
	ValNative

	// Internal kinds. They never escape a register file or constant pool.
	valCell
	valBlock
)

// Object is a heap payload referenced from a Value.
type Object interface {
	Inspect() string
}

// Value is a tagged union. Numbers, booleans and native ids live in Data;
// everything else is a pointer in Obj.
type Value struct {
	Type ValueType
	Data uint64 // float64 bits, bool (0/1) or native id
	Obj  Object // *ByteString, *Composite, *Closure, *Cell or *Block
}

// Constructors

func EmptyVal() Value {
	return Value{Type: ValEmpty}
}

func NumberVal(n float64) Value {
	return Value{Type: ValNumber, Data: math.Float64bits(n)}
}

func BoolVal(b bool) Value {
	var data uint64
	if b {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

// StringVal returns a new byte string holding a copy of s.
func StringVal(s string) Value {
	return Value{Type: ValString, Obj: &ByteString{B: []byte(s)}}
}

// BytesVal wraps b without copying; the value owns b from now on.
func BytesVal(b []byte) Value {
	return Value{Type: ValString, Obj: &ByteString{B: b}}
}

func CompositeVal(c *Composite) Value {
	return Value{Type: ValComposite, Obj: c}
}

func FunctionVal(c *Closure) Value {
	return Value{Type: ValFunction, Obj: c}
}

func NativeVal(id int) Value {
	return Value{Type: ValNative, Data: uint64(id)}
}

func cellVal(c *Cell) Value {
	return Value{Type: valCell, Obj: c}
}

func blockVal(b *Block) Value {
	return Value{Type: valBlock, Obj: b}
}

// Accessors

func (v Value) AsNumber() float64       { return math.Float64frombits(v.Data) }
func (v Value) AsBool() bool            { return v.Data == 1 }
func (v Value) AsBytes() *ByteString    { return v.Obj.(*ByteString) }
func (v Value) AsComposite() *Composite { return v.Obj.(*Composite) }
func (v Value) AsClosure() *Closure     { return v.Obj.(*Closure) }
func (v Value) AsNative() int           { return int(v.Data) }
func (v Value) asCell() *Cell           { return v.Obj.(*Cell) }
func (v Value) asBlock() *Block         { return v.Obj.(*Block) }
func (v Value) IsEmpty() bool           { return v.Type == ValEmpty }
func (v Value) IsNumber() bool          { return v.Type == ValNumber }
func (v Value) IsString() bool          { return v.Type == ValString }
func (v Value) IsComposite() bool       { return v.Type == ValComposite }
func (v Value) IsCallable() bool        { return v.Type == ValFunction || v.Type == ValNative }

// copyString returns a byte string with its own buffer. Used when loading
// string constants so that the pool is never mutated through a register.
func (v Value) copyString() Value {
	src := v.AsBytes().B
	dst := make([]byte, len(src))
	copy(dst, src)
	return BytesVal(dst)
}

// Equals is guest equality. Numbers, booleans, byte strings and the empty
// value compare structurally; composites and functions compare by identity.
// Empty equals only Empty: `_` is a wildcard in match patterns, where it
// compiles to CALL_ARM, but `_ = x` is false for any non-empty x. Structural
// composite equality would be added here.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValEmpty:
		return true
	case ValNumber:
		return v.AsNumber() == other.AsNumber()
	case ValBool, ValNative:
		return v.Data == other.Data
	case ValString:
		return bytes.Equal(v.AsBytes().B, other.AsBytes().B)
	default:
		return v.Obj == other.Obj
	}
}

// TypeName is the name reported by the type() native.
func (v Value) TypeName() string {
	switch v.Type {
	case ValEmpty:
		return "()"
	case ValNumber:
		return "number"
	case ValBool:
		return "boolean"
	case ValString:
		return "string"
	case ValComposite:
		return "composite"
	case ValFunction, ValNative:
		return "function"
	case valCell:
		return "cell"
	case valBlock:
		return "block"
	}
	return "unknown"
}

// String renders a value the way the string() native does: byte strings
// are unquoted, everything else is Inspect.
func (v Value) String() string {
	if v.Type == ValString {
		return string(v.AsBytes().B)
	}
	return v.Inspect()
}

// Inspect renders a value as guest source.
func (v Value) Inspect() string {
	var sb strings.Builder
	v.inspect(&sb, map[*Composite]bool{})
	return sb.String()
}

func (v Value) inspect(sb *strings.Builder, seen map[*Composite]bool) {
	switch v.Type {
	case ValEmpty:
		sb.WriteString("()")
	case ValNumber:
		sb.WriteString(FormatNumber(v.AsNumber()))
	case ValBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case ValString:
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(string(v.AsBytes().B), "'", "\\'"))
		sb.WriteByte('\'')
	case ValComposite:
		c := v.AsComposite()
		if seen[c] {
			sb.WriteString("{...}")
			return
		}
		seen[c] = true
		c.inspect(sb, seen)
		delete(seen, c)
	case ValFunction, ValNative:
		sb.WriteString("(function)")
	default:
		if v.Obj != nil {
			sb.WriteString(v.Obj.Inspect())
		}
	}
}

// FormatNumber prints integral values without a fraction and everything
// else in the shortest form that round-trips.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ByteString is a mutable byte buffer shared by reference.
type ByteString struct {
	B []byte
}

func (s *ByteString) Inspect() string { return "'" + string(s.B) + "'" }

// Get returns the byte at index as a 1-byte string, or Empty when out of
// range.
func (s *ByteString) Get(key Value) (Value, error) {
	i, err := byteIndex(key)
	if err != nil {
		return EmptyVal(), err
	}
	if i >= len(s.B) {
		return EmptyVal(), nil
	}
	return BytesVal([]byte{s.B[i]}), nil
}

// Set writes the bytes of val starting at index, in place. Writing at
// len(s) appends; writing past the end grows the buffer.
func (s *ByteString) Set(key Value, val Value) error {
	i, err := byteIndex(key)
	if err != nil {
		return err
	}
	if val.Type != ValString {
		return errorf("cannot assign %s into a string", val.TypeName())
	}
	if i > len(s.B) {
		return errorf("string index %d out of range (length %d)", i, len(s.B))
	}
	src := val.AsBytes().B
	if end := i + len(src); end > len(s.B) {
		s.B = append(s.B, make([]byte, end-len(s.B))...)
	}
	copy(s.B[i:], src)
	return nil
}

// byteIndex coerces a Number or a decimal byte string to a byte offset.
func byteIndex(key Value) (int, error) {
	switch key.Type {
	case ValNumber:
		n := key.AsNumber()
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, errorf("invalid string index %s", FormatNumber(n))
		}
		return int(n), nil
	case ValString:
		if i, ok := canonicalIndex(key.AsBytes().B); ok {
			return i, nil
		}
		return 0, errorf("invalid string index %s", key.Inspect())
	}
	return 0, errorf("invalid key type %s", key.TypeName())
}

// canonicalIndex reports whether b spells a non-negative integer without
// leading zeros.
func canonicalIndex(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 9 {
		return 0, false
	}
	if len(b) > 1 && b[0] == '0' {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
