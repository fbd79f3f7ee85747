package vm

import (
	"bytes"
	"math"
)

var operatorSymbols = map[Opcode]string{
	OP_ADD: "+",
	OP_SUB: "-",
	OP_MUL: "*",
	OP_DIV: "/",
	OP_MOD: "%",
	OP_GTR: ">",
	OP_LSS: "<",
	OP_EQL: "=",
	OP_AND: "&",
	OP_OR:  "|",
	OP_XOR: "^",
	OP_NEG: "~",
}

// OperatorSymbol returns the guest spelling of an operator opcode.
func OperatorSymbol(op Opcode) string {
	return operatorSymbols[op]
}

func invalidOperands(op Opcode, a, b Value) error {
	return errorf("invalid operands for %s: %s and %s", operatorSymbols[op], a.TypeName(), b.TypeName())
}

// BinaryOp applies a binary operator to two values. It never mutates its
// operands: string results always get a fresh buffer.
func BinaryOp(op Opcode, a, b Value) (Value, error) {
	if op == OP_EQL {
		return BoolVal(a.Equals(b)), nil
	}
	if a.Type != b.Type {
		return EmptyVal(), invalidOperands(op, a, b)
	}

	switch a.Type {
	case ValNumber:
		return numberOp(op, a.AsNumber(), b.AsNumber())
	case ValBool:
		return boolOp(op, a, b)
	case ValString:
		return stringOp(op, a, b)
	}
	return EmptyVal(), invalidOperands(op, a, b)
}

func numberOp(op Opcode, x, y float64) (Value, error) {
	switch op {
	case OP_ADD:
		return NumberVal(x + y), nil
	case OP_SUB:
		return NumberVal(x - y), nil
	case OP_MUL:
		return NumberVal(x * y), nil
	case OP_DIV:
		if y == 0 {
			return EmptyVal(), errorf("division by zero")
		}
		return NumberVal(x / y), nil
	case OP_MOD:
		if y == 0 {
			return EmptyVal(), errorf("modulo by zero")
		}
		return NumberVal(math.Mod(x, y)), nil
	case OP_GTR:
		return BoolVal(x > y), nil
	case OP_LSS:
		return BoolVal(x < y), nil
	case OP_AND:
		return NumberVal(float64(int64(x) & int64(y))), nil
	case OP_OR:
		return NumberVal(float64(int64(x) | int64(y))), nil
	case OP_XOR:
		return NumberVal(float64(int64(x) ^ int64(y))), nil
	}
	return EmptyVal(), invalidOperands(op, NumberVal(x), NumberVal(y))
}

func boolOp(op Opcode, a, b Value) (Value, error) {
	x, y := a.AsBool(), b.AsBool()
	switch op {
	case OP_ADD, OP_OR:
		return BoolVal(x || y), nil
	case OP_MUL, OP_AND:
		return BoolVal(x && y), nil
	case OP_XOR:
		return BoolVal(x != y), nil
	}
	return EmptyVal(), invalidOperands(op, a, b)
}

func stringOp(op Opcode, a, b Value) (Value, error) {
	x, y := a.AsBytes().B, b.AsBytes().B
	switch op {
	case OP_ADD:
		buf := make([]byte, 0, len(x)+len(y))
		buf = append(buf, x...)
		buf = append(buf, y...)
		return BytesVal(buf), nil
	case OP_GTR:
		return BoolVal(bytes.Compare(x, y) > 0), nil
	case OP_LSS:
		return BoolVal(bytes.Compare(x, y) < 0), nil
	case OP_AND, OP_OR, OP_XOR:
		return BytesVal(bytewise(op, x, y)), nil
	}
	return EmptyVal(), invalidOperands(op, a, b)
}

// bytewise combines two byte strings over the longer length, padding the
// shorter one with zero bytes.
func bytewise(op Opcode, x, y []byte) []byte {
	n := len(x)
	if len(y) > n {
		n = len(y)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var p, q byte
		if i < len(x) {
			p = x[i]
		}
		if i < len(y) {
			q = y[i]
		}
		switch op {
		case OP_AND:
			out[i] = p & q
		case OP_OR:
			out[i] = p | q
		case OP_XOR:
			out[i] = p ^ q
		}
	}
	return out
}

// Negate implements prefix ~.
func Negate(v Value) (Value, error) {
	switch v.Type {
	case ValNumber:
		return NumberVal(-v.AsNumber()), nil
	case ValBool:
		return BoolVal(!v.AsBool()), nil
	}
	return EmptyVal(), errorf("invalid operand for ~: %s", v.TypeName())
}

// getElem implements the accessor read.
func getElem(container, key Value) (Value, error) {
	switch container.Type {
	case ValComposite:
		return container.AsComposite().Get(key)
	case ValString:
		return container.AsBytes().Get(key)
	}
	return EmptyVal(), errorf("cannot access %s of %s", key.Inspect(), container.TypeName())
}

// setElem implements the accessor write.
func setElem(container, key, val Value) error {
	switch container.Type {
	case ValComposite:
		return container.AsComposite().Set(key, val)
	case ValString:
		return container.AsBytes().Set(key, val)
	}
	return errorf("cannot assign %s of %s", key.Inspect(), container.TypeName())
}
