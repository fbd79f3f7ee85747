// Package vm implements the register-based bytecode virtual machine for
// Ink, together with the code generator that lowers a resolved AST into
// Blocks.
package vm

// Opcode represents a single VM instruction
type Opcode byte

const (
	OP_NOP Opcode = iota

	// Registers and constants
	OP_MOV        // Dest = A
	OP_LOAD_CONST // Dest = K (byte strings are copied)

	// Escape cells
	OP_LOAD_ESC   // Dest = binds[A].value
	OP_STORE_ESC  // binds[A].value = B
	OP_MAKE_CELL  // Dest = new cell holding A (Empty when A < 0)
	OP_LOAD_CELL  // Dest = A.value
	OP_STORE_CELL // A.value = B

	// Functions and calls
	OP_CLOSURE   // Dest = closure of block K over its binds
	OP_CALL      // Dest = A(Args...)
	OP_TAIL_CALL // replace the current frame with A(Args...)

	// Match chains
	OP_CALL_IF_EQ  // if A = B { Dest = arm K(); pc = Target }
	OP_CONST_IF_EQ // if A = B { Dest = K; pc = Target }
	OP_CALL_ARM    // Dest = arm K(); pc = Target
	OP_JUMP        // pc = Target
	OP_MATCH_FAIL  // no arm matched A

	// Composites
	OP_MAKE_COMP // Dest = {}
	OP_SET_ELEM  // A.B = C
	OP_GET_ELEM  // Dest = A.B

	// Operators
	OP_NEG // Dest = ~A
	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_GTR
	OP_LSS
	OP_EQL
	OP_AND
	OP_OR
	OP_XOR

	opCount
)

// OpcodeNames maps opcodes to their string names for debugging
var OpcodeNames = map[Opcode]string{
	OP_NOP:         "NOP",
	OP_MOV:         "MOV",
	OP_LOAD_CONST:  "LOAD_CONST",
	OP_LOAD_ESC:    "LOAD_ESC",
	OP_STORE_ESC:   "STORE_ESC",
	OP_MAKE_CELL:   "MAKE_CELL",
	OP_LOAD_CELL:   "LOAD_CELL",
	OP_STORE_CELL:  "STORE_CELL",
	OP_CLOSURE:     "CLOSURE",
	OP_CALL:        "CALL",
	OP_TAIL_CALL:   "TAIL_CALL",
	OP_CALL_IF_EQ:  "CALL_IF_EQ",
	OP_CONST_IF_EQ: "CONST_IF_EQ",
	OP_CALL_ARM:    "CALL_ARM",
	OP_JUMP:        "JUMP",
	OP_MATCH_FAIL:  "MATCH_FAIL",
	OP_MAKE_COMP:   "MAKE_COMP",
	OP_SET_ELEM:    "SET_ELEM",
	OP_GET_ELEM:    "GET_ELEM",
	OP_NEG:         "NEG",
	OP_ADD:         "ADD",
	OP_SUB:         "SUB",
	OP_MUL:         "MUL",
	OP_DIV:         "DIV",
	OP_MOD:         "MOD",
	OP_GTR:         "GTR",
	OP_LSS:         "LSS",
	OP_EQL:         "EQL",
	OP_AND:         "AND",
	OP_OR:          "OR",
	OP_XOR:         "XOR",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// OpcodeByName is the inverse of OpcodeNames, used when decoding images.
func OpcodeByName(name string) (Opcode, bool) {
	for op, n := range OpcodeNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// IsBinary reports whether op is a two-operand operator.
func (op Opcode) IsBinary() bool {
	return op >= OP_ADD && op <= OP_XOR
}

// IsPure reports whether op computes Dest from its operands alone.
func (op Opcode) IsPure() bool {
	return op == OP_NEG || op.IsBinary()
}

// IsCall reports whether op may push a frame.
func (op Opcode) IsCall() bool {
	switch op {
	case OP_CALL, OP_TAIL_CALL, OP_CALL_IF_EQ, OP_CALL_ARM:
		return true
	}
	return false
}

// IsBranch reports whether op may transfer control to Target.
func (op Opcode) IsBranch() bool {
	switch op {
	case OP_CALL_IF_EQ, OP_CONST_IF_EQ, OP_CALL_ARM, OP_JUMP:
		return true
	}
	return false
}
