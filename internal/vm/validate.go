package vm

import "fmt"

// Validate checks the structural invariants the VM relies on over the whole
// block tree. Blocks from the compiler always pass; rewritten or decoded
// blocks are checked before they run.
func Validate(root *Block) error {
	return validate(root, nil)
}

func validate(b, parent *Block) error {
	if b.Slots > MaxRegisters {
		return fmt.Errorf("block %s: %d registers exceed the limit", b.Name, b.Slots)
	}
	if b.Params > b.Slots || b.Ret < 0 || b.Ret >= b.Slots {
		return fmt.Errorf("block %s: ret r%d outside %d slots", b.Name, b.Ret, b.Slots)
	}
	for _, bind := range b.Binds {
		switch {
		case parent == nil:
			return fmt.Errorf("block %s: top-level block has binds", b.Name)
		case bind.Local && (bind.Index < 0 || bind.Index >= parent.Slots):
			return fmt.Errorf("block %s: bind to r%d outside parent", b.Name, bind.Index)
		case !bind.Local && (bind.Index < 0 || bind.Index >= len(parent.Binds)):
			return fmt.Errorf("block %s: bind b%d outside parent", b.Name, bind.Index)
		}
	}

	for i := range b.Code {
		ins := &b.Code[i]
		if ins.Op >= Opcode(len(OpcodeNames)) {
			return fmt.Errorf("block %s: %04d: unknown opcode %d", b.Name, i, ins.Op)
		}
		if r, ok := Writes(ins); ok && (r < 0 || r >= b.Slots) {
			return fmt.Errorf("block %s: %04d %s writes r%d", b.Name, i, ins.Op, r)
		}
		for _, r := range b.Reads(ins) {
			if r < 0 || r >= b.Slots {
				return fmt.Errorf("block %s: %04d %s reads r%d", b.Name, i, ins.Op, r)
			}
		}
		switch ins.Op {
		case OP_LOAD_CONST, OP_CONST_IF_EQ:
			if ins.K < 0 || ins.K >= len(b.Consts) || b.IsBlockConst(ins.K) {
				return fmt.Errorf("block %s: %04d %s bad constant k%d", b.Name, i, ins.Op, ins.K)
			}
		case OP_CLOSURE, OP_CALL_ARM, OP_CALL_IF_EQ:
			if !b.IsBlockConst(ins.K) {
				return fmt.Errorf("block %s: %04d %s bad block k%d", b.Name, i, ins.Op, ins.K)
			}
		case OP_LOAD_ESC, OP_STORE_ESC:
			if ins.A < 0 || ins.A >= len(b.Binds) {
				return fmt.Errorf("block %s: %04d %s bad bind b%d", b.Name, i, ins.Op, ins.A)
			}
		}
		if ins.Op.IsBranch() && (ins.Target <= i || ins.Target > len(b.Code)) {
			return fmt.Errorf("block %s: %04d %s bad target %d", b.Name, i, ins.Op, ins.Target)
		}
	}

	for _, child := range b.Children() {
		if err := validate(child, b); err != nil {
			return err
		}
	}
	return nil
}
