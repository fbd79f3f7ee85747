package vm

import "fmt"

// step executes one instruction of frame. frame.pc already points past ins.
func (vm *VM) step(frame *CallFrame, ins *Instruction) error {
	regs := frame.regs

	switch ins.Op {
	case OP_NOP:

	case OP_MOV:
		frame.set(ins.Dest, regs[ins.A])

	case OP_LOAD_CONST:
		frame.set(ins.Dest, loadConst(frame.block, ins.K))

	case OP_LOAD_ESC:
		v, err := frame.cells[ins.A].load()
		if err != nil {
			return err
		}
		frame.set(ins.Dest, v)

	case OP_STORE_ESC:
		return frame.cells[ins.A].store(regs[ins.B])

	case OP_MAKE_CELL:
		v := EmptyVal()
		if ins.A >= 0 {
			v = regs[ins.A]
		}
		frame.set(ins.Dest, cellVal(Escape(v)))

	case OP_LOAD_CELL:
		cell, err := cellAt(regs, ins.A)
		if err != nil {
			return err
		}
		v, err := cell.load()
		if err != nil {
			return err
		}
		frame.set(ins.Dest, v)

	case OP_STORE_CELL:
		cell, err := cellAt(regs, ins.A)
		if err != nil {
			return err
		}
		return cell.store(regs[ins.B])

	case OP_CLOSURE:
		block := frame.block.Nested(ins.K)
		if block == nil {
			return errorf("constant %d is not a block", ins.K)
		}
		cells, err := resolveBinds(frame, block)
		if err != nil {
			return err
		}
		for _, c := range cells {
			c.refs++
		}
		frame.set(ins.Dest, FunctionVal(&Closure{Block: block, Cells: cells}))

	case OP_CALL:
		args := make([]Value, len(ins.Args))
		for i, r := range ins.Args {
			args[i] = regs[r]
		}
		return vm.callValue(frame, ins.Dest, regs[ins.A], args, ins.Tail)

	case OP_TAIL_CALL:
		return vm.tailCall(frame, ins)

	case OP_CALL_IF_EQ:
		if regs[ins.A].Equals(regs[ins.B]) {
			frame.pc = ins.Target
			return vm.callArm(frame, ins.Dest, ins.K, ins.Tail)
		}

	case OP_CONST_IF_EQ:
		if regs[ins.A].Equals(regs[ins.B]) {
			frame.set(ins.Dest, loadConst(frame.block, ins.K))
			frame.pc = ins.Target
		}

	case OP_CALL_ARM:
		frame.pc = ins.Target
		return vm.callArm(frame, ins.Dest, ins.K, ins.Tail)

	case OP_JUMP:
		frame.pc = ins.Target

	case OP_MATCH_FAIL:
		return fmt.Errorf("%w: %s", errNoMatch, regs[ins.A].Inspect())

	case OP_MAKE_COMP:
		frame.set(ins.Dest, CompositeVal(AllocComposite()))

	case OP_SET_ELEM:
		return setElem(regs[ins.A], regs[ins.B], regs[ins.C])

	case OP_GET_ELEM:
		v, err := getElem(regs[ins.A], regs[ins.B])
		if err != nil {
			return err
		}
		frame.set(ins.Dest, v)

	case OP_NEG:
		v, err := Negate(regs[ins.A])
		if err != nil {
			return err
		}
		frame.set(ins.Dest, v)

	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD, OP_GTR, OP_LSS, OP_EQL, OP_AND, OP_OR, OP_XOR:
		v, err := BinaryOp(ins.Op, regs[ins.A], regs[ins.B])
		if err != nil {
			return err
		}
		frame.set(ins.Dest, v)

	default:
		return errorf("unknown opcode %d", ins.Op)
	}
	return nil
}

// loadConst reads constant k. Byte strings are copied so that guest
// mutation never reaches the pool.
func loadConst(b *Block, k int) Value {
	v := b.Consts[k]
	if v.Type == ValString {
		return v.copyString()
	}
	return v
}

func cellAt(regs []Value, r int) (*Cell, error) {
	v := regs[r]
	if v.Type != valCell {
		return nil, errorf("register %d does not hold a cell", r)
	}
	return v.asCell(), nil
}

// resolveBinds looks up the cells block's binds refer to, relative to the
// frame that creates the closure or enters the arm.
func resolveBinds(frame *CallFrame, block *Block) ([]*Cell, error) {
	if len(block.Binds) == 0 {
		return nil, nil
	}
	cells := make([]*Cell, len(block.Binds))
	for i, b := range block.Binds {
		if b.Local {
			cell, err := cellAt(frame.regs, b.Index)
			if err != nil {
				return nil, err
			}
			cells[i] = cell
			continue
		}
		if b.Index >= len(frame.cells) {
			return nil, errorf("bind %d out of range", b.Index)
		}
		cells[i] = frame.cells[b.Index]
	}
	return cells, nil
}
