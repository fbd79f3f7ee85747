package vm

// callValue calls callee with args. The result lands in dest of frame, or,
// for a tail call, in whatever register frame itself returns into.
func (vm *VM) callValue(frame *CallFrame, dest int, callee Value, args []Value, tail bool) error {
	switch callee.Type {
	case ValNative:
		return vm.callNative(frame, dest, callee.AsNative(), args)

	case ValFunction:
		cl := callee.AsClosure()
		if cl.freed {
			return errorf("use of released function")
		}
		if tail {
			vm.tailCallClosure(frame, cl, args)
			return nil
		}
		return vm.callClosure(frame, dest, cl, args)
	}
	return errorf("cannot call a value of type %s", callee.TypeName())
}

func (vm *VM) callNative(frame *CallFrame, dest int, id int, args []Value) error {
	_, fn, ok := vm.natives.Get(id)
	if !ok {
		return errorf("unknown native %d", id)
	}
	result, err := fn(vm.callCtx, args)
	if err != nil {
		return err
	}
	if dest >= 0 {
		frame.set(dest, result)
	} else {
		// nothing owns the result
		retain(result)
		release(result)
	}
	return nil
}

// callClosure pushes a frame for cl. Missing arguments stay Empty;
// surplus arguments are dropped.
func (vm *VM) callClosure(frame *CallFrame, dest int, cl *Closure, args []Value) error {
	regs := make([]Value, cl.Block.Slots)
	placeArgs(regs, cl.Block.Params, args)
	cl.refs++
	callee := &CallFrame{
		block:   cl.Block,
		closure: cl,
		cells:   cl.Cells,
		regs:    regs,
		dest:    dest,
	}
	if err := vm.pushFrame(callee); err != nil {
		callee.release()
		return err
	}
	return nil
}

// tailCallClosure reuses frame for cl. The caller of frame receives the
// result. Calling the closure that is already running skips reattaching
// the block and cells.
func (vm *VM) tailCallClosure(frame *CallFrame, cl *Closure, args []Value) {
	for _, a := range args {
		retain(a)
	}
	self := frame.closure == cl
	if !self {
		cl.refs++
	}

	vm.resetRegs(frame, cl.Block.Slots)
	if !self {
		frame.releaseEnv()
		frame.closure = cl
		frame.cells = cl.Cells
		frame.block = cl.Block
	}
	for i, a := range args {
		if i < cl.Block.Params {
			frame.regs[i] = a
		} else {
			release(a)
		}
	}
	frame.pc = 0
}

// tailCall executes TAIL_CALL. A closure callee takes over frame with its
// arguments staged in argBuf, so the call allocates neither a frame nor an
// argument slice. Other callees go through callValue.
func (vm *VM) tailCall(frame *CallFrame, ins *Instruction) error {
	callee := frame.regs[ins.A]
	if callee.Type != ValFunction {
		args := make([]Value, len(ins.Args))
		for i, r := range ins.Args {
			args[i] = frame.regs[r]
		}
		return vm.callValue(frame, ins.Dest, callee, args, true)
	}
	cl := callee.AsClosure()
	if cl.freed {
		return errorf("use of released function")
	}

	args := vm.argBuf[:0]
	for _, r := range ins.Args {
		args = append(args, frame.regs[r])
	}
	vm.tailCallClosure(frame, cl, args)
	clear(args)
	vm.argBuf = args[:0]
	return nil
}

// callArm enters match arm block K of frame. Arm frames borrow nothing:
// the cells their binds resolve to are retained on entry.
func (vm *VM) callArm(frame *CallFrame, dest int, k int, tail bool) error {
	block := frame.block.Nested(k)
	if block == nil {
		return errorf("constant %d is not a block", k)
	}
	cells, err := resolveBinds(frame, block)
	if err != nil {
		return err
	}
	for _, c := range cells {
		c.refs++
	}

	if tail {
		vm.resetRegs(frame, block.Slots)
		frame.releaseEnv()
		frame.block = block
		frame.cells = cells
		frame.ownsCells = true
		frame.pc = 0
		return nil
	}

	arm := &CallFrame{
		block:     block,
		cells:     cells,
		ownsCells: true,
		regs:      make([]Value, block.Slots),
		dest:      dest,
	}
	if err := vm.pushFrame(arm); err != nil {
		arm.release()
		return err
	}
	return nil
}

// resetRegs releases the register file of frame and replaces it with n
// Empty registers, reusing the backing array when it is large enough.
func (vm *VM) resetRegs(frame *CallFrame, n int) {
	old := frame.regs
	for _, v := range old {
		release(v)
	}
	if cap(old) >= n {
		regs := old[:n]
		for i := range regs {
			regs[i] = EmptyVal()
		}
		frame.regs = regs
		return
	}
	frame.regs = make([]Value, n)
}

func placeArgs(regs []Value, params int, args []Value) {
	for i, a := range args {
		if i >= params {
			break
		}
		retain(a)
		regs[i] = a
	}
}
