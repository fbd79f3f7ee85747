package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// inliner replaces calls to small straight-line functions with a copy of
// their body. The copy gets fresh registers past the caller's frame, so a
// block only grows.
//
// Inlined callees no longer appear in stack traces.
type inliner struct {
	threshold int
}

func (inliner) Name() string { return "inline" }

func (p inliner) Run(b *vm.Block) bool {
	f := analyze(b)
	changed := false
	code := make([]vm.Instruction, 0, len(b.Code))
	newIndex := make([]int, len(b.Code)+1)

	for i := range b.Code {
		newIndex[i] = len(code)
		ins := b.Code[i]
		if ins.Op != vm.OP_CALL {
			code = append(code, ins)
			continue
		}
		callee, ok := f.closureAt(ins.A, i)
		if !ok || !p.inlinable(callee) {
			code = append(code, ins)
			continue
		}
		code = p.expand(b, callee, &ins, code)
		changed = true
	}
	newIndex[len(b.Code)] = len(code)

	if !changed {
		return false
	}
	for i := range code {
		if code[i].Op.IsBranch() {
			code[i].Target = newIndex[code[i].Target]
		}
	}
	b.Code = code
	return true
}

// inlinable accepts callees without captures, calls, branches or nested
// blocks.
func (p inliner) inlinable(callee *vm.Block) bool {
	if len(callee.Binds) > 0 || len(callee.Code) > p.threshold {
		return false
	}
	for i := range callee.Code {
		switch op := callee.Code[i].Op; op {
		case vm.OP_NOP, vm.OP_MOV, vm.OP_MAKE_COMP, vm.OP_SET_ELEM, vm.OP_GET_ELEM:
		case vm.OP_LOAD_CONST:
			if callee.IsBlockConst(callee.Code[i].K) {
				return false
			}
		default:
			if !op.IsPure() {
				return false
			}
		}
	}
	return true
}

// expand appends the inlined body of callee for call to code.
func (p inliner) expand(b, callee *vm.Block, call *vm.Instruction, code []vm.Instruction) []vm.Instruction {
	base := b.Slots
	b.Slots += callee.Slots
	rename := func(r int) int { return base + r }

	for i := 0; i < callee.Params; i++ {
		if i < len(call.Args) {
			code = append(code, vm.Instruction{Op: vm.OP_MOV, Dest: rename(i), A: call.Args[i], Pos: call.Pos})
		} else {
			code = append(code, vm.Instruction{Op: vm.OP_LOAD_CONST, Dest: rename(i), K: addConst(b, vm.EmptyVal()), Pos: call.Pos})
		}
	}
	for _, ins := range callee.Code {
		switch {
		case ins.Op == vm.OP_NOP:
			continue
		case ins.Op == vm.OP_LOAD_CONST:
			ins.K = addConst(b, callee.Consts[ins.K])
			ins.Dest = rename(ins.Dest)
		case ins.Op == vm.OP_MAKE_COMP:
			ins.Dest = rename(ins.Dest)
		case ins.Op == vm.OP_SET_ELEM:
			ins.A, ins.B, ins.C = rename(ins.A), rename(ins.B), rename(ins.C)
		case ins.Op == vm.OP_MOV, ins.Op == vm.OP_NEG:
			ins.Dest, ins.A = rename(ins.Dest), rename(ins.A)
		case ins.Op == vm.OP_GET_ELEM, ins.Op.IsBinary():
			ins.Dest, ins.A, ins.B = rename(ins.Dest), rename(ins.A), rename(ins.B)
		default:
			violation(p.Name(), b, "cannot inline %s from %s", ins.Op, callee.Name)
		}
		code = append(code, ins)
	}
	return append(code, vm.Instruction{Op: vm.OP_MOV, Dest: call.Dest, A: rename(callee.Ret), Pos: call.Pos})
}
