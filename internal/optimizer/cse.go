package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// cse replaces a pure operation with a move from an identical operation
// that already ran on the same operand values. Operands that are plain
// copies of a stable register are first rewritten to read that register,
// so that identical expressions over the same bindings compare equal.
//
// Addition and the bitwise operators allocate a new byte string when their
// operands are strings, so they are only shared when one operand is a
// known non-string constant.
type cse struct{}

func (cse) Name() string { return "cse" }

func (cse) Run(b *vm.Block) bool {
	f := analyze(b)
	changed := false
	for i := range b.Code {
		ins := &b.Code[i]
		if !ins.Op.IsPure() {
			continue
		}
		if r := f.forward(ins.A, i); r != ins.A {
			ins.A = r
			changed = true
		}
		if ins.Op != vm.OP_NEG {
			if r := f.forward(ins.B, i); r != ins.B {
				ins.B = r
				changed = true
			}
		}
	}

	for i := range b.Code {
		ins := &b.Code[i]
		if !ins.Op.IsPure() || !shareable(f, ins, i) {
			continue
		}
		for j := 0; j < i; j++ {
			prev := &b.Code[j]
			if !sameOperation(prev, ins) || !f.dominates(j, i) {
				continue
			}
			if _, ok := f.singleDef(prev.Dest); !ok {
				continue
			}
			if !operandsStable(f, prev, j) || f.hasEffectsBetween(j, i) {
				continue
			}
			*ins = vm.Instruction{Op: vm.OP_MOV, Dest: ins.Dest, A: prev.Dest, Pos: ins.Pos}
			changed = true
			break
		}
	}
	return changed
}

func sameOperation(a, b *vm.Instruction) bool {
	if a.Op != b.Op || a.A != b.A {
		return false
	}
	return a.Op == vm.OP_NEG || a.B == b.B
}

func operandsStable(f *flow, ins *vm.Instruction, at int) bool {
	if !f.stableAt(ins.A, at) {
		return false
	}
	return ins.Op == vm.OP_NEG || f.stableAt(ins.B, at)
}

func shareable(f *flow, ins *vm.Instruction, at int) bool {
	switch ins.Op {
	case vm.OP_ADD, vm.OP_AND, vm.OP_OR, vm.OP_XOR:
		for _, r := range []int{ins.A, ins.B} {
			if v, _, ok := f.constAt(r, at); ok && v.Type != vm.ValString {
				return true
			}
		}
		return false
	}
	return true
}
