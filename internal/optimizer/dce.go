package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// dce removes code that cannot affect the result: match arms shadowed by an
// earlier arm with the same literal pattern, instructions no path reaches,
// and side-effect-free definitions nobody reads.
type dce struct{}

func (dce) Name() string { return "dce" }

func (dce) Run(b *vm.Block) bool {
	if len(b.Code) == 0 {
		return false
	}
	changed := removeShadowedArms(b)

	keep := reachable(b)
	f := analyze(b)
	for i := range b.Code {
		if !keep[i] {
			// unreachable code reads nothing
			for _, r := range b.Reads(&b.Code[i]) {
				f.reads[r]--
			}
		}
	}

	for again := true; again; {
		again = false
		for i := range b.Code {
			if !keep[i] || !removable(f, i) {
				continue
			}
			keep[i] = false
			again = true
			for _, r := range b.Reads(&b.Code[i]) {
				f.reads[r]--
			}
		}
	}

	for _, k := range keep {
		if !k {
			compact(b, keep)
			return true
		}
	}
	return changed
}

// removeShadowedArms turns an arm test into a NOP when an earlier test in
// the same chain already compared the same subject with an equal literal.
// If the earlier test had matched, control would have left the chain.
func removeShadowedArms(b *vm.Block) bool {
	f := analyze(b)
	changed := false
	for i := range b.Code {
		ins := &b.Code[i]
		if !isArmTest(ins.Op) || !f.stableAt(ins.A, i) {
			continue
		}
		v, _, ok := f.constAt(ins.B, i)
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			prev := &b.Code[j]
			if !isArmTest(prev.Op) || prev.A != ins.A || prev.Target != ins.Target || !f.dominates(j, i) {
				continue
			}
			if !f.stableAt(prev.A, j) {
				continue
			}
			w, _, ok := f.constAt(prev.B, j)
			if ok && identical(v, w) {
				*ins = vm.Instruction{Op: vm.OP_NOP, Pos: ins.Pos}
				changed = true
				break
			}
		}
	}
	return changed
}

func isArmTest(op vm.Opcode) bool {
	return op == vm.OP_CONST_IF_EQ || op == vm.OP_CALL_IF_EQ
}

// identical reports whether two constants are indistinguishable to Equals
// against any subject.
func identical(a, b vm.Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case vm.ValEmpty, vm.ValNumber, vm.ValBool, vm.ValNative, vm.ValString:
		return a.Equals(b)
	}
	return false
}

// reachable marks the instructions some path from the block entry reaches.
func reachable(b *vm.Block) []bool {
	seen := make([]bool, len(b.Code))
	seen[0] = true
	for i := range b.Code {
		if !seen[i] {
			continue
		}
		ins := &b.Code[i]
		if ins.Op.IsBranch() && ins.Target < len(b.Code) {
			seen[ins.Target] = true
		}
		switch ins.Op {
		case vm.OP_JUMP, vm.OP_CALL_ARM, vm.OP_MATCH_FAIL:
			continue
		}
		if i+1 < len(b.Code) {
			seen[i+1] = true
		}
	}
	return seen
}

// removable reports whether instruction i only defines a register nobody
// reads and cannot fail or have an effect.
func removable(f *flow, i int) bool {
	ins := &f.block.Code[i]
	switch ins.Op {
	case vm.OP_NOP:
		return true
	case vm.OP_MOV, vm.OP_LOAD_CONST, vm.OP_LOAD_ESC, vm.OP_LOAD_CELL, vm.OP_MAKE_COMP, vm.OP_CLOSURE:
		return f.reads[ins.Dest] == 0
	}
	if !ins.Op.IsPure() || f.reads[ins.Dest] != 0 {
		return false
	}
	// the operation must be known to succeed
	x, _, ok := f.constAt(ins.A, i)
	if !ok {
		return false
	}
	if ins.Op == vm.OP_NEG {
		_, err := vm.Negate(x)
		return err == nil
	}
	y, _, ok := f.constAt(ins.B, i)
	if !ok {
		return false
	}
	_, err := vm.BinaryOp(ins.Op, x, y)
	return err == nil
}
