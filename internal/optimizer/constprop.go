package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// constProp replaces moves of known constants with constant loads and folds
// arithmetic over constants at compile time.
//
// String constants are never propagated through moves: every load makes a
// fresh buffer, and two registers loaded from one move share theirs. A
// string operand may still be folded when the folded instruction is its
// only reader.
type constProp struct{}

func (constProp) Name() string { return "constprop" }

func (constProp) Run(b *vm.Block) bool {
	f := analyze(b)
	changed := false
	for i := range b.Code {
		ins := &b.Code[i]
		switch {
		case ins.Op == vm.OP_MOV:
			v, k, ok := f.constAt(ins.A, i)
			if !ok || v.Type == vm.ValString {
				continue
			}
			*ins = vm.Instruction{Op: vm.OP_LOAD_CONST, Dest: ins.Dest, K: k, Pos: ins.Pos}
			changed = true

		case ins.Op == vm.OP_NEG:
			v, _, ok := f.constAt(ins.A, i)
			if !ok {
				continue
			}
			res, err := vm.Negate(v)
			if err != nil {
				continue
			}
			*ins = vm.Instruction{Op: vm.OP_LOAD_CONST, Dest: ins.Dest, K: addConst(b, res), Pos: ins.Pos}
			changed = true

		case ins.Op.IsBinary():
			x, ok := foldable(f, ins.A, i)
			if !ok {
				continue
			}
			y, ok := foldable(f, ins.B, i)
			if !ok {
				continue
			}
			res, err := vm.BinaryOp(ins.Op, x, y)
			if err != nil {
				// left for the VM to report at run time
				continue
			}
			*ins = vm.Instruction{Op: vm.OP_LOAD_CONST, Dest: ins.Dest, K: addConst(b, res), Pos: ins.Pos}
			changed = true
		}
	}
	return changed
}

func foldable(f *flow, r, i int) (vm.Value, bool) {
	v, _, ok := f.constAt(r, i)
	if !ok {
		return v, false
	}
	if v.Type == vm.ValString && f.reads[r] != 1 {
		return v, false
	}
	return v, true
}
