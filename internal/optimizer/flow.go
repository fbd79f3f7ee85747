package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// flow summarises one block: where each register is written and read, and
// which branches jump forward over instructions. Control only ever moves
// forward inside a block, so dominance reduces to checking that no branch
// skips the dominating instruction.
type flow struct {
	block *vm.Block
	defs  map[int][]int
	reads map[int]int
	jumps []jump
}

type jump struct {
	from, to int
}

func analyze(b *vm.Block) *flow {
	f := &flow{
		block: b,
		defs:  make(map[int][]int),
		reads: make(map[int]int),
	}
	for i := range b.Code {
		ins := &b.Code[i]
		if r, ok := vm.Writes(ins); ok {
			f.defs[r] = append(f.defs[r], i)
		}
		for _, r := range b.Reads(ins) {
			f.reads[r]++
		}
		if ins.Op.IsBranch() {
			f.jumps = append(f.jumps, jump{from: i, to: ins.Target})
		}
	}
	// the result register is read when the frame returns
	f.reads[b.Ret]++
	return f
}

// singleDef returns the only instruction that writes r. Parameters are
// written on entry and never qualify.
func (f *flow) singleDef(r int) (int, bool) {
	if r < f.block.Params {
		return 0, false
	}
	d := f.defs[r]
	if len(d) != 1 {
		return 0, false
	}
	return d[0], true
}

// dominates reports whether every path from the block entry to i passes
// through d.
func (f *flow) dominates(d, i int) bool {
	if d >= i {
		return false
	}
	for _, j := range f.jumps {
		if j.from < d && j.to > d && j.to <= i {
			return false
		}
	}
	return true
}

// stableAt reports whether r holds the same value at i as at any later
// point of the block: it is a parameter nothing overwrites, or it has a
// single definition that runs before i.
func (f *flow) stableAt(r, i int) bool {
	if r < f.block.Params {
		return len(f.defs[r]) == 0
	}
	d, ok := f.singleDef(r)
	return ok && f.dominates(d, i)
}

// constAt returns the constant r certainly holds when i runs.
func (f *flow) constAt(r, i int) (vm.Value, int, bool) {
	d, ok := f.singleDef(r)
	if !ok || !f.dominates(d, i) {
		return vm.Value{}, 0, false
	}
	ins := &f.block.Code[d]
	if ins.Op != vm.OP_LOAD_CONST || f.block.IsBlockConst(ins.K) {
		return vm.Value{}, 0, false
	}
	return f.block.Consts[ins.K], ins.K, true
}

// closureAt returns the block of the closure r certainly holds when i runs,
// following chains of moves.
func (f *flow) closureAt(r, i int) (*vm.Block, bool) {
	for depth := 0; depth < len(f.block.Code); depth++ {
		d, ok := f.singleDef(r)
		if !ok || !f.dominates(d, i) {
			return nil, false
		}
		ins := &f.block.Code[d]
		switch ins.Op {
		case vm.OP_CLOSURE:
			nested := f.block.Nested(ins.K)
			return nested, nested != nil
		case vm.OP_MOV:
			r, i = ins.A, d
		default:
			return nil, false
		}
	}
	return nil, false
}

// forward returns the register r was copied from, if that register still
// holds the same value at i. Otherwise it returns r.
func (f *flow) forward(r, i int) int {
	for depth := 0; depth < len(f.block.Code); depth++ {
		d, ok := f.singleDef(r)
		if !ok || !f.dominates(d, i) {
			return r
		}
		ins := &f.block.Code[d]
		if ins.Op != vm.OP_MOV || !f.stableAt(ins.A, i) {
			return r
		}
		r = ins.A
	}
	return r
}

// hasEffectsBetween reports whether an instruction strictly between j and
// i may mutate a composite or byte string.
func (f *flow) hasEffectsBetween(j, i int) bool {
	for k := j + 1; k < i; k++ {
		op := f.block.Code[k].Op
		if op == vm.OP_SET_ELEM || op.IsCall() {
			return true
		}
	}
	return false
}

// compact drops the instructions not marked in keep and retargets branches.
// A branch to a dropped instruction lands on the next kept one.
func compact(b *vm.Block, keep []bool) {
	newIndex := make([]int, len(b.Code)+1)
	n := 0
	for i := range b.Code {
		newIndex[i] = n
		if keep[i] {
			n++
		}
	}
	newIndex[len(b.Code)] = n

	code := make([]vm.Instruction, 0, n)
	for i, ins := range b.Code {
		if !keep[i] {
			continue
		}
		if ins.Op.IsBranch() {
			ins.Target = newIndex[ins.Target]
		}
		code = append(code, ins)
	}
	b.Code = code
}

// addConst returns the index of a pool constant identical to v, appending
// v if there is none. Numbers compare by bits so that -0 keeps its sign.
func addConst(b *vm.Block, v vm.Value) int {
	for k, c := range b.Consts {
		if c.Type != v.Type {
			continue
		}
		switch c.Type {
		case vm.ValEmpty:
			return k
		case vm.ValNumber, vm.ValBool, vm.ValNative:
			if c.Data == v.Data {
				return k
			}
		case vm.ValString:
			if c.Equals(v) {
				return k
			}
		}
	}
	return b.AddConst(v)
}
