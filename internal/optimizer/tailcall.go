package optimizer

import "github.com/funvibe/inkvm/internal/vm"

// tailCall turns calls marked as tail position into TAIL_CALL. The VM
// reuses the frame for a tail-marked CALL as well; TAIL_CALL additionally
// stages its arguments in a buffer owned by the VM instead of allocating a
// slice per call.
type tailCall struct{}

func (tailCall) Name() string { return "tailcall" }

func (tailCall) Run(b *vm.Block) bool {
	changed := false
	for i := range b.Code {
		ins := &b.Code[i]
		if ins.Op == vm.OP_CALL && ins.Tail {
			ins.Op = vm.OP_TAIL_CALL
			changed = true
		}
	}
	return changed
}
