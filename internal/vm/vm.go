package vm

import (
	"context"
	"io"
	"os"

	"github.com/funvibe/inkvm/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// checkInterval is the number of instructions between context checks.
const checkInterval = 1000

// CallFrame is one activation: a Block, its register file and the cells
// its binds resolved to.
type CallFrame struct {
	block   *Block
	closure *Closure // nil for the root frame and arm frames
	cells   []*Cell
	// ownsCells is set for arm frames, which retain the cells they resolved
	// on entry instead of borrowing a closure's.
	ownsCells bool
	regs      []Value
	pc        int
	dest      int // caller register receiving the result, -1 for the host
}

// set stores v into register r, retaining v before releasing the value it
// replaces.
func (f *CallFrame) set(r int, v Value) {
	retain(v)
	old := f.regs[r]
	f.regs[r] = v
	release(old)
}

// VM is the virtual machine that executes Blocks. A VM is not safe for
// concurrent use; run one per goroutine.
type VM struct {
	ID string

	frames     []*CallFrame
	framesPeak int
	maxFrames  int
	ops        int

	natives *NativeRegistry
	callCtx *CallContext

	// argBuf holds the arguments of a TAIL_CALL between reading them from
	// the registers and placing them in the reused frame.
	argBuf []Value

	// Output writer (defaults to os.Stdout)
	out    io.Writer
	logger *zap.Logger

	// Context for cancellation
	Context context.Context
}

// New creates a new VM instance with the default natives.
func New() *VM {
	vm := &VM{
		ID:        uuid.NewString(),
		maxFrames: config.DefaultMaxFrames,
		natives:   DefaultNatives(),
		out:       os.Stdout,
		logger:    zap.NewNop(),
	}
	vm.callCtx = &CallContext{Out: vm.out, Logger: vm.logger}
	return vm
}

// SetOutput sets the writer natives print to.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
	vm.callCtx.Out = w
}

// SetContext sets the context for cancellation
func (vm *VM) SetContext(ctx context.Context) {
	vm.Context = ctx
}

func (vm *VM) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vm.logger = logger.With(zap.String("vm", vm.ID))
	vm.callCtx.Logger = vm.logger
}

// SetMaxFrames bounds the depth of non-tail calls. n <= 0 restores the
// default.
func (vm *VM) SetMaxFrames(n int) {
	if n <= 0 {
		n = config.DefaultMaxFrames
	}
	vm.maxFrames = n
}

// SetNatives replaces the native registry. Blocks must have been compiled
// against the same registry, since they carry native ids.
func (vm *VM) SetNatives(r *NativeRegistry) {
	vm.natives = r
}

func (vm *VM) Natives() *NativeRegistry {
	return vm.natives
}

// FramesPeak is the deepest frame stack seen since the VM was created.
func (vm *VM) FramesPeak() int {
	return vm.framesPeak
}

// Run executes block as the root of a program and returns its result.
// The result carries one reference owned by the caller.
func (vm *VM) Run(block *Block) (Value, error) {
	if len(vm.frames) != 0 {
		return EmptyVal(), errorf("vm is already running")
	}
	vm.ops = 0
	root := &CallFrame{
		block: block,
		regs:  make([]Value, block.Slots),
		dest:  -1,
	}
	if err := vm.pushFrame(root); err != nil {
		return EmptyVal(), err
	}

	result, err := vm.execute(0)
	if err != nil {
		vm.logger.Debug("run failed", zap.Error(err), zap.Int("ops", vm.ops))
		return EmptyVal(), err
	}
	vm.logger.Debug("run finished",
		zap.Int("ops", vm.ops),
		zap.Int("frames_peak", vm.framesPeak))
	return result, nil
}

// execute runs until the frame stack shrinks back to base frames, and
// returns the value the frame at index base returned.
func (vm *VM) execute(base int) (Value, error) {
	opsSinceCheck := 0
	for {
		frame := vm.frames[len(vm.frames)-1]

		if frame.pc >= len(frame.block.Code) {
			result := frame.regs[frame.block.Ret]
			retain(result)
			vm.popFrame()
			if len(vm.frames) == base {
				return result, nil
			}
			vm.frames[len(vm.frames)-1].set(frame.dest, result)
			release(result)
			continue
		}

		// Check for cancellation periodically
		opsSinceCheck++
		if opsSinceCheck >= checkInterval {
			opsSinceCheck = 0
			if vm.Context != nil {
				select {
				case <-vm.Context.Done():
					return EmptyVal(), vm.fail(base, &frame.block.Code[frame.pc], vm.Context.Err())
				default:
				}
			}
		}

		ins := &frame.block.Code[frame.pc]
		frame.pc++
		vm.ops++
		if err := vm.step(frame, ins); err != nil {
			return EmptyVal(), vm.fail(base, ins, err)
		}
	}
}

func (vm *VM) pushFrame(f *CallFrame) error {
	if len(vm.frames) >= vm.maxFrames {
		return errStackOverflow
	}
	vm.frames = append(vm.frames, f)
	if len(vm.frames) > vm.framesPeak {
		vm.framesPeak = len(vm.frames)
	}
	return nil
}

// popFrame drops the top frame and everything it owns.
func (vm *VM) popFrame() {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	f.release()
}

func (f *CallFrame) release() {
	regs := f.regs
	f.regs = nil
	for _, v := range regs {
		release(v)
	}
	f.releaseEnv()
}

// releaseEnv drops the frame's closure and, for arm frames, its cells.
func (f *CallFrame) releaseEnv() {
	if f.closure != nil {
		releaseClosure(f.closure)
		f.closure = nil
	}
	if f.ownsCells {
		for _, c := range f.cells {
			releaseCell(c)
		}
		f.ownsCells = false
	}
	f.cells = nil
}

// fail turns err into a RuntimeError positioned at ins, with a trace of
// the live frames, then unwinds the frames above base.
func (vm *VM) fail(base int, ins *Instruction, err error) error {
	if rerr, ok := err.(*RuntimeError); ok {
		vm.unwind(base)
		return rerr
	}
	rerr := &RuntimeError{
		Message: err.Error(),
		Pos:     ins.Pos,
		VMID:    vm.ID,
		cause:   err,
	}
	for i := len(vm.frames) - 1; i >= base; i-- {
		f := vm.frames[i]
		pos := Pos{}
		if f.pc > 0 && f.pc-1 < len(f.block.Code) {
			pos = f.block.Code[f.pc-1].Pos
		}
		rerr.Trace = append(rerr.Trace, TraceEntry{Block: f.block.Name, Pos: pos})
	}
	vm.unwind(base)
	return rerr
}

func (vm *VM) unwind(base int) {
	for len(vm.frames) > base {
		vm.popFrame()
	}
}
