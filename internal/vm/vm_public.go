package vm

// RegisterNative adds a Go function callable from guest code under name and
// returns its id. Programs must be compiled after registration to see it.
func (vm *VM) RegisterNative(name string, fn NativeFunc) int {
	return vm.natives.Register(name, fn)
}

// CallFunction calls a guest function value from the host, for example a
// closure returned by Run. It may be called while no program is running.
// The result carries one reference owned by the caller.
func (vm *VM) CallFunction(fn Value, args []Value) (Value, error) {
	base := len(vm.frames)

	switch fn.Type {
	case ValNative:
		_, native, ok := vm.natives.Get(fn.AsNative())
		if !ok {
			return EmptyVal(), errorf("unknown native %d", fn.AsNative())
		}
		result, err := native(vm.callCtx, args)
		if err != nil {
			return EmptyVal(), &RuntimeError{Message: err.Error(), VMID: vm.ID, cause: err}
		}
		retain(result)
		return result, nil

	case ValFunction:
		cl := fn.AsClosure()
		if cl.freed {
			return EmptyVal(), errorf("use of released function")
		}
		host := &CallFrame{dest: -1}
		if err := vm.callClosure(host, -1, cl, args); err != nil {
			return EmptyVal(), &RuntimeError{Message: err.Error(), VMID: vm.ID, cause: err}
		}
		return vm.execute(base)
	}
	return EmptyVal(), errorf("cannot call a value of type %s", fn.TypeName())
}
