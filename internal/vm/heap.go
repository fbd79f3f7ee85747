package vm

// Reference counting for heap handles.
//
// Composites, cells and closures carry an owner count. A new allocation
// has no owners; the first store (a register write, a composite slot, a
// cell, a closure's captured cells) retains it. Releasing the last owner
// releases everything the object holds and marks it freed. Reference
// cycles are never collected.

// Cell is a heap box holding a binding that is shared between blocks.
type Cell struct {
	refs  int
	freed bool
	Value Value
}

func (c *Cell) Inspect() string { return "<cell " + c.Value.Inspect() + ">" }

// Escape boxes v into a new cell.
func Escape(v Value) *Cell {
	c := &Cell{}
	retain(v)
	c.Value = v
	return c
}

func (c *Cell) load() (Value, error) {
	if c.freed {
		return EmptyVal(), errorf("use of released cell")
	}
	return c.Value, nil
}

func (c *Cell) store(v Value) error {
	if c.freed {
		return errorf("use of released cell")
	}
	retain(v)
	old := c.Value
	c.Value = v
	release(old)
	return nil
}

// Closure is a function value: a Block plus the cells its binds resolved to
// when it was created.
type Closure struct {
	refs  int
	freed bool
	Block *Block
	Cells []*Cell
}

func (c *Closure) Inspect() string { return "(function)" }

// Retain adds an owner to v if it is a counted handle.
func Retain(v Value) { retain(v) }

// Release drops an owner from v, freeing it when none remain.
func Release(v Value) { release(v) }

// RefCount reports the owner count of a counted handle, or -1.
func RefCount(v Value) int {
	switch o := v.Obj.(type) {
	case *Composite:
		return o.refs
	case *Cell:
		return o.refs
	case *Closure:
		return o.refs
	}
	return -1
}

// IsFreed reports whether a counted handle has been released.
func IsFreed(v Value) bool {
	switch o := v.Obj.(type) {
	case *Composite:
		return o.freed
	case *Cell:
		return o.freed
	case *Closure:
		return o.freed
	}
	return false
}

func retain(v Value) {
	switch o := v.Obj.(type) {
	case *Composite:
		o.refs++
	case *Cell:
		o.refs++
	case *Closure:
		o.refs++
	}
}

func release(v Value) {
	switch o := v.Obj.(type) {
	case *Composite:
		releaseComposite(o)
	case *Cell:
		releaseCell(o)
	case *Closure:
		releaseClosure(o)
	}
}

func releaseComposite(c *Composite) {
	if c.freed || c.refs <= 0 {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	c.freed = true
	array, sparse := c.array, c.sparse
	c.array, c.sparse, c.order = nil, nil, nil
	for _, v := range array {
		release(v)
	}
	for _, e := range sparse {
		release(e.val)
	}
}

func releaseCell(c *Cell) {
	if c.freed || c.refs <= 0 {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	c.freed = true
	v := c.Value
	c.Value = EmptyVal()
	release(v)
}

func releaseClosure(c *Closure) {
	if c.freed || c.refs <= 0 {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	c.freed = true
	cells := c.Cells
	c.Cells = nil
	for _, cell := range cells {
		releaseCell(cell)
	}
}
