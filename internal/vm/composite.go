package vm

import (
	"math"
	"strconv"
	"strings"
)

// Composite is the guest's only aggregate: a dense array for keys 0..n-1
// plus an insertion-ordered sparse map for every other key.
type Composite struct {
	refs  int
	freed bool

	array  []Value
	sparse map[string]*sparseEntry
	order  []string
}

type sparseEntry struct {
	key Value
	val Value
}

// AllocComposite returns an empty composite with no owners.
func AllocComposite() *Composite {
	return &Composite{}
}

func (c *Composite) Inspect() string {
	return CompositeVal(c).Inspect()
}

// normalizedKey is a composite key after coercion: an array index, or the
// string form used by the sparse map.
type normalizedKey struct {
	index int
	str   string
	isIdx bool
}

func normalizeKey(key Value) (normalizedKey, error) {
	switch key.Type {
	case ValNumber:
		n := key.AsNumber()
		if n >= 0 && n == math.Trunc(n) && n <= math.MaxInt32 {
			return normalizedKey{index: int(n), isIdx: true}, nil
		}
		return normalizedKey{str: FormatNumber(n)}, nil
	case ValString:
		b := key.AsBytes().B
		if i, ok := canonicalIndex(b); ok {
			return normalizedKey{index: i, isIdx: true}, nil
		}
		return normalizedKey{str: string(b)}, nil
	}
	return normalizedKey{}, errorf("invalid key type %s", key.TypeName())
}

func (c *Composite) checkLive() error {
	if c.freed {
		return errorf("use of released composite")
	}
	return nil
}

// Get reads key. A missing key reads as Empty.
func (c *Composite) Get(key Value) (Value, error) {
	if err := c.checkLive(); err != nil {
		return EmptyVal(), err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return EmptyVal(), err
	}
	if k.isIdx {
		if k.index < len(c.array) {
			return c.array[k.index], nil
		}
		k.str = strconv.Itoa(k.index)
	}
	if e, ok := c.sparse[k.str]; ok {
		return e.val, nil
	}
	return EmptyVal(), nil
}

// Set writes key, retaining val and releasing the value it replaces.
func (c *Composite) Set(key Value, val Value) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	retain(val)
	stored := NumberVal(float64(k.index))
	if k.isIdx {
		switch {
		case k.index < len(c.array):
			old := c.array[k.index]
			c.array[k.index] = val
			release(old)
			return nil
		case k.index == len(c.array):
			c.array = append(c.array, val)
			c.migrate()
			return nil
		}
		k.str = strconv.Itoa(k.index)
	} else if key.Type == ValString {
		stored = StringVal(k.str)
	} else {
		stored = key
	}
	if e, ok := c.sparse[k.str]; ok {
		old := e.val
		e.val = val
		release(old)
		return nil
	}
	if c.sparse == nil {
		c.sparse = make(map[string]*sparseEntry)
	}
	c.sparse[k.str] = &sparseEntry{key: stored, val: val}
	c.order = append(c.order, k.str)
	return nil
}

// migrate moves sparse entries that became contiguous with the array.
func (c *Composite) migrate() {
	for len(c.sparse) > 0 {
		s := strconv.Itoa(len(c.array))
		e, ok := c.sparse[s]
		if !ok {
			return
		}
		c.array = append(c.array, e.val)
		delete(c.sparse, s)
		c.removeOrder(s)
	}
}

func (c *Composite) removeOrder(s string) {
	for i, k := range c.order {
		if k == s {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Len is the number of keys.
func (c *Composite) Len() int {
	return len(c.array) + len(c.sparse)
}

// ArrayLen is the size of the dense region.
func (c *Composite) ArrayLen() int {
	return len(c.array)
}

// Keys returns the array indices followed by the sparse keys in insertion
// order.
func (c *Composite) Keys() []Value {
	keys := make([]Value, 0, c.Len())
	for i := range c.array {
		keys = append(keys, NumberVal(float64(i)))
	}
	for _, s := range c.order {
		keys = append(keys, c.sparse[s].key)
	}
	return keys
}

func (c *Composite) inspect(sb *strings.Builder, seen map[*Composite]bool) {
	sb.WriteByte('{')
	first := true
	sep := func() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
	}
	for i, v := range c.array {
		sep()
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		v.inspect(sb, seen)
	}
	for _, s := range c.order {
		sep()
		e := c.sparse[s]
		if e.key.Type == ValString {
			sb.WriteString(s)
		} else {
			e.key.inspect(sb, seen)
		}
		sb.WriteString(": ")
		e.val.inspect(sb, seen)
	}
	sb.WriteByte('}')
}
