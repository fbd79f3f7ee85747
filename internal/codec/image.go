// Package codec serialises compiled programs. An image is the magic
// "INKB", a format version byte and the canonical CBOR encoding of the
// block table, so equal programs always encode to equal bytes.
package codec

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/funvibe/inkvm/internal/vm"
)

// FormatVersion changes whenever the image layout or the meaning of an
// opcode changes.
const FormatVersion byte = 0x01

var magic = []byte{'I', 'N', 'K', 'B'}

var (
	ErrBadMagic = errors.New("not an inkvm image")
	ErrVersion  = errors.New("unsupported image version")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// image is the encoded form of a block tree. Blocks[0] is the root; nested
// blocks are referenced by their index in the table.
type image struct {
	Blocks []blockRecord `cbor:"1,keyasint"`
}

type blockRecord struct {
	ID     int           `cbor:"1,keyasint"`
	Name   string        `cbor:"2,keyasint,omitempty"`
	Slots  int           `cbor:"3,keyasint"`
	Params int           `cbor:"4,keyasint,omitempty"`
	Ret    int           `cbor:"5,keyasint"`
	Consts []constRecord `cbor:"6,keyasint,omitempty"`
	Binds  []bindRecord  `cbor:"7,keyasint,omitempty"`
	Code   []insRecord   `cbor:"8,keyasint,omitempty"`
}

const (
	constEmpty uint8 = iota
	constNumber
	constBool
	constString
	constNative
	constBlock
)

type constRecord struct {
	Kind   uint8  `cbor:"1,keyasint"`
	Bits   uint64 `cbor:"2,keyasint,omitempty"` // float64 bits or boolean
	Str    []byte `cbor:"3,keyasint,omitempty"`
	Native string `cbor:"4,keyasint,omitempty"`
	Block  int    `cbor:"5,keyasint,omitempty"`
}

type bindRecord struct {
	Local bool `cbor:"1,keyasint,omitempty"`
	Index int  `cbor:"2,keyasint"`
}

// insRecord stores the opcode by name, so renumbering opcodes does not
// silently change the meaning of old images.
type insRecord struct {
	Op     string `cbor:"1,keyasint"`
	Dest   int    `cbor:"2,keyasint,omitempty"`
	A      int    `cbor:"3,keyasint,omitempty"`
	B      int    `cbor:"4,keyasint,omitempty"`
	C      int    `cbor:"5,keyasint,omitempty"`
	K      int    `cbor:"6,keyasint,omitempty"`
	Args   []int  `cbor:"7,keyasint,omitempty"`
	Target int    `cbor:"8,keyasint,omitempty"`
	Tail   bool   `cbor:"9,keyasint,omitempty"`
	Line   int    `cbor:"10,keyasint,omitempty"`
	Column int    `cbor:"11,keyasint,omitempty"`
}

// Encode serialises the block tree rooted at root. Native constants are
// written by name, looked up in natives.
func Encode(root *vm.Block, natives *vm.NativeRegistry) ([]byte, error) {
	enc := &encoder{natives: natives, index: make(map[*vm.Block]int)}
	enc.number(root)
	for _, b := range enc.order {
		rec, err := enc.block(b)
		if err != nil {
			return nil, errors.Wrapf(err, "encode block %s", b.Name)
		}
		enc.img.Blocks = append(enc.img.Blocks, rec)
	}

	payload, err := encMode.Marshal(&enc.img)
	if err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(FormatVersion)
	buf.Write(payload)
	return buf.Bytes(), nil
}

type encoder struct {
	natives *vm.NativeRegistry
	index   map[*vm.Block]int
	order   []*vm.Block
	img     image
}

// number assigns table indices in depth-first order.
func (e *encoder) number(b *vm.Block) {
	if _, ok := e.index[b]; ok {
		return
	}
	e.index[b] = len(e.order)
	e.order = append(e.order, b)
	for _, child := range b.Children() {
		e.number(child)
	}
}

func (e *encoder) block(b *vm.Block) (blockRecord, error) {
	rec := blockRecord{
		ID:     b.ID,
		Name:   b.Name,
		Slots:  b.Slots,
		Params: b.Params,
		Ret:    b.Ret,
	}
	for k, c := range b.Consts {
		cr, err := e.constant(b, k, c)
		if err != nil {
			return rec, err
		}
		rec.Consts = append(rec.Consts, cr)
	}
	for _, bind := range b.Binds {
		rec.Binds = append(rec.Binds, bindRecord{Local: bind.Local, Index: bind.Index})
	}
	for _, ins := range b.Code {
		rec.Code = append(rec.Code, insRecord{
			Op:     ins.Op.String(),
			Dest:   ins.Dest,
			A:      ins.A,
			B:      ins.B,
			C:      ins.C,
			K:      ins.K,
			Args:   ins.Args,
			Target: ins.Target,
			Tail:   ins.Tail,
			Line:   ins.Pos.Line,
			Column: ins.Pos.Column,
		})
	}
	return rec, nil
}

func (e *encoder) constant(b *vm.Block, k int, c vm.Value) (constRecord, error) {
	if nested := b.Nested(k); nested != nil {
		return constRecord{Kind: constBlock, Block: e.index[nested]}, nil
	}
	switch c.Type {
	case vm.ValEmpty:
		return constRecord{Kind: constEmpty}, nil
	case vm.ValNumber:
		return constRecord{Kind: constNumber, Bits: c.Data}, nil
	case vm.ValBool:
		return constRecord{Kind: constBool, Bits: c.Data}, nil
	case vm.ValString:
		return constRecord{Kind: constString, Str: c.AsBytes().B}, nil
	case vm.ValNative:
		name, _, ok := e.natives.Get(c.AsNative())
		if !ok {
			return constRecord{}, errors.Errorf("constant %d: unknown native %d", k, c.AsNative())
		}
		return constRecord{Kind: constNative, Native: name}, nil
	}
	return constRecord{}, errors.Errorf("constant %d: %s cannot be encoded", k, c.TypeName())
}

// Decode rebuilds a block tree from an image. Native names are resolved
// against natives; the result is validated before it is returned.
func Decode(data []byte, natives *vm.NativeRegistry) (*vm.Block, error) {
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrBadMagic
	}
	if v := data[len(magic)]; v != FormatVersion {
		return nil, errors.Wrapf(ErrVersion, "version %d, expected %d", v, FormatVersion)
	}

	var img image
	if err := cbor.Unmarshal(data[len(magic)+1:], &img); err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if len(img.Blocks) == 0 {
		return nil, errors.New("decode image: no blocks")
	}

	blocks := make([]*vm.Block, len(img.Blocks))
	for i, rec := range img.Blocks {
		blocks[i] = &vm.Block{ID: rec.ID, Name: rec.Name, Slots: rec.Slots, Params: rec.Params, Ret: rec.Ret}
	}
	for i, rec := range img.Blocks {
		if err := fill(i, rec, blocks, natives); err != nil {
			return nil, errors.Wrapf(err, "decode block %s", rec.Name)
		}
	}

	root := blocks[0]
	if err := vm.Validate(root); err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return root, nil
}

func fill(i int, rec blockRecord, blocks []*vm.Block, natives *vm.NativeRegistry) error {
	b := blocks[i]
	for k, cr := range rec.Consts {
		switch cr.Kind {
		case constEmpty:
			b.AddConst(vm.EmptyVal())
		case constNumber:
			b.AddConst(vm.Value{Type: vm.ValNumber, Data: cr.Bits})
		case constBool:
			b.AddConst(vm.BoolVal(cr.Bits == 1))
		case constString:
			b.AddConst(vm.BytesVal(append([]byte(nil), cr.Str...)))
		case constNative:
			id, ok := natives.Lookup(cr.Native)
			if !ok {
				return errors.Errorf("constant %d: unknown native %q", k, cr.Native)
			}
			b.AddConst(vm.NativeVal(id))
		case constBlock:
			// only later blocks may be nested, which rules out cycles
			if cr.Block <= i || cr.Block >= len(blocks) {
				return errors.Errorf("constant %d: bad block reference %d", k, cr.Block)
			}
			b.AddBlockConst(blocks[cr.Block])
		default:
			return errors.Errorf("constant %d: unknown kind %d", k, cr.Kind)
		}
	}

	for _, br := range rec.Binds {
		b.Binds = append(b.Binds, vm.Bind{Local: br.Local, Index: br.Index})
	}

	b.Code = make([]vm.Instruction, 0, len(rec.Code))
	for pc, ir := range rec.Code {
		op, ok := vm.OpcodeByName(ir.Op)
		if !ok {
			return errors.Errorf("instruction %d: unknown opcode %q", pc, ir.Op)
		}
		b.Code = append(b.Code, vm.Instruction{
			Op:     op,
			Dest:   ir.Dest,
			A:      ir.A,
			B:      ir.B,
			C:      ir.C,
			K:      ir.K,
			Args:   ir.Args,
			Target: ir.Target,
			Tail:   ir.Tail,
			Pos:    vm.Pos{Line: ir.Line, Column: ir.Column},
		})
	}
	return nil
}
