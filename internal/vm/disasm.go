package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of block and every block
// nested in it.
func Disassemble(block *Block) string {
	var sb strings.Builder
	block.Walk(func(b *Block) {
		disassembleBlock(&sb, b)
	})
	return sb.String()
}

func disassembleBlock(sb *strings.Builder, b *Block) {
	sb.WriteString(fmt.Sprintf("== %s (block %d) params=%d slots=%d ret=r%d ==\n", b.Name, b.ID, b.Params, b.Slots, b.Ret))

	if len(b.Binds) > 0 {
		parts := make([]string, len(b.Binds))
		for i, bind := range b.Binds {
			if bind.Local {
				parts[i] = fmt.Sprintf("r%d", bind.Index)
			} else {
				parts[i] = fmt.Sprintf("b%d", bind.Index)
			}
		}
		sb.WriteString("binds: " + strings.Join(parts, " ") + "\n")
	}

	for offset := range b.Code {
		disassembleInstruction(sb, b, offset)
	}
	sb.WriteString("\n")
}

func disassembleInstruction(sb *strings.Builder, b *Block, offset int) {
	ins := &b.Code[offset]
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	// Print line number
	if offset > 0 && b.Code[offset-1].Pos.Line == ins.Pos.Line {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", ins.Pos.Line))
	}

	sb.WriteString(fmt.Sprintf("%-12s", ins.Op.String()))

	switch ins.Op {
	case OP_MOV, OP_LOAD_CELL, OP_NEG:
		sb.WriteString(fmt.Sprintf("r%d r%d", ins.Dest, ins.A))
	case OP_LOAD_CONST:
		sb.WriteString(fmt.Sprintf("r%d %s", ins.Dest, constOperand(b, ins.K)))
	case OP_LOAD_ESC:
		sb.WriteString(fmt.Sprintf("r%d b%d", ins.Dest, ins.A))
	case OP_STORE_ESC:
		sb.WriteString(fmt.Sprintf("b%d r%d", ins.A, ins.B))
	case OP_MAKE_CELL:
		if ins.A < 0 {
			sb.WriteString(fmt.Sprintf("r%d ()", ins.Dest))
		} else {
			sb.WriteString(fmt.Sprintf("r%d r%d", ins.Dest, ins.A))
		}
	case OP_STORE_CELL:
		sb.WriteString(fmt.Sprintf("r%d r%d", ins.A, ins.B))
	case OP_CLOSURE:
		sb.WriteString(fmt.Sprintf("r%d %s", ins.Dest, constOperand(b, ins.K)))
	case OP_CALL, OP_TAIL_CALL:
		sb.WriteString(fmt.Sprintf("r%d r%d(%s)", ins.Dest, ins.A, regList(ins.Args)))
	case OP_CALL_IF_EQ, OP_CONST_IF_EQ:
		sb.WriteString(fmt.Sprintf("r%d r%d = r%d %s -> %04d", ins.Dest, ins.A, ins.B, constOperand(b, ins.K), ins.Target))
	case OP_CALL_ARM:
		sb.WriteString(fmt.Sprintf("r%d %s -> %04d", ins.Dest, constOperand(b, ins.K), ins.Target))
	case OP_JUMP:
		sb.WriteString(fmt.Sprintf("%04d", ins.Target))
	case OP_MATCH_FAIL:
		sb.WriteString(fmt.Sprintf("r%d", ins.A))
	case OP_MAKE_COMP:
		sb.WriteString(fmt.Sprintf("r%d", ins.Dest))
	case OP_SET_ELEM:
		sb.WriteString(fmt.Sprintf("r%d.(r%d) r%d", ins.A, ins.B, ins.C))
	case OP_GET_ELEM:
		sb.WriteString(fmt.Sprintf("r%d r%d.(r%d)", ins.Dest, ins.A, ins.B))
	default:
		if ins.Op.IsBinary() {
			sb.WriteString(fmt.Sprintf("r%d r%d r%d", ins.Dest, ins.A, ins.B))
		}
	}
	if ins.Tail {
		sb.WriteString(" tail")
	}
	sb.WriteString("\n")
}

func constOperand(b *Block, k int) string {
	if k < 0 || k >= len(b.Consts) {
		return fmt.Sprintf("k%d(?)", k)
	}
	return fmt.Sprintf("k%d(%s)", k, b.Consts[k].Inspect())
}

func regList(regs []int) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("r%d", r)
	}
	return strings.Join(parts, ", ")
}
