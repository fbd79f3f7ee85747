package vm

import (
	"strings"
	"testing"

	"github.com/funvibe/inkvm/internal/diagnostics"
)

func countOps(b *Block, op Opcode) int {
	n := 0
	for _, ins := range b.Code {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func compileExpectError(t *testing.T, input string) *diagnostics.DiagnosticError {
	t.Helper()
	program := parse(t, input)
	compiler := NewCompiler()
	_, err := compiler.Compile(program)
	if err == nil {
		t.Fatalf("expected compile error for %q", input)
	}
	derr, ok := err.(*diagnostics.DiagnosticError)
	if !ok {
		t.Fatalf("expected *DiagnosticError, got %T", err)
	}
	return derr
}

func TestCompiler_EscapedBindingsUseCells(t *testing.T) {
	block := compile(t, "a := 1, f := () => a")
	if countOps(block, OP_MAKE_CELL) != 1 {
		t.Fatalf("expected one MAKE_CELL in the program block:\n%s", Disassemble(block))
	}
	if countOps(block, OP_STORE_CELL) != 1 {
		t.Errorf("expected the define of a to store into its cell:\n%s", Disassemble(block))
	}

	children := block.Children()
	if len(children) != 1 {
		t.Fatalf("expected one nested block, got %d", len(children))
	}
	fn := children[0]
	if len(fn.Binds) != 1 || !fn.Binds[0].Local {
		t.Fatalf("expected one local bind, got %+v", fn.Binds)
	}
	if countOps(fn, OP_LOAD_ESC) != 1 {
		t.Errorf("expected the nested block to read through LOAD_ESC:\n%s", Disassemble(block))
	}
}

func TestCompiler_MutationAloneDoesNotEscape(t *testing.T) {
	block := compile(t, "a := 1, a := a + 1, a")
	if n := countOps(block, OP_MAKE_CELL); n != 0 {
		t.Errorf("expected no cells, got %d:\n%s", n, Disassemble(block))
	}
}

func TestCompiler_ParametersBoxedInPlace(t *testing.T) {
	block := compile(t, "f := a => () => a")
	outer := block.Children()[0]
	if len(outer.Code) == 0 || outer.Code[0].Op != OP_MAKE_CELL {
		t.Fatalf("expected prologue MAKE_CELL:\n%s", Disassemble(block))
	}
	if outer.Code[0].Dest != 0 || outer.Code[0].A != 0 {
		t.Errorf("expected parameter 0 boxed in place, got dest=%d a=%d", outer.Code[0].Dest, outer.Code[0].A)
	}
}

func TestCompiler_TransitiveCapture(t *testing.T) {
	block := compile(t, "a := 1, f := () => () => a")
	outer := block.Children()[0]
	inner := outer.Children()[0]
	if len(outer.Binds) != 1 || !outer.Binds[0].Local {
		t.Fatalf("outer block should capture a from the program, got %+v", outer.Binds)
	}
	if len(inner.Binds) != 1 || inner.Binds[0].Local || inner.Binds[0].Index != 0 {
		t.Fatalf("inner block should forward the outer bind, got %+v", inner.Binds)
	}
}

func TestCompiler_StaticArity(t *testing.T) {
	tests := []string{
		"f := a => a, f(1, 2)",
		"(x => x)(1, 2)",
		"f := () => 1, f(1)",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			derr := compileExpectError(t, input)
			if derr.Code != diagnostics.ErrC001 {
				t.Errorf("expected %s, got %s", diagnostics.ErrC001, derr.Code)
			}
		})
	}
}

func TestCompiler_ArityUnknownAfterRedefinition(t *testing.T) {
	compile(t, "f := a => a, f := (a, b) => a, f(1, 2)")
	compile(t, "f := a => a, f(1)")
}

func TestCompiler_TailMarking(t *testing.T) {
	block := compile(t, "f := n => f(n), g := n => f(n) + 1, g(1)")
	children := block.Children()
	f, g := children[0], children[1]

	if call := f.Code[len(f.Code)-1]; call.Op != OP_CALL || !call.Tail {
		t.Errorf("expected tail call in f:\n%s", Disassemble(f))
	}
	for _, ins := range g.Code {
		if ins.Op == OP_CALL && ins.Tail {
			t.Errorf("call in g is not in tail position:\n%s", Disassemble(g))
		}
	}
	if last := block.Code[len(block.Code)-1]; !last.Tail {
		t.Errorf("expected the last program call to be a tail call")
	}
}

func TestCompiler_MatchLowering(t *testing.T) {
	block := compile(t, "x := 1, x :: {1 -> 'a', _ -> 'b'}")
	if countOps(block, OP_CONST_IF_EQ) != 1 || countOps(block, OP_JUMP) != 1 {
		t.Errorf("expected CONST_IF_EQ and JUMP:\n%s", Disassemble(block))
	}
	if countOps(block, OP_MATCH_FAIL) != 0 {
		t.Errorf("a chain ending in a wildcard cannot fail:\n%s", Disassemble(block))
	}
	for _, ins := range block.Code {
		if ins.Op.IsBranch() && ins.Target != len(block.Code) {
			t.Errorf("branch %s should target the chain end %d, got %d", ins.Op, len(block.Code), ins.Target)
		}
	}

	block = compile(t, "x := 1, x :: {1 -> x, 2 -> 'b'}")
	if countOps(block, OP_CALL_IF_EQ) != 1 || countOps(block, OP_MATCH_FAIL) != 1 {
		t.Errorf("expected CALL_IF_EQ and MATCH_FAIL:\n%s", Disassemble(block))
	}
	if len(block.Children()) != 1 {
		t.Errorf("expected one arm block, got %d", len(block.Children()))
	}

	block = compile(t, "x := 1, x :: {_ -> x, 1 -> 'unreachable'}")
	if countOps(block, OP_CALL_ARM) != 1 || countOps(block, OP_CONST_IF_EQ) != 0 {
		t.Errorf("arms after a wildcard should be dropped:\n%s", Disassemble(block))
	}
}

func TestCompiler_ConstantDeduplication(t *testing.T) {
	block := compile(t, "'a' + 'a' + 'a'")
	if len(block.Consts) != 1 {
		t.Errorf("expected one constant, got %d", len(block.Consts))
	}
	block = compile(t, "1 + 1 + 2")
	if len(block.Consts) != 2 {
		t.Errorf("expected two constants, got %d", len(block.Consts))
	}
}

func TestCompiler_RegistersAreNotReused(t *testing.T) {
	block := compile(t, "a := 1 + 2, b := a * 3")
	seen := map[int]bool{}
	for _, ins := range block.Code {
		if r, ok := Writes(&ins); ok && ins.Op != OP_MOV {
			if seen[r] {
				t.Errorf("register r%d written twice:\n%s", r, Disassemble(block))
			}
			seen[r] = true
		}
	}
}

func TestCompiler_Positions(t *testing.T) {
	block := compile(t, "a := 1\nb := a + 2\nf := x => x")
	block.Walk(func(b *Block) {
		for i, ins := range b.Code {
			if ins.Pos.Line == 0 {
				t.Errorf("%s instruction %d (%s) has no position", b.Name, i, ins.Op)
			}
		}
	})
}

func TestCompiler_BlockNames(t *testing.T) {
	block := compile(t, "double := x => x * 2, (y => y)(1)")
	names := []string{}
	block.Walk(func(b *Block) { names = append(names, b.Name) })
	want := []string{"<program>", "double", "<anonymous>"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected blocks %v, got %v", want, names)
	}
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(compile(t, "f := n => n :: {0 -> 'zero', _ -> f(n - 1)}, f(3)"))
	for _, want := range []string{"== <program> (block 0)", "CLOSURE", "CONST_IF_EQ", "CALL_ARM", "tail", "binds:"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly should contain %q:\n%s", want, out)
		}
	}
}
