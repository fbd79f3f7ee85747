package vm

import (
	"bytes"
	"testing"

	"github.com/funvibe/inkvm/internal/analyzer"
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/lexer"
	"github.com/funvibe/inkvm/internal/parser"
	"github.com/funvibe/inkvm/internal/pipeline"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	ctx := pipeline.NewPipelineContext(input)
	ctx = pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
	).Run(ctx)
	if len(ctx.Errors) > 0 {
		t.Fatalf("front end error: %s", ctx.Errors[0].Error())
	}
	return ctx.AstRoot
}

func compile(t *testing.T, input string) *Block {
	t.Helper()
	program := parse(t, input)

	compiler := NewCompiler()
	block, err := compiler.Compile(program)
	if err != nil {
		t.Fatalf("compilation error: %s", err)
	}
	return block
}

func runVM(t *testing.T, input string) Value {
	t.Helper()
	result, _ := runVMOutput(t, input)
	return result
}

func runVMOutput(t *testing.T, input string) (Value, string) {
	t.Helper()
	block := compile(t, input)

	var out bytes.Buffer
	vm := New()
	vm.SetOutput(&out)
	result, err := vm.Run(block)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	return result, out.String()
}

func testNumber(t *testing.T, v Value, expected float64) {
	t.Helper()
	if v.Type != ValNumber {
		t.Fatalf("value is not a number. got=%s (%s)", v.TypeName(), v.Inspect())
	}
	if v.AsNumber() != expected {
		t.Errorf("wrong number. got=%s, want=%s", FormatNumber(v.AsNumber()), FormatNumber(expected))
	}
}

func testBool(t *testing.T, v Value, expected bool) {
	t.Helper()
	if v.Type != ValBool {
		t.Fatalf("value is not a boolean. got=%s (%s)", v.TypeName(), v.Inspect())
	}
	if v.AsBool() != expected {
		t.Errorf("wrong boolean. got=%t, want=%t", v.AsBool(), expected)
	}
}

func testString(t *testing.T, v Value, expected string) {
	t.Helper()
	if v.Type != ValString {
		t.Fatalf("value is not a string. got=%s (%s)", v.TypeName(), v.Inspect())
	}
	if got := string(v.AsBytes().B); got != expected {
		t.Errorf("wrong string. got=%q, want=%q", got, expected)
	}
}

func testEmpty(t *testing.T, v Value) {
	t.Helper()
	if v.Type != ValEmpty {
		t.Errorf("value is not empty. got=%s (%s)", v.TypeName(), v.Inspect())
	}
}

func TestNumberArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"1", 1},
		{"1 + 2", 3},
		{"5 - 2 - 1", 2},
		{"1 + 2 * 3", 7},
		{"2 * (3 + 4)", 14},
		{"7 / 2", 3.5},
		{"10 % 3", 1},
		{"2 * 7 % 4", 6},
		{"~5", -5},
		{"~(2 - 7)", 5},
		{"6 & 3", 2},
		{"6 | 3", 7},
		{"6 ^ 3", 5},
		{"a := 4, b := a * a, b - a", 12},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testNumber(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestBooleanExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1 < 2", true},
		{"1 > 2", false},
		{"1 = 1", true},
		{"1 = 2", false},
		{"true & false", false},
		{"true | false", true},
		{"true ^ true", false},
		{"true + false", true},
		{"true * false", false},
		{"~true", false},
		{"'abc' < 'abd'", true},
		{"'b' > 'abc'", true},
		{"'a' = 'a'", true},
		{"() = ()", true},
		{"_ = 1", false},
		{"[] = []", false},
		{"c := [], d := c, c = d", true},
		{"1 = '1'", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testBool(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"'ab' + 'cd'", "abcd"},
		{"s := 'hello', s.0", "h"},
		{"s := 'hello', s.2 := 'LL', s", "heLLo"},
		{"s := 'ab', s.2 := 'c', s", "abc"},
		{"s := 'ab', s.1 := 'xyz', s", "axyz"},
		{"s := 'ab', t := s, t.0 := 'X', s", "Xb"},
		{"a := 'ab', b := a + 'c', b.0 := 'X', a", "ab"},
		{"'it\\'s'", "it's"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testString(t, runVM(t, tt.input), tt.expected)
		})
	}
}

func TestStringOutOfRangeReadIsEmpty(t *testing.T) {
	testEmpty(t, runVM(t, "s := 'hello', s.(10)"))
}

func TestStringConstantsAreCopiedOnLoad(t *testing.T) {
	input := `
f := () => 'abc'
a := f()
a.0 := 'X'
f()
`
	testString(t, runVM(t, input), "abc")
}

func TestBytewiseStringOperators(t *testing.T) {
	result := runVM(t, "'ABCDEFG' & 'abcdEFg'")
	testString(t, result, "ABCDEFG")
	if n := len(result.AsBytes().B); n != 7 {
		t.Errorf("expected 7 bytes, got %d", n)
	}

	testString(t, runVM(t, "'ab' | 'a'"), "ab")
	testString(t, runVM(t, "'a' ^ 'a'"), "\x00")
}

func TestComposites(t *testing.T) {
	testNumber(t, runVM(t, "c := [10, 20, 30], c.1"), 20)
	testNumber(t, runVM(t, "c := {}, c.0 := 'a', c.1 := 'b', len(c)"), 2)
	testNumber(t, runVM(t, "o := {a: 1, b: 2}, o.b"), 2)
	testEmpty(t, runVM(t, "o := {a: 1, b: 2}, o.c"))
	testString(t, runVM(t, "c := {}, c.('0') := 'a', c.0"), "a")
	testString(t, runVM(t, "c := {}, c.0 := 'a', c.('0')"), "a")
	testNumber(t, runVM(t, "o := {}, o.(1.5) := 3, o.(1.5)"), 3)
	testString(t, runVM(t, "keys({a: 1, b: 2}).1"), "b")
}

func TestCompositeArraySparseBoundary(t *testing.T) {
	// index 5 is past the dense region and lands in the sparse map
	testString(t, runVM(t, "c := [1, 2], c.5 := 'x', c.5"), "x")
	testEmpty(t, runVM(t, "c := [1, 2], c.5 := 'x', c.2"))
	testNumber(t, runVM(t, "c := [1, 2], c.5 := 'x', len(c)"), 3)

	// filling the gap migrates the sparse entry into the array
	result := runVM(t, "c := [1], c.2 := 'z', c.1 := 'y', c")
	comp := result.AsComposite()
	if comp.ArrayLen() != 3 {
		t.Errorf("expected dense length 3, got %d (%s)", comp.ArrayLen(), result.Inspect())
	}
	v, err := comp.Get(NumberVal(2))
	if err != nil {
		t.Fatal(err)
	}
	testString(t, v, "z")
}

func TestCompositeSharing(t *testing.T) {
	testNumber(t, runVM(t, "a := [1], b := a, b.0 := 99, a.0"), 99)

	input := `
set := (c, v) => c.0 := v
a := [0]
set(a, 7)
a.0
`
	testNumber(t, runVM(t, input), 7)
}

func TestFunctions(t *testing.T) {
	testNumber(t, runVM(t, "add := (a, b) => a + b, add(2, 3)"), 5)
	testNumber(t, runVM(t, "(x => x * 2)(21)"), 42)
	testNumber(t, runVM(t, "add := a => b => a + b, add(1)(2)"), 3)
	testNumber(t, runVM(t, "f := () => 7, f()"), 7)
	testNumber(t, runVM(t, "f := (_, b) => b, f(1, 2)"), 2)
}

func TestMissingArgumentsAreEmpty(t *testing.T) {
	testEmpty(t, runVM(t, "f := (a, b) => b, f(1)"))
}

func TestSurplusArgumentsAreIgnoredAtRuntime(t *testing.T) {
	// g is not statically known to be a function literal
	testNumber(t, runVM(t, "f := a => a, g := f, g(1, 2)"), 1)
}

func TestClosureCapturesByReference(t *testing.T) {
	testNumber(t, runVM(t, "n := 1, get := () => n, n := 2, get()"), 2)

	input := `
make := () => (
	s := {n: 0}
	() => (s.n := s.n + 1, s.n)
)
inc := make()
inc()
inc()
inc()
`
	testNumber(t, runVM(t, input), 3)
}

func TestDefineInNestedFunctionShadows(t *testing.T) {
	testNumber(t, runVM(t, "x := 1, f := () => (x := 5, x), f(), x"), 1)
	testNumber(t, runVM(t, "x := 1, f := () => (x := 5, x), f()"), 5)
}

func TestMutualRecursion(t *testing.T) {
	input := `
even? := n => n :: {0 -> true, _ -> odd?(n - 1)}
odd? := n => n :: {0 -> false, _ -> even?(n - 1)}
even?(10)
`
	testBool(t, runVM(t, input), true)
}

func TestRecursiveSum(t *testing.T) {
	input := `
sum := n => n :: {
	0 -> 0
	_ -> n + sum(n - 1)
}
sum(1000)
`
	testNumber(t, runVM(t, input), 500500)
}

func TestTailRecursionRunsInBoundedStack(t *testing.T) {
	input := `
loop := (n, acc) => n :: {
	0 -> acc
	_ -> loop(n - 1, acc + 1)
}
loop(200000, 0)
`
	block := compile(t, input)
	vm := New()
	vm.SetMaxFrames(10)
	result, err := vm.Run(block)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testNumber(t, result, 200000)
	if vm.FramesPeak() > 2 {
		t.Errorf("expected at most 2 frames, peak was %d", vm.FramesPeak())
	}
}

// useTailCalls rewrites tail-marked CALLs into TAIL_CALL.
func useTailCalls(root *Block) int {
	n := 0
	root.Walk(func(b *Block) {
		for i := range b.Code {
			if ins := &b.Code[i]; ins.Op == OP_CALL && ins.Tail {
				ins.Op = OP_TAIL_CALL
				n++
			}
		}
	})
	return n
}

func TestTailCallInstruction(t *testing.T) {
	input := `
even? := n => n :: {0 -> true, _ -> odd?(n - 1)}
odd? := n => n :: {0 -> false, _ -> even?(n - 1)}
keep := (n, c) => n :: {0 -> c, _ -> keep(n - 1, c)}
fill := (n, c) => n :: {0 -> c, _ -> fill(n - 1)}
str := n => string(n)
[even?(100001), keep(1000, {k: 'v'}).k, fill(3, 1), str(5)]
`
	block := compile(t, input)
	if n := useTailCalls(block); n == 0 {
		t.Fatalf("expected tail calls in %s", Disassemble(block))
	}

	vm := New()
	vm.SetMaxFrames(10)
	result, err := vm.Run(block)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	elem := func(i int) Value {
		v, err := result.AsComposite().Get(NumberVal(float64(i)))
		if err != nil {
			t.Fatalf("element %d: %s", i, err)
		}
		return v
	}
	testBool(t, elem(0), false)
	testString(t, elem(1), "v")
	testEmpty(t, elem(2))
	testString(t, elem(3), "5")
}

func TestEmptyEquality(t *testing.T) {
	testBool(t, runVM(t, "_ = ()"), true)
	testBool(t, runVM(t, "_ = 1"), false)
	testBool(t, runVM(t, "'' = _"), false)
	// `_` as a pattern still matches anything
	testString(t, runVM(t, "x := 1, x :: {_ -> 'any'}"), "any")
}

func TestMatch(t *testing.T) {
	testString(t, runVM(t, "x := 2, x :: {2 -> 'A', 2 -> 'B', _ -> 'C'}"), "A")
	testString(t, runVM(t, "x := 3, x :: {2 -> 'A', _ -> 'C'}"), "C")
	testNumber(t, runVM(t, "x := 3, x :: {3 -> x * 2, _ -> 0}"), 6)
	testString(t, runVM(t, "x := 'b', x :: {'a' -> 1, 'b' -> 'bee'}"), "bee")
	testNumber(t, runVM(t, "y := 1, x := 2, x :: {y + 1 -> 10, _ -> 20}"), 10)
	testNumber(t, runVM(t, "x := 2, x :: {_ -> (a := x + 1, a * 2)}"), 6)
}

func TestMatchPatternsAreLazy(t *testing.T) {
	result, out := runVMOutput(t, "x := 1, x :: {1 -> 'one', out('never') -> 'n'}")
	testString(t, result, "one")
	if out != "" {
		t.Errorf("second pattern should not run, got output %q", out)
	}
}

func TestMatchArmDefinesIntoEnclosingScope(t *testing.T) {
	testNumber(t, runVM(t, "x := 1, x :: {1 -> y := 5}, y"), 5)
}

func TestNatives(t *testing.T) {
	result, out := runVMOutput(t, "out('hi'), out(' there')")
	testString(t, result, " there")
	if out != "hi there" {
		t.Errorf("expected output %q, got %q", "hi there", out)
	}

	testString(t, runVM(t, "string(12)"), "12")
	testString(t, runVM(t, "string(1.5)"), "1.5")
	testString(t, runVM(t, "string(true)"), "true")
	testString(t, runVM(t, "string(())"), "()")
	testNumber(t, runVM(t, "number('42')"), 42)
	testNumber(t, runVM(t, "number(true)"), 1)
	testEmpty(t, runVM(t, "number('x')"))
	testString(t, runVM(t, "type(1)"), "number")
	testString(t, runVM(t, "type([])"), "composite")
	testString(t, runVM(t, "type(x => x)"), "function")
	testString(t, runVM(t, "type(out)"), "function")
	testString(t, runVM(t, "type(())"), "()")
	testString(t, runVM(t, "char(65)"), "A")
	testNumber(t, runVM(t, "point('A')"), 65)
	testNumber(t, runVM(t, "len([1, 2, 3])"), 3)
	testNumber(t, runVM(t, "len('abcd')"), 4)
}

func TestEmptyProgram(t *testing.T) {
	testEmpty(t, runVM(t, ""))
}

func TestResultOwnedByHost(t *testing.T) {
	result := runVM(t, "c := [1, 2], c")
	if rc := RefCount(result); rc != 1 {
		t.Fatalf("expected host to hold the only reference, got %d", rc)
	}
	Release(result)
	if !IsFreed(result) {
		t.Errorf("expected composite to be freed after release")
	}
}

func TestCallFunctionFromHost(t *testing.T) {
	block := compile(t, "base := 10, (a, b) => a + b + base")
	vm := New()
	fn, err := vm.Run(block)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	result, err := vm.CallFunction(fn, []Value{NumberVal(1), NumberVal(2)})
	if err != nil {
		t.Fatalf("call error: %s", err)
	}
	testNumber(t, result, 13)

	result, err = vm.CallFunction(NativeVal(mustNative(t, vm, "len")), []Value{StringVal("abc")})
	if err != nil {
		t.Fatalf("call error: %s", err)
	}
	testNumber(t, result, 3)
}

func TestRegisterNative(t *testing.T) {
	vm := New()
	vm.RegisterNative("twice", func(_ *CallContext, args []Value) (Value, error) {
		return NumberVal(arg(args, 0).AsNumber() * 2), nil
	})

	ctx := pipeline.NewPipelineContext("twice(21)")
	ctx.Globals = vm.Natives().Globals()
	ctx = pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
	).Run(ctx)
	if len(ctx.Errors) > 0 {
		t.Fatalf("front end error: %s", ctx.Errors[0])
	}

	compiler := NewCompiler()
	compiler.SetNatives(vm.Natives())
	block, err := compiler.Compile(ctx.AstRoot)
	if err != nil {
		t.Fatal(err)
	}
	result, err := vm.Run(block)
	if err != nil {
		t.Fatal(err)
	}
	testNumber(t, result, 42)
}

func mustNative(t *testing.T, vm *VM, name string) int {
	t.Helper()
	id, ok := vm.Natives().Lookup(name)
	if !ok {
		t.Fatalf("native %s not registered", name)
	}
	return id
}
