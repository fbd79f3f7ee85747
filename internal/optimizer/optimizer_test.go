package optimizer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/funvibe/inkvm/internal/analyzer"
	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/lexer"
	"github.com/funvibe/inkvm/internal/parser"
	"github.com/funvibe/inkvm/internal/pipeline"
	"github.com/funvibe/inkvm/internal/vm"
)

func compile(t *testing.T, input string) *vm.Block {
	t.Helper()
	ctx := pipeline.NewPipelineContext(input)
	ctx = pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
	).Run(ctx)
	require.Empty(t, ctx.Errors, "front end errors")

	block, err := vm.NewCompiler().Compile(ctx.AstRoot)
	require.NoError(t, err)
	return block
}

func optimize(t *testing.T, block *vm.Block, passes ...string) *vm.Block {
	t.Helper()
	opts := config.OptimizerOptions{Passes: passes}
	o, err := New(opts, zap.NewNop())
	require.NoError(t, err)
	out := o.Optimize(block)
	require.NoError(t, vm.Validate(out))
	return out
}

type outcome struct {
	result string
	output string
	err    string
}

func run(t *testing.T, block *vm.Block) outcome {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New()
	machine.SetOutput(&out)
	res, err := machine.Run(block)
	if err != nil {
		var rerr *vm.RuntimeError
		require.True(t, errors.As(err, &rerr), "unexpected error type %T", err)
		return outcome{output: out.String(), err: rerr.Message}
	}
	return outcome{result: res.Inspect(), output: out.String()}
}

func countOps(block *vm.Block, op vm.Opcode) int {
	n := 0
	block.Walk(func(b *vm.Block) {
		for _, ins := range b.Code {
			if ins.Op == op {
				n++
			}
		}
	})
	return n
}

func TestOptimizedProgramsBehaveTheSame(t *testing.T) {
	programs := map[string]string{
		"arithmetic":     "a := 2, b := 3, a * b + a * b",
		"negation":       "(n => ~n)(3)",
		"string_concat":  "x := 'ab' + 'cd', y := x, y.0 := 'z', [x, y]",
		"string_mutate":  "s := 'ab', t := s + 'cd', t.0 := 'x', [s, t]",
		"string_compare": "x := 'ab', a := x < 'b', x.0 := 'z', b := x < 'b', [a, b]",
		"inline_twice":   "f := (a, b) => a + b, f(1, 2) + f(3, 4)",
		"inline_output":  "sq := n => n * n, out(string(sq(7)))",
		"inline_missing": "f := (a, b) => [a, b], f(1)",
		"inline_comp":    "pair := (a, b) => [a, b], p := pair(1, 2), p.1",
		"duplicate_arms": "x := 2, x :: {1 -> 'one', 2 -> 'two', 2 -> 'dup', _ -> 'other'}",
		"tail_loop":      "loop := (n, acc) => n :: {0 -> acc, _ -> loop(n - 1, acc + n)}, loop(10000, 0)",
		"counter": `make := () => (
	state := {n: 0}
	() => state.n := state.n + 1
)
c := make()
c(), c()
c()`,
		"booleans":     "~true & false | true ^ false",
		"division":     "1 / 0",
		"bad_operands": "f := x => x + 1, f('a')",
		"no_match":     "3 :: {1 -> 'a', 2 -> 'b'}",
		"shadowing":    "x := 1, f := () => (x := 2, x), [f(), x]",
	}

	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			plain := run(t, compile(t, src))
			optimized := run(t, optimize(t, compile(t, src), config.DefaultPasses...))
			assert.Equal(t, plain, optimized)
		})
	}
}

func TestOptimizeLeavesInputUntouched(t *testing.T) {
	block := compile(t, "f := (a, b) => a * b - a * b, f(2, 3) + 1 + 2")
	before := vm.Disassemble(block)

	out := optimize(t, block, config.DefaultPasses...)

	assert.Equal(t, before, vm.Disassemble(block))
	assert.NotSame(t, block, out)
}

func TestConstPropFoldsConstants(t *testing.T) {
	block := optimize(t, compile(t, "x := 1 + 2 * 3, ~x"), config.PassConstProp, config.PassDCE)

	assert.Zero(t, countOps(block, vm.OP_ADD))
	assert.Zero(t, countOps(block, vm.OP_MUL))
	assert.Zero(t, countOps(block, vm.OP_NEG))
	assert.Equal(t, outcome{result: "-7"}, run(t, block))
}

func TestConstPropKeepsFailingOperations(t *testing.T) {
	block := optimize(t, compile(t, "1 / 0"), config.PassConstProp, config.PassDCE)

	assert.Equal(t, 1, countOps(block, vm.OP_DIV))
	assert.Equal(t, "division by zero", run(t, block).err)
}

func TestConstPropDoesNotCopyStringMoves(t *testing.T) {
	block := optimize(t, compile(t, "x := 'a', y := x, y.0 := 'b', x"), config.PassConstProp)

	// both bindings must keep sharing the buffer loaded once
	assert.Equal(t, outcome{result: "'b'"}, run(t, block))
}

func TestCSESharesIdenticalOperations(t *testing.T) {
	block := optimize(t, compile(t, "f := (a, b) => a * b - a * b, f(3, 4)"), config.PassCSE, config.PassDCE)

	assert.Equal(t, 1, countOps(block, vm.OP_MUL))
	assert.Equal(t, outcome{result: "0"}, run(t, block))
}

func TestCSERespectsMutation(t *testing.T) {
	src := "x := 'ab', a := x < 'b', x.0 := 'z', b := x < 'b', [a, b]"
	block := optimize(t, compile(t, src), config.PassCSE, config.PassDCE)

	assert.Equal(t, 2, countOps(block, vm.OP_LSS))
	assert.Equal(t, outcome{result: "{0: true, 1: false}"}, run(t, block))
}

func TestDCERemovesShadowedArms(t *testing.T) {
	block := optimize(t, compile(t, "x := 1, x :: {1 -> 'a', 1 -> 'b', _ -> 'c'}"), config.PassDCE)

	assert.Equal(t, 1, countOps(block, vm.OP_CONST_IF_EQ))
	assert.Equal(t, outcome{result: "'a'"}, run(t, block))
}

func TestDCERemovesDeadDefinitions(t *testing.T) {
	original := compile(t, "a := 1, b := 2, b")
	block := optimize(t, original, config.PassDCE)

	assert.Less(t, block.CountInstructions(), original.CountInstructions())
	assert.Equal(t, outcome{result: "2"}, run(t, block))
}

func TestDCEKeepsCells(t *testing.T) {
	block := optimize(t, compile(t, "x := 1, f := () => x, 2"), config.PassDCE)

	assert.Equal(t, 1, countOps(block, vm.OP_MAKE_CELL))
}

func TestInlineSmallFunctions(t *testing.T) {
	block := optimize(t, compile(t, "double := x => x * 2, double(21)"), config.PassInline, config.PassConstProp, config.PassDCE)

	assert.Zero(t, countOps(block, vm.OP_CALL))
	assert.Equal(t, outcome{result: "42"}, run(t, block))
}

func TestInlineSkipsCapturingFunctions(t *testing.T) {
	block := optimize(t, compile(t, "n := 5, add := x => x + n, add(1)"), config.PassInline)

	assert.Equal(t, 1, countOps(block, vm.OP_CALL))
	assert.Equal(t, outcome{result: "6"}, run(t, block))
}

func TestInlineThreshold(t *testing.T) {
	opts := config.OptimizerOptions{Passes: []string{config.PassInline}, InlineThreshold: 2}
	o, err := New(opts, zap.NewNop())
	require.NoError(t, err)

	block := o.Optimize(compile(t, "f := (a, b) => a * b + a, f(2, 3)"))

	assert.Equal(t, 1, countOps(block, vm.OP_CALL))
}

func TestTailCallPass(t *testing.T) {
	block := optimize(t, compile(t, "f := n => n :: {0 -> 'done', _ -> f(n - 1)}, f(100000)"), config.PassTailCall)

	// the recursive call and the final call of the program
	assert.Equal(t, 2, countOps(block, vm.OP_TAIL_CALL))
	block.Walk(func(b *vm.Block) {
		for _, ins := range b.Code {
			assert.False(t, ins.Op == vm.OP_CALL && ins.Tail, "tail call left in %s", b.Name)
		}
	})

	machine := vm.New()
	machine.SetMaxFrames(10)
	res, err := machine.Run(block)
	require.NoError(t, err)
	assert.Equal(t, "'done'", res.Inspect())
}

type corrupting struct{}

func (corrupting) Name() string { return "corrupting" }

func (corrupting) Run(b *vm.Block) bool {
	b.Ret = b.Slots + 10
	return true
}

type panicking struct{}

func (panicking) Name() string { return "panicking" }

func (panicking) Run(b *vm.Block) bool {
	violation("panicking", b, "refusing")
	return false
}

func TestDeclinedPassesLeaveTheTree(t *testing.T) {
	for _, p := range []Pass{corrupting{}, panicking{}} {
		t.Run(p.Name(), func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			o := &Optimizer{passes: []Pass{p}, maxIterations: 3, logger: zap.New(core)}

			block := compile(t, "1 + 2")
			out := o.Optimize(block)

			assert.Same(t, block, out)
			// a declined pass counts as no change, so the runner stops
			assert.Equal(t, 1, logs.FilterMessage("pass declined").Len())
		})
	}
}

func TestNewRejectsUnknownPass(t *testing.T) {
	_, err := New(config.OptimizerOptions{Passes: []string{"constprop", "loop-unroll"}}, nil)
	assert.EqualError(t, err, `unknown optimizer pass "loop-unroll"`)
}

func TestNewUsesDefaultPasses(t *testing.T) {
	o, err := New(config.OptimizerOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPasses, o.Passes())
}
