package parser_test

import (
	"strings"
	"testing"

	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/lexer"
	"github.com/funvibe/inkvm/internal/parser"
	"github.com/funvibe/inkvm/internal/pipeline"
)

// parseWithErrors runs the lexer+parser and returns the program and all
// diagnostic errors.
func parseWithErrors(input string) (*ast.Program, []*diagnostics.DiagnosticError) {
	ctx := pipeline.NewPipelineContext(input)
	ctx = (&lexer.LexerProcessor{}).Process(ctx)
	ctx = (&parser.ParserProcessor{}).Process(ctx)
	return ctx.AstRoot, ctx.Errors
}

func mustParse(t *testing.T, input string) *ast.Program {
	t.Helper()
	program, errs := parseWithErrors(input)
	if len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		t.Fatalf("parsing failed with errors:\n%s\ninput: %s", strings.Join(msgs, "\n"), input)
	}
	return program
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"number", "42", "42"},
		{"float", "3.25", "3.25"},
		{"string", "'hi'", "'hi'"},
		{"empty", "_", "()"},
		{"empty_group", "()", "()"},
		{"precedence_sum_product", "1 + 2 * 3", "(1 + (2 * 3))"},
		{"precedence_mod_over_product", "a * b % c", "(a * (b % c))"},
		{"left_assoc", "1 - 2 - 3", "((1 - 2) - 3)"},
		{"logic_precedence", "a | b ^ c & d", "(a | (b ^ (c & d)))"},
		{"compare_below_sum", "a + 1 > b", "((a + 1) > b)"},
		{"negation", "~a + 1", "(~a + 1)"},
		{"negation_of_call", "~f(x)", "~f(x)"},
		{"define", "x := 1 + 2", "x := (1 + 2)"},
		{"define_right_assoc", "a := b := 3", "a := b := 3"},
		{"access_ident", "obj.name", "obj.name"},
		{"access_number_chain", "m.0.1", "m.(0).(1)"},
		{"access_expr", "m.(k + 1)", "m.(((k + 1)))"},
		{"access_assign", "c.k := 2", "c.k := 2"},
		{"call", "f(1, 2)", "f(1, 2)"},
		{"curried_call", "f(a)(b)", "f(a)(b)"},
		{"call_no_args", "f()", "f()"},
		{"fn_single_param", "x => x + 1", "(x) => (x + 1)"},
		{"fn_params", "(a, b) => a * b", "(a, b) => (a * b)"},
		{"fn_no_params", "() => 1", "() => 1"},
		{"fn_ignored_param", "(_, b) => b", "(_, b) => b"},
		{"list", "[1, 2, 3]", "[1, 2, 3]"},
		{"list_newlines", "[\n  1\n  2\n]", "[1, 2]"},
		{"object", "{a: 1, 'b': 2, 3: c}", "{'a': 1, 'b': 2, 3: c}"},
		{"match", "n :: {1 -> 'one', _ -> 'other'}", "n :: {1 -> 'one', _ -> 'other'}"},
		{"match_binary_subject", "n % 2 :: {0 -> true, _ -> false}", "(n % 2) :: {0 -> true, _ -> false}"},
		{"match_in_define", "r := x :: {_ -> 1}", "r := x :: {_ -> 1}"},
		{"expression_list", "(a := 1, a + 1)", "(a := 1, (a + 1))"},
		{"comment", "` a comment ` 1 `` trailing", "1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			program := mustParse(t, tc.input)
			if len(program.Expressions) != 1 {
				t.Fatalf("expected 1 expression, got %d: %s", len(program.Expressions), program.String())
			}
			if got := program.Expressions[0].String(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestParser_ProgramSeparators(t *testing.T) {
	program := mustParse(t, "a := 1\nb := 2, c := 3\n\n\na + b + c\n")
	if len(program.Expressions) != 4 {
		t.Fatalf("expected 4 expressions, got %d", len(program.Expressions))
	}
}

func TestParser_MultilineMatch(t *testing.T) {
	input := `sum := max => (sub := (acc, i) => i :: {
	max -> acc + i
	_ -> sub(acc + i, i + 1)
})(0, 1)`
	program := mustParse(t, input)
	def, ok := program.Expressions[0].(*ast.DefineExpression)
	if !ok {
		t.Fatalf("expected DefineExpression, got %T", program.Expressions[0])
	}
	fn, ok := def.Value.(*ast.FunctionLiteral)
	if !ok {
		t.Fatalf("expected FunctionLiteral, got %T", def.Value)
	}
	if fn.Name != "sum" {
		t.Errorf("expected function name sum, got %q", fn.Name)
	}
	call, ok := fn.Body.(*ast.CallExpression)
	if !ok {
		t.Fatalf("expected CallExpression body, got %T", fn.Body)
	}
	if len(call.Arguments) != 2 {
		t.Errorf("expected 2 arguments, got %d", len(call.Arguments))
	}
}

func TestParser_WildcardArm(t *testing.T) {
	program := mustParse(t, "x :: {2 -> 'A', 2 -> 'B', _ -> 'C'}")
	match := program.Expressions[0].(*ast.MatchExpression)
	if len(match.Arms) != 3 {
		t.Fatalf("expected 3 arms, got %d", len(match.Arms))
	}
	if match.Arms[0].IsWildcard() || !match.Arms[2].IsWildcard() {
		t.Errorf("only the last arm should be a wildcard")
	}
	if !match.Arms[0].Inline() {
		t.Errorf("literal-bodied arm should be inline")
	}
}

func TestParser_Positions(t *testing.T) {
	program := mustParse(t, "a := 1\n  b := a + 2")
	tok := program.Expressions[1].GetToken()
	if tok.Line != 2 || tok.Column != 5 {
		t.Errorf("expected define at 2:5, got %d:%d", tok.Line, tok.Column)
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  diagnostics.ErrorCode
	}{
		{"unclosed_paren", "(1, 2", diagnostics.ErrP002},
		{"unclosed_list", "[1, 2", diagnostics.ErrP002},
		{"stray_close", ")", diagnostics.ErrP001},
		{"bad_param", "(1, b) => b", diagnostics.ErrP003},
		{"missing_arrow", "x :: {1 2}", diagnostics.ErrP001},
		{"missing_colon", "{a 1}", diagnostics.ErrP001},
		{"trailing_tokens", "1 2", diagnostics.ErrP001},
		{"bad_access", "a.+", diagnostics.ErrP001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := parseWithErrors(tt.input)
			if len(errs) == 0 {
				t.Fatalf("expected error %s, got none", tt.code)
			}
			found := false
			for _, e := range errs {
				if e.Code == tt.code {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error %s, got %v", tt.code, errs)
			}
		})
	}
}

func TestParser_RecoversAfterError(t *testing.T) {
	program, errs := parseWithErrors("a := )\nb := 2\nc := 3")
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if len(program.Expressions) != 2 {
		t.Errorf("expected parser to resume after the error, got %d expressions", len(program.Expressions))
	}
}
