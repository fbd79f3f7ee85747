package vm

import (
	"github.com/funvibe/inkvm/internal/ast"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/token"
)

var infixOpcodes = map[string]Opcode{
	"+": OP_ADD,
	"-": OP_SUB,
	"*": OP_MUL,
	"/": OP_DIV,
	"%": OP_MOD,
	">": OP_GTR,
	"<": OP_LSS,
	"=": OP_EQL,
	"&": OP_AND,
	"|": OP_OR,
	"^": OP_XOR,
}

// compileExpr emits code for expr and returns the register holding its
// value. tail is set when the value is directly the block's result.
func (c *Compiler) compileExpr(expr ast.Expression, tail bool) int {
	switch n := expr.(type) {
	case *ast.NumberLiteral:
		return c.loadConst(NumberVal(n.Value), n.Token)
	case *ast.StringLiteral:
		return c.loadConst(StringVal(n.Value), n.Token)
	case *ast.BooleanLiteral:
		return c.loadConst(BoolVal(n.Value), n.Token)
	case *ast.EmptyLiteral:
		return c.loadConst(EmptyVal(), n.Token)

	case *ast.Identifier:
		return c.compileIdentifier(n)

	case *ast.PrefixExpression:
		right := c.compileExpr(n.Right, false)
		dest := c.allocReg()
		c.emit(Instruction{Op: OP_NEG, Dest: dest, A: right}, n.Token)
		return dest

	case *ast.InfixExpression:
		return c.compileInfix(n)

	case *ast.DefineExpression:
		return c.compileDefine(n)

	case *ast.AccessExpression:
		left := c.compileExpr(n.Left, false)
		key := c.compileExpr(n.Key, false)
		dest := c.allocReg()
		c.emit(Instruction{Op: OP_GET_ELEM, Dest: dest, A: left, B: key}, n.Token)
		return dest

	case *ast.CallExpression:
		return c.compileCall(n, tail)

	case *ast.MatchExpression:
		return c.compileMatch(n, tail)

	case *ast.ExpressionList:
		result := -1
		for i, e := range n.Expressions {
			result = c.compileExpr(e, tail && i == len(n.Expressions)-1)
		}
		if result < 0 {
			return c.loadConst(EmptyVal(), n.Token)
		}
		return result

	case *ast.ListLiteral:
		dest := c.allocReg()
		c.emit(Instruction{Op: OP_MAKE_COMP, Dest: dest}, n.Token)
		for i, el := range n.Elements {
			val := c.compileExpr(el, false)
			key := c.loadConst(NumberVal(float64(i)), el.GetToken())
			c.emit(Instruction{Op: OP_SET_ELEM, A: dest, B: key, C: val}, el.GetToken())
		}
		return dest

	case *ast.ObjectLiteral:
		dest := c.allocReg()
		c.emit(Instruction{Op: OP_MAKE_COMP, Dest: dest}, n.Token)
		for _, entry := range n.Entries {
			key := c.compileExpr(entry.Key, false)
			val := c.compileExpr(entry.Value, false)
			c.emit(Instruction{Op: OP_SET_ELEM, A: dest, B: key, C: val}, entry.Key.GetToken())
		}
		return dest

	case *ast.FunctionLiteral:
		return c.compileFunction(n)
	}

	c.addError(diagnostics.ErrC002, expr.GetToken(), "cannot compile %T", expr)
	return c.loadConst(EmptyVal(), expr.GetToken())
}

func (c *Compiler) loadConst(v Value, tok token.Token) int {
	dest := c.allocReg()
	c.emit(Instruction{Op: OP_LOAD_CONST, Dest: dest, K: c.addConst(v)}, tok)
	return dest
}

func (c *Compiler) compileIdentifier(n *ast.Identifier) int {
	if n.Binding != nil {
		return c.loadBinding(n.Binding, n.Token)
	}
	if n.Global {
		if id, ok := c.natives.Lookup(n.Value); ok {
			return c.loadConst(NativeVal(id), n.Token)
		}
	}
	c.addError(diagnostics.ErrA001, n.Token, "undefined name %q", n.Value)
	return c.loadConst(EmptyVal(), n.Token)
}

func (c *Compiler) compileInfix(n *ast.InfixExpression) int {
	op, ok := infixOpcodes[n.Operator]
	if !ok {
		c.addError(diagnostics.ErrC002, n.Token, "unknown operator %s", n.Operator)
		return c.loadConst(EmptyVal(), n.Token)
	}
	left := c.compileExpr(n.Left, false)
	right := c.compileExpr(n.Right, false)
	dest := c.allocReg()
	c.emit(Instruction{Op: op, Dest: dest, A: left, B: right}, n.Token)
	return dest
}

// compileDefine lowers `target := value`. The value is computed first;
// its register is the result of the whole expression.
func (c *Compiler) compileDefine(n *ast.DefineExpression) int {
	val := c.compileExpr(n.Value, false)

	switch target := n.Target.(type) {
	case *ast.Identifier:
		if target.Binding == nil {
			c.addError(diagnostics.ErrA002, n.Token, "invalid assignment target %s", target.Value)
			return val
		}
		c.storeBinding(target.Binding, val, n.Token)

	case *ast.EmptyLiteral:
		// `_ := e` discards

	case *ast.AccessExpression:
		left := c.compileExpr(target.Left, false)
		key := c.compileExpr(target.Key, false)
		c.emit(Instruction{Op: OP_SET_ELEM, A: left, B: key, C: val}, n.Token)

	default:
		c.addError(diagnostics.ErrA002, n.Token, "invalid assignment target %s", n.Target.String())
	}
	return val
}

func (c *Compiler) compileCall(n *ast.CallExpression, tail bool) int {
	if fn := staticCallee(n.Function); fn != nil && len(n.Arguments) > len(fn.Parameters) {
		name := fn.Name
		if name == "" {
			name = "function"
		}
		c.addError(diagnostics.ErrC001, n.Token, "%s takes %d argument(s), called with %d",
			name, len(fn.Parameters), len(n.Arguments))
	}

	callee := c.compileExpr(n.Function, false)
	args := make([]int, len(n.Arguments))
	for i, arg := range n.Arguments {
		args[i] = c.compileExpr(arg, false)
	}
	dest := c.allocReg()
	c.emit(Instruction{Op: OP_CALL, Dest: dest, A: callee, Args: args, Tail: tail}, n.Token)
	return dest
}

// staticCallee returns the function literal a call certainly invokes, or
// nil when that is not known at compile time.
func staticCallee(expr ast.Expression) *ast.FunctionLiteral {
	switch e := expr.(type) {
	case *ast.FunctionLiteral:
		return e
	case *ast.ExpressionList:
		if len(e.Expressions) == 1 {
			return staticCallee(e.Expressions[0])
		}
	case *ast.Identifier:
		if b := e.Binding; b != nil && b.Defs == 1 && b.Function != nil {
			return b.Function
		}
	}
	return nil
}

// compileMatch lowers a match into a chain of conditional arm entries that
// all branch to the end of the chain. Patterns are evaluated in order, each
// one just before its test.
func (c *Compiler) compileMatch(n *ast.MatchExpression, tail bool) int {
	subject := c.compileExpr(n.Subject, false)
	dest := c.allocReg()
	var exits []int
	exhaustive := false

	for _, arm := range n.Arms {
		tok := arm.Token
		if arm.IsWildcard() {
			if arm.Inline() {
				c.emit(Instruction{Op: OP_LOAD_CONST, Dest: dest, K: c.addConst(literalValue(arm.Body))}, tok)
				exits = append(exits, c.emit(Instruction{Op: OP_JUMP}, tok))
			} else {
				k := c.compileArm(arm)
				exits = append(exits, c.emit(Instruction{Op: OP_CALL_ARM, Dest: dest, K: k, Tail: tail}, tok))
			}
			exhaustive = true
			break
		}

		pattern := c.compileExpr(arm.Pattern, false)
		if arm.Inline() {
			k := c.addConst(literalValue(arm.Body))
			exits = append(exits, c.emit(Instruction{Op: OP_CONST_IF_EQ, Dest: dest, A: subject, B: pattern, K: k}, tok))
		} else {
			k := c.compileArm(arm)
			exits = append(exits, c.emit(Instruction{Op: OP_CALL_IF_EQ, Dest: dest, A: subject, B: pattern, K: k, Tail: tail}, tok))
		}
	}

	if !exhaustive {
		c.emit(Instruction{Op: OP_MATCH_FAIL, A: subject}, n.Token)
	}
	c.patchTargets(exits)
	return dest
}

// compileArm compiles a non-literal arm body into its own block and returns
// its constant index.
func (c *Compiler) compileArm(arm *ast.MatchArm) int {
	child := c.newChild(arm)
	body := []ast.Expression{arm.Body}
	if list, ok := arm.Body.(*ast.ExpressionList); ok && len(list.Expressions) > 0 {
		body = list.Expressions
	}
	child.compileUnit(c.block.Name+"/arm", nil, body, arm.Token)
	return c.block.AddBlockConst(child.block)
}

func (c *Compiler) compileFunction(fn *ast.FunctionLiteral) int {
	child := c.newChild(fn)
	name := fn.Name
	if name == "" {
		name = "<anonymous>"
	}
	child.compileUnit(name, fn.Parameters, []ast.Expression{fn.Body}, fn.Token)
	k := c.block.AddBlockConst(child.block)
	dest := c.allocReg()
	c.emit(Instruction{Op: OP_CLOSURE, Dest: dest, K: k}, fn.Token)
	return dest
}

func literalValue(expr ast.Expression) Value {
	switch n := expr.(type) {
	case *ast.NumberLiteral:
		return NumberVal(n.Value)
	case *ast.StringLiteral:
		return StringVal(n.Value)
	case *ast.BooleanLiteral:
		return BoolVal(n.Value)
	}
	return EmptyVal()
}
