package compiler

import (
	"fmt"

	"pwlp/pkg/vm"
)

// CompileError is a semantic error found during code generation: an unknown
// command, a wrong argument count, or a read of a variable that was never
// assigned.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// builtin describes a host command that compiles to a single USER opcode.
// set_pixel is handled separately because of its two forms and the
// compile-time argument packing.
type builtin struct {
	op      byte // USER postfix
	arity   int
	returns bool
}

var builtins = map[string]builtin{
	"get_length":       {vm.UserGetLength, 0, true},
	"get_wall_time":    {vm.UserGetWallTime, 0, true},
	"get_precise_time": {vm.UserGetPreciseTime, 0, true},
	"get_pixel":        {vm.UserGetPixel, 1, true},
	"random":           {vm.UserRandomInt, 1, true},
	"blit":             {vm.UserBlit, 0, false},
}

// intrinsicArity lists the compile-time macros. They expand into shift/mask
// arithmetic and never reach the VM as opcodes.
var intrinsicArity = map[string]int{
	"rgb":   3,
	"irgb":  4,
	"red":   1,
	"green": 1,
	"blue":  1,
	"index": 1,
}

type codegen struct {
	b  *vm.Builder
	st *SymbolTable
}

// Generate walks the AST and emits a program. The symbol table is filled in
// as assignments are encountered; callers can inspect it afterwards for the
// name-to-slot mapping.
func Generate(stmts []Stmt, st *SymbolTable) (*vm.Program, error) {
	g := &codegen{b: vm.NewBuilder(), st: st}
	for _, s := range stmts {
		if err := g.genStmt(s); err != nil {
			return nil, err
		}
	}
	return g.b.Build(), nil
}

func (g *codegen) genStmt(s Stmt) error {
	switch s := s.(type) {
	case *Assignment:
		// The expression is generated before the slot is allocated so that
		// `i = i + 1` with no prior assignment to i is caught as an error.
		if err := g.genExpr(s.Expr); err != nil {
			return err
		}
		g.b.Store(g.st.Define(s.Name))
		return nil

	case *If:
		if err := g.genExpr(s.Cond); err != nil {
			return err
		}
		end := g.b.JmpForward(vm.PrefixJz)
		for _, stmt := range s.Body {
			if err := g.genStmt(stmt); err != nil {
				return err
			}
		}
		g.b.Patch(end)
		return nil

	case *Loop:
		top := g.b.Here()
		for _, stmt := range s.Body {
			if err := g.genStmt(stmt); err != nil {
				return err
			}
		}
		g.b.Jmp(top)
		return nil

	case *For:
		if err := g.genExpr(s.Bound); err != nil {
			return err
		}
		slot := g.st.Define(s.Var)
		g.b.Store(slot)
		top := g.b.Here()
		g.b.Load(slot)
		end := g.b.JmpForward(vm.PrefixJz)
		for _, stmt := range s.Body {
			if err := g.genStmt(stmt); err != nil {
				return err
			}
		}
		g.b.Load(slot)
		g.b.Unary(vm.UnaryDec)
		g.b.Store(slot)
		g.b.Jmp(top)
		g.b.Patch(end)
		return nil

	case *Yield:
		g.b.Special(vm.SpecialYield)
		return nil

	case *ExprStmt:
		returns, err := g.genCall(s.Call)
		if err != nil {
			return err
		}
		if returns {
			g.b.Pop(1)
		}
		return nil
	}
	return fmt.Errorf("unhandled statement %T", s)
}

func (g *codegen) genExpr(e Expr) error {
	if v, ok := fold(e); ok {
		g.b.Push(v)
		return nil
	}

	switch e := e.(type) {
	case *VarRef:
		slot, ok := g.st.Lookup(e.Name)
		if !ok {
			return &CompileError{Line: e.Line,
				Message: fmt.Sprintf("variable %q read before any assignment", e.Name)}
		}
		g.b.Load(slot)
		return nil

	case *UnaryExpr:
		if err := g.genExpr(e.Right); err != nil {
			return err
		}
		switch e.Op {
		case NOT:
			g.b.Unary(vm.UnaryNot)
		case MINUS:
			g.b.Unary(vm.UnaryNeg)
		default:
			return fmt.Errorf("unhandled unary operator %s", e.Op)
		}
		return nil

	case *BinaryExpr:
		if err := g.genExpr(e.Left); err != nil {
			return err
		}
		if err := g.genExpr(e.Right); err != nil {
			return err
		}
		op, err := binaryOpcode(e.Op)
		if err != nil {
			return err
		}
		g.b.Binary(op)
		return nil

	case *Call:
		returns, err := g.genCall(e)
		if err != nil {
			return err
		}
		if !returns {
			return &CompileError{Line: e.Line,
				Message: fmt.Sprintf("%s() does not produce a value", e.Name)}
		}
		return nil
	}
	return fmt.Errorf("unhandled expression %T", e)
}

// genCall emits a builtin command, an intrinsic expansion, or set_pixel.
// It reports whether a value was left on the stack.
func (g *codegen) genCall(c *Call) (bool, error) {
	if arity, ok := intrinsicArity[c.Name]; ok {
		if len(c.Args) != arity {
			return false, g.arityError(c, arity)
		}
		return true, g.genIntrinsic(c)
	}

	if c.Name == "set_pixel" {
		return false, g.genSetPixel(c)
	}
	if c.Name == "dump" {
		if len(c.Args) != 0 {
			return false, g.arityError(c, 0)
		}
		g.b.Special(vm.SpecialDump)
		return false, nil
	}

	bi, ok := builtins[c.Name]
	if !ok {
		return false, &CompileError{Line: c.Line,
			Message: fmt.Sprintf("unknown command %q", c.Name)}
	}
	if len(c.Args) != bi.arity {
		return false, g.arityError(c, bi.arity)
	}
	for _, arg := range c.Args {
		if err := g.genExpr(arg); err != nil {
			return false, err
		}
	}
	g.b.User(bi.op)
	return bi.returns, nil
}

func (g *codegen) arityError(c *Call, want int) error {
	return &CompileError{Line: c.Line,
		Message: fmt.Sprintf("%s() takes %d argument(s), got %d", c.Name, want, len(c.Args))}
}

// genIntrinsic expands rgb/irgb/red/green/blue/index into byte-lane
// arithmetic. Arity has already been checked. Fully constant calls in value
// position are folded before genExpr reaches here.
func (g *codegen) genIntrinsic(c *Call) error {
	switch c.Name {
	case "rgb":
		return g.genPacked(nil, c.Args[0], c.Args[1], c.Args[2])
	case "irgb":
		return g.genPacked(c.Args[0], c.Args[1], c.Args[2], c.Args[3])
	case "index":
		return g.genExtractLane(c.Args[0], 0)
	case "red":
		return g.genExtractLane(c.Args[0], 1)
	case "green":
		return g.genExtractLane(c.Args[0], 2)
	case "blue":
		return g.genExtractLane(c.Args[0], 3)
	}
	return fmt.Errorf("unhandled intrinsic %q", c.Name)
}

// genPacked builds `idx | r<<8 | g<<16 | b<<24` on the stack. idx may be nil
// for the three-argument rgb form, which leaves lane 0 clear.
func (g *codegen) genPacked(idx, r, gr, b Expr) error {
	lanes := []struct {
		arg  Expr
		lane int
	}{{idx, 0}, {r, 1}, {gr, 2}, {b, 3}}

	emitted := 0
	for _, l := range lanes {
		if l.arg == nil {
			continue
		}
		if err := g.genLane(l.arg, l.lane); err != nil {
			return err
		}
		emitted++
		if emitted > 1 {
			g.b.Binary(vm.BinaryOr)
		}
	}
	return nil
}

// genLane pushes arg masked to one byte and shifted into the given byte lane.
func (g *codegen) genLane(arg Expr, lane int) error {
	if v, ok := fold(arg); ok {
		g.b.Push((v & 0xFF) << (8 * lane))
		return nil
	}
	if err := g.genExpr(arg); err != nil {
		return err
	}
	g.b.Push(0xFF)
	g.b.Binary(vm.BinaryAnd)
	for i := 0; i < lane; i++ {
		g.b.Unary(vm.UnaryShl8)
	}
	return nil
}

// genExtractLane pushes byte lane n of a packed color.
func (g *codegen) genExtractLane(arg Expr, lane int) error {
	if err := g.genExpr(arg); err != nil {
		return err
	}
	for i := 0; i < lane; i++ {
		g.b.Unary(vm.UnaryShr8)
	}
	g.b.Push(0xFF)
	g.b.Binary(vm.BinaryAnd)
	return nil
}

// genSetPixel compiles both set_pixel forms down to one SET_PIXEL that pops
// a single packed word.
func (g *codegen) genSetPixel(c *Call) error {
	switch len(c.Args) {
	case 2: // set_pixel(index, packed_color)
		if i, ok := fold(c.Args[0]); ok {
			if col, ok2 := fold(c.Args[1]); ok2 {
				g.b.Push((i & 0xFF) | col)
				g.b.User(vm.UserSetPixel)
				return nil
			}
		}
		if err := g.genLane(c.Args[0], 0); err != nil {
			return err
		}
		if err := g.genExpr(c.Args[1]); err != nil {
			return err
		}
		g.b.Binary(vm.BinaryOr)
		g.b.User(vm.UserSetPixel)
		return nil

	case 4: // set_pixel(index, r, g, b)
		if v, ok := foldPacked(c.Args[0], c.Args[1], c.Args[2], c.Args[3]); ok {
			g.b.Push(v)
			g.b.User(vm.UserSetPixel)
			return nil
		}
		if err := g.genPacked(c.Args[0], c.Args[1], c.Args[2], c.Args[3]); err != nil {
			return err
		}
		g.b.User(vm.UserSetPixel)
		return nil
	}
	return &CompileError{Line: c.Line,
		Message: fmt.Sprintf("set_pixel() takes 2 or 4 arguments, got %d", len(c.Args))}
}

func binaryOpcode(op TokenType) (byte, error) {
	switch op {
	case PLUS:
		return vm.BinaryAdd, nil
	case MINUS:
		return vm.BinarySub, nil
	case STAR:
		return vm.BinaryMul, nil
	case SLASH:
		return vm.BinaryDiv, nil
	case PERCENT:
		return vm.BinaryMod, nil
	case AND:
		return vm.BinaryAnd, nil
	case PIPE:
		return vm.BinaryOr, nil
	case CARET:
		return vm.BinaryXor, nil
	case EQUALS:
		return vm.BinaryEq, nil
	case NOT_EQ:
		return vm.BinaryNeq, nil
	case LESS:
		return vm.BinaryLt, nil
	case GREATER:
		return vm.BinaryGt, nil
	case LESS_EQ:
		return vm.BinaryLte, nil
	case GREATER_EQ:
		return vm.BinaryGte, nil
	}
	return 0, fmt.Errorf("unhandled binary operator %s", op)
}

// fold evaluates e at compile time when every leaf is a constant. Division
// and modulo by a constant zero are deliberately not folded; they are left in
// the program to fault at run time.
func fold(e Expr) (uint32, bool) {
	switch e := e.(type) {
	case *Literal:
		return e.Value, true

	case *UnaryExpr:
		v, ok := fold(e.Right)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case NOT:
			if v == 0 {
				return 1, true
			}
			return 0, true
		case MINUS:
			return -v, true
		}
		return 0, false

	case *BinaryExpr:
		l, ok := fold(e.Left)
		if !ok {
			return 0, false
		}
		r, ok := fold(e.Right)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case PLUS:
			return l + r, true
		case MINUS:
			return l - r, true
		case STAR:
			return l * r, true
		case SLASH:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case PERCENT:
			if r == 0 {
				return 0, false
			}
			return l % r, true
		case AND:
			return l & r, true
		case PIPE:
			return l | r, true
		case CARET:
			return l ^ r, true
		case EQUALS:
			return foldBool(l == r), true
		case NOT_EQ:
			return foldBool(l != r), true
		case LESS:
			return foldBool(l < r), true
		case GREATER:
			return foldBool(l > r), true
		case LESS_EQ:
			return foldBool(l <= r), true
		case GREATER_EQ:
			return foldBool(l >= r), true
		}
		return 0, false

	case *Call:
		arity, ok := intrinsicArity[e.Name]
		if !ok || len(e.Args) != arity {
			return 0, false
		}
		args := make([]uint32, len(e.Args))
		for i, a := range e.Args {
			v, ok := fold(a)
			if !ok {
				return 0, false
			}
			args[i] = v
		}
		switch e.Name {
		case "rgb":
			return (args[0]&0xFF)<<8 | (args[1]&0xFF)<<16 | (args[2]&0xFF)<<24, true
		case "irgb":
			return args[0]&0xFF | (args[1]&0xFF)<<8 | (args[2]&0xFF)<<16 | (args[3]&0xFF)<<24, true
		case "index":
			return args[0] & 0xFF, true
		case "red":
			return (args[0] >> 8) & 0xFF, true
		case "green":
			return (args[0] >> 16) & 0xFF, true
		case "blue":
			return (args[0] >> 24) & 0xFF, true
		}
		return 0, false
	}
	return 0, false
}

// foldPacked folds the four set_pixel arguments into one packed word when
// all of them are constant.
func foldPacked(idx, r, g, b Expr) (uint32, bool) {
	iv, ok := fold(idx)
	if !ok {
		return 0, false
	}
	rv, ok := fold(r)
	if !ok {
		return 0, false
	}
	gv, ok := fold(g)
	if !ok {
		return 0, false
	}
	bv, ok := fold(b)
	if !ok {
		return 0, false
	}
	return iv&0xFF | (rv&0xFF)<<8 | (gv&0xFF)<<16 | (bv&0xFF)<<24, true
}

func foldBool(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
