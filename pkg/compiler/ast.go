package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result on top of the stack.
type Expr interface {
	exprNode()
	String() string
}

// Literal is a compile-time integer constant.
//
//	i = 10;
//	    ^^  Literal{Value: 10}
type Literal struct {
	Value uint32
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return fmt.Sprintf("%d", l.Value) }

// VarRef is a read of a named variable.
//
//	i = i - 1;
//	    ^  VarRef{Name: "i"}
type VarRef struct {
	Name string
	Line int
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// BinaryExpr represents a binary operation: Left Op Right.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr represents Op Right (logical !e or arithmetic -e).
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// Call represents name(args). The name is resolved during code generation to
// either a builtin host command or a compile-time intrinsic.
type Call struct {
	Name string
	Args []Expr
	Line int
}

func (*Call) exprNode() {}
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

//  Statement nodes

// Stmt is implemented by every statement form. Statements leave the
// evaluation stack at the height they found it.
type Stmt interface {
	stmtNode()
	String() string
}

// Assignment stores an expression into a named variable: name = expr;
type Assignment struct {
	Name string
	Expr Expr
	Line int
}

func (*Assignment) stmtNode()        {}
func (a *Assignment) String() string { return fmt.Sprintf("%s = %s;", a.Name, a.Expr) }

// If is the single-branch conditional: if(cond){ body }.
type If struct {
	Cond Expr
	Body []Stmt
}

func (*If) stmtNode()        {}
func (i *If) String() string { return fmt.Sprintf("if(%s){...}", i.Cond) }

// Loop is the unconditional infinite loop: loop{ body }.
type Loop struct {
	Body []Stmt
}

func (*Loop) stmtNode()        {}
func (l *Loop) String() string { return "loop{...}" }

// For counts its variable down from the bound to 1 inclusive:
// for(v=e){ body } runs body e times with v = e, e-1, ..., 1.
type For struct {
	Var   string
	Bound Expr
	Body  []Stmt
	Line  int
}

func (*For) stmtNode()        {}
func (f *For) String() string { return fmt.Sprintf("for(%s=%s){...}", f.Var, f.Bound) }

// Yield suspends the script until the host resumes it.
type Yield struct{}

func (*Yield) stmtNode()      {}
func (*Yield) String() string { return "yield;" }

// ExprStmt is a call used for its effect: name(args); Any value the call
// pushes is discarded.
type ExprStmt struct {
	Call *Call
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.Call.String() + ";" }
