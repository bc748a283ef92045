package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError is the first unrecoverable grammar violation. No partial AST
// is returned alongside it.
type SyntaxError struct {
	Line    int
	Col     int
	Message string
	Snippet string
}

func (e *SyntaxError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s\n  |> %s", e.Line, e.Message, e.Snippet)
}

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program    = statement* EOF
//	statement  = assignment | if | loop | for | yield | exprStmt | ";"
//	assignment = IDENTIFIER "=" expression ";"
//	if         = "if" "(" expression ")" block
//	loop       = "loop" block
//	for        = "for" "(" IDENTIFIER "=" expression ")" block
//	yield      = "yield" ";"
//	exprStmt   = IDENTIFIER ( "(" args ")" )? ";"
//	block      = "{" statement* "}"
//	expression = comparison
//	comparison = bitwise (("=="|"!="|"<"|">"|"<="|">=") bitwise)*
//	bitwise    = additive (("|"|"&"|"^") additive)*
//	additive   = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = unary (("*"|"/"|"%") unary)*
//	unary      = ("!"|"-") unary | primary
//	primary    = INTEGER | IDENTIFIER ( "(" args ")" )? | "(" expression ")"
//
// Semicolons separate statements; stray semicolons (including after a block's
// closing brace) are consumed and ignored.
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := ""
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return &SyntaxError{Line: tok.Line, Col: tok.Col, Message: msg, Snippet: snippet}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// Parse builds the AST for the whole program.
func (p *Parser) Parse() ([]Stmt, error) {
	var stmts []Stmt
	for p.peek().Type != EOF {
		if p.peek().Type == SEMICOLON {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case IF:
		return p.parseIf()
	case LOOP:
		return p.parseLoop()
	case FOR:
		return p.parseFor()
	case YIELD:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &Yield{}, nil
	case IDENTIFIER:
		if p.peekNext().Type == ASSIGN {
			return p.parseAssignment()
		}
		return p.parseExprStmt()
	}
	tok := p.peek()
	return nil, p.fmtError(tok, "expected a statement, got %s (%q)", tok.Type, tok.Lexeme)
}

// parseBlock parses "{ statement* }". Stray semicolons inside the block are
// skipped, matching Parse at the top level.
func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unexpected end of input inside block")
		}
		if p.peek().Type == SEMICOLON {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance() // consume }
	return stmts, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	p.advance() // consume "if"
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &If{Cond: cond, Body: body}, nil
}

func (p *Parser) parseLoop() (Stmt, error) {
	p.advance() // consume "loop"
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Loop{Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	forTok := p.advance() // consume "for"
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	bound, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &For{Var: name.Lexeme, Bound: bound, Body: body, Line: forTok.Line}, nil
}

func (p *Parser) parseAssignment() (Stmt, error) {
	name := p.advance() // IDENTIFIER, checked by the caller
	p.advance()         // consume =
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &Assignment{Name: name.Lexeme, Expr: expr, Line: name.Line}, nil
}

// parseExprStmt parses a command used as a statement: name(args); or a bare
// command name like "blit;" which is sugar for "blit();".
func (p *Parser) parseExprStmt() (Stmt, error) {
	name := p.advance() // IDENTIFIER, checked by the caller

	var args []Expr
	if p.peek().Type == LPAREN {
		var err error
		args, err = p.parseArgs()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{Call: &Call{Name: name.Lexeme, Args: args, Line: name.Line}}, nil
}

// parseArgs parses "(" (expression ("," expression)*)? ")".
// The opening paren must still be at p.peek().
func (p *Parser) parseArgs() ([]Expr, error) {
	p.advance() // consume (
	var args []Expr
	if p.peek().Type == RPAREN {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Type != COMMA {
			break
		}
		p.advance() // consume ,
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseComparison()
}

// parseComparison handles == != < > <= >= (lowest precedence)
func (p *Parser) parseComparison() (Expr, error) {
	expr, err := p.parseBitwise()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case EQUALS, NOT_EQ, LESS, GREATER, LESS_EQ, GREATER_EQ:
			op := p.advance().Type
			right, err := p.parseBitwise()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: op, Left: expr, Right: right}
		default:
			return expr, nil
		}
	}
}

// parseBitwise handles | & ^
func (p *Parser) parseBitwise() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case PIPE, AND, CARET:
			op := p.advance().Type
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: op, Left: expr, Right: right}
		default:
			return expr, nil
		}
	}
}

// parseAdditive handles + -
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseMultiplicative handles * / %
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case STAR, SLASH, PERCENT:
			op := p.advance().Type
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: op, Left: expr, Right: right}
		default:
			return expr, nil
		}
	}
}

// parseUnary handles ! and - prefixes.
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == NOT || p.peek().Type == MINUS {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Right: right}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		v, err := strconv.ParseUint(tok.Lexeme, 0, 32)
		if err != nil {
			return nil, p.fmtError(tok, "integer literal %q out of range", tok.Lexeme)
		}
		return &Literal{Value: uint32(v)}, nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &Call{Name: tok.Lexeme, Args: args, Line: tok.Line}, nil
		}
		return &VarRef{Name: tok.Lexeme, Line: tok.Line}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fmtError(tok, "expected an expression, got %s (%q)", tok.Type, tok.Lexeme)
}
