// Package compiler turns LED strip scripts into bytecode programs: a rune
// lexer, a recursive-descent parser, and a code generator that resolves
// variables to register slots and expands color intrinsics at compile time.
package compiler

import "pwlp/pkg/vm"

// Compile runs the full pipeline over one source text: lex, parse, generate.
// On any error no program is produced.
func Compile(src string) (*vm.Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	parser := NewParser(tokens, src)
	stmts, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	return Generate(stmts, NewSymbolTable())
}
