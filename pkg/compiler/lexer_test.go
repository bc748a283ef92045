package compiler

import (
	"errors"
	"testing"
)

func TestLexSimpleAssignment(t *testing.T) {
	tokens, err := Lex("i = 10;")
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{IDENTIFIER, ASSIGN, INTEGER, SEMICOLON, EOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token %d: got %s, want %s", i, tokens[i].Type, tt)
		}
	}
	if tokens[0].Lexeme != "i" || tokens[2].Lexeme != "10" {
		t.Errorf("unexpected lexemes: %v", tokens)
	}
}

func TestLexKeywords(t *testing.T) {
	tokens, err := Lex("if loop for yield blit")
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{IF, LOOP, FOR, YIELD, IDENTIFIER, EOF}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token %d: got %s, want %s", i, tokens[i].Type, tt)
		}
	}
}

func TestLexOperators(t *testing.T) {
	cases := []struct {
		src  string
		want TokenType
	}{
		{"==", EQUALS},
		{"!=", NOT_EQ},
		{"<=", LESS_EQ},
		{">=", GREATER_EQ},
		{"<", LESS},
		{">", GREATER},
		{"=", ASSIGN},
		{"!", NOT},
		{"+", PLUS},
		{"-", MINUS},
		{"*", STAR},
		{"/", SLASH},
		{"%", PERCENT},
		{"&", AND},
		{"|", PIPE},
		{"^", CARET},
	}
	for _, c := range cases {
		tokens, err := Lex(c.src)
		if err != nil {
			t.Fatalf("Lex(%q): %v", c.src, err)
		}
		if tokens[0].Type != c.want {
			t.Errorf("Lex(%q): got %s, want %s", c.src, tokens[0].Type, c.want)
		}
	}
}

func TestLexHexLiteral(t *testing.T) {
	tokens, err := Lex("i = 0xFF;")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[2].Type != INTEGER || tokens[2].Lexeme != "0xFF" {
		t.Errorf("got %v, want INTEGER 0xFF", tokens[2])
	}
}

func TestLexComments(t *testing.T) {
	src := `// leading comment
i = 1; /* inline
spanning lines */ j = 2;`
	tokens, err := Lex(src)
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{IDENTIFIER, ASSIGN, INTEGER, SEMICOLON,
		IDENTIFIER, ASSIGN, INTEGER, SEMICOLON, EOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	// j = 2; sits on line 3 after the block comment.
	if tokens[4].Line != 3 {
		t.Errorf("token %v: got line %d, want 3", tokens[4], tokens[4].Line)
	}
}

func TestLexUnterminatedBlockComment(t *testing.T) {
	_, err := Lex("i = 1; /* never closed")
	if err == nil {
		t.Fatal("expected error for unterminated block comment")
	}
	var lexErr *LexError
	if !errors.As(err, &lexErr) {
		t.Fatalf("got %T, want *LexError", err)
	}
	// Positioned at the opening /*.
	if lexErr.Line != 1 || lexErr.Col != 8 {
		t.Errorf("got line %d col %d, want line 1 col 8", lexErr.Line, lexErr.Col)
	}
}

func TestLexPositions(t *testing.T) {
	tokens, err := Lex("i = 1;\n  j = 2;")
	if err != nil {
		t.Fatal(err)
	}
	// j is on line 2, column 3.
	j := tokens[4]
	if j.Lexeme != "j" || j.Line != 2 || j.Col != 3 {
		t.Errorf("got %v, want j at line 2 col 3", j)
	}
}

func TestLexBadCharacter(t *testing.T) {
	_, err := Lex("i = $;")
	if err == nil {
		t.Fatal("expected error for $")
	}
	var lexErr *LexError
	if !errors.As(err, &lexErr) {
		t.Fatalf("got %T, want *LexError", err)
	}
	if lexErr.Line != 1 || lexErr.Col != 5 || lexErr.Char != '$' {
		t.Errorf("got %+v, want line 1 col 5 char $", lexErr)
	}
}
