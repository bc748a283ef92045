package compiler

import (
	"errors"
	"testing"

	"pwlp/pkg/asm"
)

// compileText compiles src and returns the disassembly, the form the
// generator's output is easiest to check against.
func compileText(t *testing.T, src string) string {
	t.Helper()
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	text, err := asm.Disassemble(p.Code())
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	return text
}

func compileError(t *testing.T, src string) *CompileError {
	t.Helper()
	_, err := Compile(src)
	if err == nil {
		t.Fatalf("Compile(%q): expected error", src)
	}
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("Compile(%q): got %T (%v), want *CompileError", src, err, err)
	}
	return cerr
}

func TestGenAssignment(t *testing.T) {
	got := compileText(t, "i = 3;")
	want := "PUSHB 3\nSTORE 0\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenSlotReuse(t *testing.T) {
	got := compileText(t, "i = 1; j = 2; i = 3;")
	want := "PUSHB 1\nSTORE 0\nPUSHB 2\nSTORE 1\nPUSHB 3\nSTORE 0\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenLoop(t *testing.T) {
	got := compileText(t, "loop{ yield; }")
	want := "YIELD\nJMP 0\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenIf(t *testing.T) {
	got := compileText(t, "i = 1; if(i == 0){ i = 2; }")
	want := "PUSHB 1\n" +
		"STORE 0\n" +
		"LOAD 0\n" +
		"PUSHB\n" +
		"EQ\n" +
		"JZ 15\n" +
		"PUSHB 2\n" +
		"STORE 0\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenFor(t *testing.T) {
	got := compileText(t, "for(n = 3){ blit; }")
	want := "PUSHB 3\n" +
		"STORE 0\n" +
		"LOAD 0\n" +
		"JZ 18\n" +
		"BLIT\n" +
		"LOAD 0\n" +
		"DEC\n" +
		"STORE 0\n" +
		"JMP 4\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenConstantFolding(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"i = 2 + 3 * 4;", "PUSHB 14\nSTORE 0\n"},
		{"i = (10 - 4) / 2;", "PUSHB 3\nSTORE 0\n"},
		{"i = 5 == 5;", "PUSHB 1\nSTORE 0\n"},
		{"i = !1;", "PUSHB\nSTORE 0\n"},
		{"i = 0 - 1;", "PUSHI 4294967295\nSTORE 0\n"},
		{"i = rgb(1, 2, 3);", "PUSHI 50462976\nSTORE 0\n"},
		{"i = red(rgb(7, 8, 9));", "PUSHB 7\nSTORE 0\n"},
		{"i = index(irgb(5, 1, 2, 3));", "PUSHB 5\nSTORE 0\n"},
	}
	for _, c := range cases {
		if got := compileText(t, c.src); got != c.want {
			t.Errorf("%q:\ngot:\n%swant:\n%s", c.src, got, c.want)
		}
	}
}

func TestGenDivByConstantZeroNotFolded(t *testing.T) {
	// A constant zero divisor stays in the program to fault at run time.
	got := compileText(t, "i = 1 / 0;")
	want := "PUSHB 1\nPUSHB\nDIV\nSTORE 0\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenDynamicIntrinsic(t *testing.T) {
	got := compileText(t, "i = 10; j = red(i);")
	want := "PUSHB 10\n" +
		"STORE 0\n" +
		"LOAD 0\n" +
		"SHR8\n" +
		"PUSHB 255\n" +
		"AND\n" +
		"STORE 1\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenSetPixelConstant(t *testing.T) {
	// All-constant set_pixel packs to one immediate.
	got := compileText(t, "set_pixel(0, 1, 2, 3);")
	want := "PUSHI 50462976\nSET_PIXEL\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenSetPixelPackedColorForm(t *testing.T) {
	got := compileText(t, "set_pixel(2, rgb(1, 2, 3));")
	want := "PUSHI 50462978\nSET_PIXEL\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenCallStatementPopsValue(t *testing.T) {
	// A value-returning command used as a statement discards its result.
	got := compileText(t, "random(5);")
	want := "PUSHB 5\nRANDOM_INT\nPOP 1\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenBareBlitAndDump(t *testing.T) {
	got := compileText(t, "blit; dump;")
	want := "BLIT\nDUMP\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}

func TestGenUndeclaredVariable(t *testing.T) {
	cerr := compileError(t, "i = j + 1;")
	if cerr.Line != 1 {
		t.Errorf("got line %d, want 1", cerr.Line)
	}
}

func TestGenSemanticErrors(t *testing.T) {
	cases := []string{
		"frob(1);",                 // unknown command
		"random();",                // wrong arity
		"i = rgb(1, 2);",           // wrong intrinsic arity
		"set_pixel(1, 2, 3);",      // set_pixel takes 2 or 4 args
		"i = blit();",              // blit produces no value
		"if(x == 0){ yield; }",     // undeclared variable in condition
		"for(n = m){ yield; }",     // undeclared bound
	}
	for _, src := range cases {
		compileError(t, src)
	}
}

func TestGenForVariableIsUsableInBody(t *testing.T) {
	// The loop variable is an ordinary register visible to the body.
	got := compileText(t, "for(n = 2){ i = n; }")
	want := "PUSHB 2\n" +
		"STORE 0\n" +
		"LOAD 0\n" +
		"JZ 21\n" +
		"LOAD 0\n" +
		"STORE 1\n" +
		"LOAD 0\n" +
		"DEC\n" +
		"STORE 0\n" +
		"JMP 4\n"
	if got != want {
		t.Errorf("got:\n%swant:\n%s", got, want)
	}
}
