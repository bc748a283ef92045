package asm

import (
	"strings"
	"testing"

	"pwlp/pkg/vm"
)

func TestAssembleZeroOperandOps(t *testing.T) {
	cases := []struct {
		text string
		want byte
	}{
		{"ADD", vm.PrefixBinary | vm.BinaryAdd},
		{"NEQ", vm.PrefixBinary | vm.BinaryNeq},
		{"INC", vm.PrefixUnary | vm.UnaryInc},
		{"SHR8", vm.PrefixUnary | vm.UnaryShr8},
		{"GET_LENGTH", vm.PrefixUser | vm.UserGetLength},
		{"SET_PIXEL", vm.PrefixUser | vm.UserSetPixel},
		{"BLIT", vm.PrefixUser | vm.UserBlit},
		{"RANDOM_INT", vm.PrefixUser | vm.UserRandomInt},
		{"SWAP", vm.PrefixSpecial | vm.SpecialSwap},
		{"YIELD", vm.PrefixSpecial | vm.SpecialYield},
	}
	for _, c := range cases {
		code, err := Assemble(c.text)
		if err != nil {
			t.Fatalf("Assemble(%q): %v", c.text, err)
		}
		if len(code) != 1 || code[0] != c.want {
			t.Errorf("Assemble(%q) = %v, want [0x%02x]", c.text, code, c.want)
		}
	}
}

func TestAssemblePush(t *testing.T) {
	code, err := Assemble("PUSHB 1 2 3\nPUSHI 70000")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		vm.PrefixPushB | 3, 1, 2, 3,
		vm.PrefixPushI | 1, 0x70, 0x11, 0x01, 0x00,
	}
	if len(code) != len(want) {
		t.Fatalf("got %v, want %v", code, want)
	}
	for i := range want {
		if code[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, code[i], want[i])
		}
	}
}

func TestAssembleBarePushB(t *testing.T) {
	code, err := Assemble("PUSHB")
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 1 || code[0] != vm.PrefixPushB {
		t.Fatalf("got %v, want bare PUSHB", code)
	}
}

// PUSHI with no immediates is a valid (if useless) instruction, so the
// assembler must accept its own disassembly of it.
func TestAssembleBarePushI(t *testing.T) {
	code, err := Assemble("PUSHI")
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 1 || code[0] != vm.PrefixPushI {
		t.Fatalf("got %v, want bare PUSHI", code)
	}

	text, err := Disassemble([]byte{vm.PrefixPushI})
	if err != nil {
		t.Fatal(err)
	}
	round, err := Assemble(text)
	if err != nil {
		t.Fatalf("assembling %q: %v", text, err)
	}
	if len(round) != 1 || round[0] != vm.PrefixPushI {
		t.Fatalf("round trip produced %v", round)
	}
}

func TestAssembleJumpsAndSlots(t *testing.T) {
	code, err := Assemble("JMP 258\nJZ 0\nJNZ 65535\nLOAD 7\nSTORE 255")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		vm.PrefixJmp, 0x02, 0x01,
		vm.PrefixJz, 0x00, 0x00,
		vm.PrefixJnz, 0xFF, 0xFF,
		vm.PrefixLoad, 7,
		vm.PrefixStore, 255,
	}
	if len(code) != len(want) {
		t.Fatalf("got %v, want %v", code, want)
	}
	for i := range want {
		if code[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, code[i], want[i])
		}
	}
}

func TestAssembleCommentsAndCase(t *testing.T) {
	text := `
; full line comment
pushb 10   // trailing comment
add        ; another
`
	code, err := Assemble(text)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{vm.PrefixPushB | 1, 10, vm.PrefixBinary | vm.BinaryAdd}
	if len(code) != len(want) {
		t.Fatalf("got %v, want %v", code, want)
	}
	for i := range want {
		if code[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, code[i], want[i])
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	cases := []string{
		"FROB",          // unknown mnemonic
		"POP",           // missing operand
		"POP 16",        // postfix out of range
		"PUSHB 256",     // byte out of range
		"JMP 65536",     // target out of range
		"LOAD 256",      // slot out of range
		"ADD 1",         // unexpected operand
		"PUSHB kittens", // not a number
	}
	for _, text := range cases {
		if _, err := Assemble(text); err == nil {
			t.Errorf("Assemble(%q): expected error", text)
		}
	}
}

func TestAssembleErrorReportsLine(t *testing.T) {
	_, err := Assemble("ADD\nSUB\nFROB")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error %q does not name line 3", err)
	}
}

func TestDisassembleRejectsBadCode(t *testing.T) {
	if _, err := Disassemble([]byte{0xB0}); err == nil {
		t.Error("expected error for unknown opcode")
	}
	if _, err := Disassemble([]byte{vm.PrefixPushI | 1, 0x01}); err == nil {
		t.Error("expected error for truncated operands")
	}
}

// Assembling the disassembly of a valid program reproduces the original
// bytes exactly.
func TestRoundTrip(t *testing.T) {
	b := vm.NewBuilder()
	b.Push(0)
	b.Push(128)
	b.Push(100000)
	b.Store(0)
	top := b.Here()
	b.Load(0)
	b.User(vm.UserGetLength)
	b.Binary(vm.BinaryMod)
	b.Peek(0)
	b.Unary(vm.UnaryShl8)
	b.Binary(vm.BinaryOr)
	b.User(vm.UserSetPixel)
	b.User(vm.UserBlit)
	b.Special(vm.SpecialYield)
	b.Load(0)
	b.Unary(vm.UnaryInc)
	b.Store(0)
	b.Jmp(top)
	p := b.Build()

	text, err := Disassemble(p.Code())
	if err != nil {
		t.Fatal(err)
	}
	code, err := Assemble(text)
	if err != nil {
		t.Fatalf("assembling disassembly: %v\n%s", err, text)
	}
	if len(code) != p.Len() {
		t.Fatalf("round trip changed length: %d != %d", len(code), p.Len())
	}
	for i, want := range p.Code() {
		if code[i] != want {
			t.Fatalf("round trip changed byte %d: 0x%02x != 0x%02x", i, code[i], want)
		}
	}
}
