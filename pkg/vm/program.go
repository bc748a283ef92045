package vm

import (
	"fmt"
	"os"
)

// Program is an immutable compiled script. The byte layout is the stable
// wire format shipped to devices; many independent VM states may borrow the
// same Program read-only.
type Program struct {
	code []byte
}

// FromBinary wraps raw bytecode. Validate rejects truncated or malformed
// code before it ever reaches a VM.
func FromBinary(code []byte) *Program {
	c := make([]byte, len(code))
	copy(c, code)
	return &Program{code: c}
}

// FromFile loads a compiled program from disk.
func FromFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBinary(data), nil
}

// Code returns the raw bytecode.
func (p *Program) Code() []byte {
	return p.code
}

// Len returns the bytecode length in bytes.
func (p *Program) Len() int {
	return len(p.code)
}

// Validate walks the instruction stream once and rejects unknown opcodes,
// operands running past the end of the program, and jump targets outside it.
func (p *Program) Validate() error {
	pc := 0
	for pc < len(p.code) {
		op := p.code[pc]
		n, err := OperandLength(op)
		if err != nil {
			return fmt.Errorf("at offset %d: %w", pc, err)
		}
		if pc+1+n > len(p.code) {
			return fmt.Errorf("at offset %d: operands truncated", pc)
		}
		switch op & 0xF0 {
		case PrefixJmp, PrefixJz, PrefixJnz:
			target := int(p.code[pc+1]) | int(p.code[pc+2])<<8
			if target > len(p.code) {
				return fmt.Errorf("at offset %d: jump target %d past end of program", pc, target)
			}
		}
		pc += 1 + n
	}
	return nil
}

// SlotCount returns the size of the register file the program needs: one
// slot past the highest LOAD/STORE operand. Slots are fixed at compile time,
// so a single scan suffices.
func (p *Program) SlotCount() int {
	max := 0
	pc := 0
	for pc < len(p.code) {
		op := p.code[pc]
		n, err := OperandLength(op)
		if err != nil || pc+1+n > len(p.code) {
			break // Validate reports these; the scan just stops
		}
		prefix := op & 0xF0
		if prefix == PrefixLoad || prefix == PrefixStore {
			if slot := int(p.code[pc+1]) + 1; slot > max {
				max = slot
			}
		}
		pc += 1 + n
	}
	return max
}

// Builder accumulates bytecode during code generation. Forward jumps are
// emitted with a zero placeholder and patched once the enclosing block's
// length is known.
type Builder struct {
	code []byte
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build freezes the accumulated code into an immutable Program.
func (b *Builder) Build() *Program {
	return FromBinary(b.code)
}

// Here returns the current emit offset, used as a backward jump target.
func (b *Builder) Here() int {
	return len(b.code)
}

// Push emits the shortest encoding for a constant: PUSHB with no operand for
// zero, a one-byte PUSHB for values up to 0xFF, a four-byte PUSHI otherwise.
func (b *Builder) Push(v uint32) {
	switch {
	case v == 0:
		b.code = append(b.code, PrefixPushB)
	case v <= 0xFF:
		b.code = append(b.code, PrefixPushB|0x01, byte(v))
	default:
		b.code = append(b.code, PrefixPushI|0x01,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
}

// Pop emits POP n. n must be 15 or less.
func (b *Builder) Pop(n int) {
	if n < 0 || n > 15 {
		panic(fmt.Sprintf("vm: cannot pop %d stack items in one instruction", n))
	}
	b.code = append(b.code, PrefixPop|byte(n))
}

// Peek emits PEEK n, duplicating the value n below the top of the stack.
func (b *Builder) Peek(n int) {
	if n < 0 || n > 15 {
		panic(fmt.Sprintf("vm: cannot peek %d items deep", n))
	}
	b.code = append(b.code, PrefixPeek|byte(n))
}

// Load emits LOAD slot.
func (b *Builder) Load(slot int) {
	if slot < 0 || slot > 0xFF {
		panic(fmt.Sprintf("vm: register slot %d out of range", slot))
	}
	b.code = append(b.code, PrefixLoad, byte(slot))
}

// Store emits STORE slot.
func (b *Builder) Store(slot int) {
	if slot < 0 || slot > 0xFF {
		panic(fmt.Sprintf("vm: register slot %d out of range", slot))
	}
	b.code = append(b.code, PrefixStore, byte(slot))
}

func (b *Builder) Unary(op byte) {
	b.code = append(b.code, PrefixUnary|op)
}

func (b *Builder) Binary(op byte) {
	b.code = append(b.code, PrefixBinary|op)
}

func (b *Builder) User(op byte) {
	b.code = append(b.code, PrefixUser|op)
}

func (b *Builder) Special(op byte) {
	b.code = append(b.code, PrefixSpecial|op)
}

// Jmp emits an unconditional jump to an already-known absolute target.
func (b *Builder) Jmp(target int) {
	b.code = append(b.code, PrefixJmp, byte(target), byte(target>>8))
}

// JmpForward emits a jump with a placeholder target and returns the offset
// to hand to Patch once the destination is known.
func (b *Builder) JmpForward(prefix byte) int {
	at := len(b.code)
	b.code = append(b.code, prefix, 0, 0)
	return at
}

// Patch resolves a placeholder emitted by JmpForward to the current offset.
func (b *Builder) Patch(at int) {
	target := len(b.code)
	if target > 0xFFFF {
		panic("vm: program exceeds addressable size")
	}
	b.code[at+1] = byte(target)
	b.code[at+2] = byte(target >> 8)
}
