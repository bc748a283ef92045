// Package asm converts between the binary program format and a line-based
// text form: one instruction per line, mnemonic followed by space-separated
// decimal (or 0x-prefixed hex) operands, jump targets as absolute byte
// offsets. Disassemble and Assemble are inverses for any valid program.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"pwlp/pkg/vm"
)

var zeroOperandOps = map[string]byte{
	"ADD":  vm.PrefixBinary | vm.BinaryAdd,
	"SUB":  vm.PrefixBinary | vm.BinarySub,
	"DIV":  vm.PrefixBinary | vm.BinaryDiv,
	"MUL":  vm.PrefixBinary | vm.BinaryMul,
	"MOD":  vm.PrefixBinary | vm.BinaryMod,
	"AND":  vm.PrefixBinary | vm.BinaryAnd,
	"OR":   vm.PrefixBinary | vm.BinaryOr,
	"XOR":  vm.PrefixBinary | vm.BinaryXor,
	"GT":   vm.PrefixBinary | vm.BinaryGt,
	"GTE":  vm.PrefixBinary | vm.BinaryGte,
	"LT":   vm.PrefixBinary | vm.BinaryLt,
	"LTE":  vm.PrefixBinary | vm.BinaryLte,
	"EQ":   vm.PrefixBinary | vm.BinaryEq,
	"NEQ":  vm.PrefixBinary | vm.BinaryNeq,
	"INC":  vm.PrefixUnary | vm.UnaryInc,
	"DEC":  vm.PrefixUnary | vm.UnaryDec,
	"NOT":  vm.PrefixUnary | vm.UnaryNot,
	"NEG":  vm.PrefixUnary | vm.UnaryNeg,
	"SHL8": vm.PrefixUnary | vm.UnaryShl8,
	"SHR8": vm.PrefixUnary | vm.UnaryShr8,

	"GET_LENGTH":       vm.PrefixUser | vm.UserGetLength,
	"GET_WALL_TIME":    vm.PrefixUser | vm.UserGetWallTime,
	"GET_PRECISE_TIME": vm.PrefixUser | vm.UserGetPreciseTime,
	"SET_PIXEL":        vm.PrefixUser | vm.UserSetPixel,
	"BLIT":             vm.PrefixUser | vm.UserBlit,
	"RANDOM_INT":       vm.PrefixUser | vm.UserRandomInt,
	"GET_PIXEL":        vm.PrefixUser | vm.UserGetPixel,

	"SWAP":  vm.PrefixSpecial | vm.SpecialSwap,
	"DUMP":  vm.PrefixSpecial | vm.SpecialDump,
	"YIELD": vm.PrefixSpecial | vm.SpecialYield,
}

var jumpOps = map[string]byte{
	"JMP": vm.PrefixJmp,
	"JZ":  vm.PrefixJz,
	"JNZ": vm.PrefixJnz,
}

var slotOps = map[string]byte{
	"LOAD":  vm.PrefixLoad,
	"STORE": vm.PrefixStore,
}

// Disassemble renders bytecode as assembler text, one instruction per line.
func Disassemble(code []byte) (string, error) {
	var out strings.Builder
	pc := 0
	for pc < len(code) {
		op := code[pc]
		operands, err := vm.OperandLength(op)
		if err != nil {
			return "", fmt.Errorf("at offset %d: %w", pc, err)
		}
		if pc+1+operands > len(code) {
			return "", fmt.Errorf("at offset %d: operands truncated", pc)
		}

		postfix := op & 0x0F
		switch op & 0xF0 {
		case vm.PrefixPop:
			fmt.Fprintf(&out, "POP %d\n", postfix)
		case vm.PrefixPeek:
			fmt.Fprintf(&out, "PEEK %d\n", postfix)
		case vm.PrefixPushB:
			out.WriteString("PUSHB")
			for i := 0; i < int(postfix); i++ {
				fmt.Fprintf(&out, " %d", code[pc+1+i])
			}
			out.WriteByte('\n')
		case vm.PrefixPushI:
			out.WriteString("PUSHI")
			for i := 0; i < int(postfix); i++ {
				at := pc + 1 + i*4
				v := uint32(code[at]) | uint32(code[at+1])<<8 |
					uint32(code[at+2])<<16 | uint32(code[at+3])<<24
				fmt.Fprintf(&out, " %d", v)
			}
			out.WriteByte('\n')
		case vm.PrefixJmp, vm.PrefixJz, vm.PrefixJnz:
			target := int(code[pc+1]) | int(code[pc+2])<<8
			var name string
			switch op & 0xF0 {
			case vm.PrefixJmp:
				name = "JMP"
			case vm.PrefixJz:
				name = "JZ"
			default:
				name = "JNZ"
			}
			fmt.Fprintf(&out, "%s %d\n", name, target)
		case vm.PrefixLoad:
			fmt.Fprintf(&out, "LOAD %d\n", code[pc+1])
		case vm.PrefixStore:
			fmt.Fprintf(&out, "STORE %d\n", code[pc+1])
		case vm.PrefixUnary:
			name, _ := vm.UnaryName(postfix)
			fmt.Fprintf(&out, "%s\n", name)
		case vm.PrefixBinary:
			name, _ := vm.BinaryName(postfix)
			fmt.Fprintf(&out, "%s\n", name)
		case vm.PrefixUser:
			name, _ := vm.UserName(postfix)
			fmt.Fprintf(&out, "%s\n", name)
		case vm.PrefixSpecial:
			name, _ := vm.SpecialName(postfix)
			fmt.Fprintf(&out, "%s\n", name)
		}
		pc += 1 + operands
	}
	return out.String(), nil
}

// Assemble parses assembler text back into bytecode. Blank lines and `;` or
// `//` comments are accepted and discarded.
func Assemble(text string) ([]byte, error) {
	var code []byte

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := stripComment(raw)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		mnemonic := strings.ToUpper(fields[0])
		ops := fields[1:]

		switch {
		case mnemonic == "POP" || mnemonic == "PEEK":
			if len(ops) != 1 {
				return nil, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
			}
			n, err := parseOperand(ops[0], 15, lineNo)
			if err != nil {
				return nil, err
			}
			prefix := vm.PrefixPop
			if mnemonic == "PEEK" {
				prefix = vm.PrefixPeek
			}
			code = append(code, prefix|byte(n))

		case mnemonic == "PUSHB":
			if len(ops) > 15 {
				return nil, fmt.Errorf("PUSHB takes at most 15 operands on line %d", lineNo)
			}
			code = append(code, vm.PrefixPushB|byte(len(ops)))
			for _, o := range ops {
				v, err := parseOperand(o, 0xFF, lineNo)
				if err != nil {
					return nil, err
				}
				code = append(code, byte(v))
			}

		case mnemonic == "PUSHI":
			if len(ops) > 15 {
				return nil, fmt.Errorf("PUSHI takes at most 15 operands on line %d", lineNo)
			}
			code = append(code, vm.PrefixPushI|byte(len(ops)))
			for _, o := range ops {
				v, err := parseOperand(o, 0xFFFFFFFF, lineNo)
				if err != nil {
					return nil, err
				}
				code = append(code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			}

		default:
			if prefix, ok := jumpOps[mnemonic]; ok {
				if len(ops) != 1 {
					return nil, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
				}
				target, err := parseOperand(ops[0], 0xFFFF, lineNo)
				if err != nil {
					return nil, err
				}
				code = append(code, prefix, byte(target), byte(target>>8))
				continue
			}
			if prefix, ok := slotOps[mnemonic]; ok {
				if len(ops) != 1 {
					return nil, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
				}
				slot, err := parseOperand(ops[0], 0xFF, lineNo)
				if err != nil {
					return nil, err
				}
				code = append(code, prefix, byte(slot))
				continue
			}
			if op, ok := zeroOperandOps[mnemonic]; ok {
				if len(ops) != 0 {
					return nil, fmt.Errorf("%s expects 0 operands on line %d", mnemonic, lineNo)
				}
				code = append(code, op)
				continue
			}
			return nil, fmt.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
		}
	}

	return code, nil
}

func stripComment(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseOperand(token string, max uint64, lineNo int) (uint64, error) {
	v, err := strconv.ParseUint(token, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid operand %q on line %d", token, lineNo)
	}
	if v > max {
		return 0, fmt.Errorf("operand %s out of range on line %d", token, lineNo)
	}
	return v, nil
}
