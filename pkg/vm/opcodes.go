package vm

import "fmt"

// The binary program format packs the instruction family into the high
// nibble of the opcode byte. For POP/PUSHB/PEEK/PUSHI the low nibble is an
// inline count or stack index; for UNARY/BINARY/USER/SPECIAL it selects the
// operation. LOAD/STORE take a one-byte register slot operand and JMP/JZ/JNZ
// a two-byte little-endian absolute target.
const (
	PrefixPop     byte = 0x00
	PrefixPushB   byte = 0x10
	PrefixPeek    byte = 0x20
	PrefixPushI   byte = 0x30
	PrefixJmp     byte = 0x40
	PrefixJz      byte = 0x50
	PrefixJnz     byte = 0x60
	PrefixUnary   byte = 0x70
	PrefixBinary  byte = 0x80
	PrefixLoad    byte = 0x90
	PrefixStore   byte = 0xA0
	PrefixUser    byte = 0xE0
	PrefixSpecial byte = 0xF0
)

// Unary operation codes (low nibble of a PrefixUnary opcode).
const (
	UnaryInc byte = iota
	UnaryDec
	UnaryNot
	UnaryNeg
	UnaryShl8
	UnaryShr8

	unaryCount
)

// Binary operation codes (low nibble of a PrefixBinary opcode).
const (
	BinaryAdd byte = iota
	BinarySub
	BinaryDiv
	BinaryMul
	BinaryMod
	BinaryAnd
	BinaryOr
	BinaryXor
	BinaryGt
	BinaryGte
	BinaryLt
	BinaryLte
	BinaryEq
	BinaryNeq

	binaryCount
)

// User commands are the host builtins reachable from scripts. The numbering
// is part of the stable wire format.
const (
	UserGetLength byte = iota
	UserGetWallTime
	UserGetPreciseTime
	UserSetPixel
	UserBlit
	UserRandomInt
	UserGetPixel

	userCount
)

// Special operations (low nibble of a PrefixSpecial opcode).
const (
	SpecialSwap  byte = 12
	SpecialDump  byte = 13
	SpecialYield byte = 14
)

var unaryNames = [unaryCount]string{
	UnaryInc:  "INC",
	UnaryDec:  "DEC",
	UnaryNot:  "NOT",
	UnaryNeg:  "NEG",
	UnaryShl8: "SHL8",
	UnaryShr8: "SHR8",
}

var binaryNames = [binaryCount]string{
	BinaryAdd: "ADD",
	BinarySub: "SUB",
	BinaryDiv: "DIV",
	BinaryMul: "MUL",
	BinaryMod: "MOD",
	BinaryAnd: "AND",
	BinaryOr:  "OR",
	BinaryXor: "XOR",
	BinaryGt:  "GT",
	BinaryGte: "GTE",
	BinaryLt:  "LT",
	BinaryLte: "LTE",
	BinaryEq:  "EQ",
	BinaryNeq: "NEQ",
}

var userNames = [userCount]string{
	UserGetLength:      "GET_LENGTH",
	UserGetWallTime:    "GET_WALL_TIME",
	UserGetPreciseTime: "GET_PRECISE_TIME",
	UserSetPixel:       "SET_PIXEL",
	UserBlit:           "BLIT",
	UserRandomInt:      "RANDOM_INT",
	UserGetPixel:       "GET_PIXEL",
}

// UnaryName returns the mnemonic for a unary operation code.
func UnaryName(op byte) (string, bool) {
	if op < unaryCount {
		return unaryNames[op], true
	}
	return "", false
}

// BinaryName returns the mnemonic for a binary operation code.
func BinaryName(op byte) (string, bool) {
	if op < binaryCount {
		return binaryNames[op], true
	}
	return "", false
}

// UserName returns the mnemonic for a user command code.
func UserName(op byte) (string, bool) {
	if op < userCount {
		return userNames[op], true
	}
	return "", false
}

// SpecialName returns the mnemonic for a special operation code.
func SpecialName(op byte) (string, bool) {
	switch op {
	case SpecialSwap:
		return "SWAP", true
	case SpecialDump:
		return "DUMP", true
	case SpecialYield:
		return "YIELD", true
	}
	return "", false
}

// OperandLength returns how many operand bytes follow the given opcode byte,
// or an error for byte values that are not valid instructions.
func OperandLength(op byte) (int, error) {
	postfix := op & 0x0F
	switch op & 0xF0 {
	case PrefixPop, PrefixPeek:
		return 0, nil
	case PrefixPushB:
		return int(postfix), nil
	case PrefixPushI:
		return int(postfix) * 4, nil
	case PrefixJmp, PrefixJz, PrefixJnz:
		if postfix != 0 {
			return 0, fmt.Errorf("invalid opcode 0x%02x", op)
		}
		return 2, nil
	case PrefixLoad, PrefixStore:
		if postfix != 0 {
			return 0, fmt.Errorf("invalid opcode 0x%02x", op)
		}
		return 1, nil
	case PrefixUnary:
		if postfix >= unaryCount {
			return 0, fmt.Errorf("invalid unary opcode 0x%02x", op)
		}
		return 0, nil
	case PrefixBinary:
		if postfix >= binaryCount {
			return 0, fmt.Errorf("invalid binary opcode 0x%02x", op)
		}
		return 0, nil
	case PrefixUser:
		if postfix >= userCount {
			return 0, fmt.Errorf("invalid user opcode 0x%02x", op)
		}
		return 0, nil
	case PrefixSpecial:
		if _, ok := SpecialName(postfix); !ok {
			return 0, fmt.Errorf("invalid special opcode 0x%02x", op)
		}
		return 0, nil
	}
	return 0, fmt.Errorf("invalid opcode 0x%02x", op)
}
