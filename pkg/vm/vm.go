package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/crypto/chacha20"
)

// Clock is the host time capability. WallTime is seconds since the Unix
// epoch (wraps at 2^32); PreciseTime is monotonic milliseconds.
type Clock interface {
	WallTime() uint32
	PreciseTime() uint32
}

type systemClock struct {
	start time.Time
}

func (c *systemClock) WallTime() uint32 {
	return uint32(time.Now().Unix() & math.MaxUint32)
}

func (c *systemClock) PreciseTime() uint32 {
	return uint32(time.Since(c.start).Milliseconds() & math.MaxUint32)
}

// Status is the execution state of a VM instance.
type Status int

const (
	Running Status = iota
	Yielded
	Halted
	Faulted
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Yielded:
		return "yielded"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// FaultReason explains a Faulted status. A fault is terminal for the state;
// the host decides what to do with the device.
type FaultReason int

const (
	FaultNone FaultReason = iota
	FaultDivideByZero
	FaultStackUnderflow
	FaultStackOverflow
	FaultInvalidOpcode
	FaultBudgetExceeded
	FaultTruncatedProgram
	FaultSlotOutOfRange
)

func (f FaultReason) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultDivideByZero:
		return "divide by zero"
	case FaultStackUnderflow:
		return "stack underflow"
	case FaultStackOverflow:
		return "stack overflow"
	case FaultInvalidOpcode:
		return "invalid opcode"
	case FaultBudgetExceeded:
		return "instruction budget exceeded"
	case FaultTruncatedProgram:
		return "truncated program"
	case FaultSlotOutOfRange:
		return "register slot out of range"
	}
	return fmt.Sprintf("FaultReason(%d)", int(f))
}

// MaxStackDepth bounds the evaluation stack. Well-formed scripts keep the
// stack empty at statement boundaries, so depth tracks expression nesting.
const MaxStackDepth = 64

// VM holds the per-device configuration shared by successive program runs:
// the strip, the clock, the PRNG seed and the deterministic-time flag.
// One VM drives one device; VMs never share strips or PRNG state.
type VM struct {
	strip         Strip
	clock         Clock
	deterministic bool
	trace         bool
	traceOut      io.Writer
	seed          [32]byte
}

func New(strip Strip) *VM {
	return &VM{
		strip:    strip,
		clock:    &systemClock{start: time.Now()},
		traceOut: os.Stdout,
	}
}

func (vm *VM) Strip() Strip {
	return vm.strip
}

// SetDeterministic derives get_precise_time from the instruction counter
// instead of the clock, making runs reproducible regardless of scheduling.
func (vm *VM) SetDeterministic(d bool) {
	vm.deterministic = d
}

// SetSeed sets the ChaCha20 key for the script-visible PRNG. A fixed seed
// yields a fully reproducible draw sequence.
func (vm *VM) SetSeed(seed [32]byte) {
	vm.seed = seed
}

func (vm *VM) SetClock(c Clock) {
	vm.clock = c
}

func (vm *VM) SetTrace(t bool) {
	vm.trace = t
}

// SetTraceWriter redirects trace output and the DUMP instruction.
func (vm *VM) SetTraceWriter(w io.Writer) {
	vm.traceOut = w
}

// State is one execution of a Program: program counter, evaluation stack,
// register file and PRNG. It borrows the program read-only.
type State struct {
	vm      *VM
	program *Program

	pc       int
	stack    []uint32
	regs     []uint32
	icount   uint64
	status   Status
	fault    FaultReason
	rng      *chacha20.Cipher
	rngDraws uint64
}

// Start validates the program and returns a fresh state: pc 0, empty stack,
// zero-initialized register file sized to the program's slot count.
func (vm *VM) Start(p *Program) (*State, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}
	rng, err := newRNG(vm.seed)
	if err != nil {
		return nil, err
	}
	return &State{
		vm:      vm,
		program: p,
		stack:   make([]uint32, 0, MaxStackDepth),
		regs:    make([]uint32, p.SlotCount()),
		rng:     rng,
	}, nil
}

func newRNG(seed [32]byte) (*chacha20.Cipher, error) {
	var nonce [chacha20.NonceSize]byte
	return chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
}

func (s *State) Status() Status {
	return s.status
}

func (s *State) Fault() FaultReason {
	return s.fault
}

func (s *State) PC() int {
	return s.pc
}

// InstructionCount returns the total number of instructions executed.
func (s *State) InstructionCount() uint64 {
	return s.icount
}

// Register reads a register slot, mainly for tests and debugging.
func (s *State) Register(slot int) uint32 {
	if slot < 0 || slot >= len(s.regs) {
		return 0
	}
	return s.regs[slot]
}

func (s *State) setFault(reason FaultReason) Status {
	s.status = Faulted
	s.fault = reason
	return s.status
}

func (s *State) push(v uint32) bool {
	if len(s.stack) >= MaxStackDepth {
		s.setFault(FaultStackOverflow)
		return false
	}
	s.stack = append(s.stack, v)
	return true
}

func (s *State) pop() (uint32, bool) {
	if len(s.stack) == 0 {
		s.setFault(FaultStackUnderflow)
		return 0, false
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, true
}

// nextRandom draws a uniform value in [0, max] inclusive from the seeded
// ChaCha20 stream.
func (s *State) nextRandom(max uint32) uint32 {
	var buf [4]byte
	s.rng.XORKeyStream(buf[:], buf[:])
	s.rngDraws++
	raw := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if max == math.MaxUint32 {
		return raw
	}
	return uint32(uint64(raw) % (uint64(max) + 1))
}

// Run steps the state until it yields, halts or faults, or until budget
// instructions have executed, which is itself a fault: the budget is the
// mandatory guard that bounds per-frame CPU even for scripts that never
// yield. Call again after a yield to resume at the next instruction.
func (s *State) Run(budget int) Status {
	if s.status == Halted || s.status == Faulted {
		return s.status
	}
	for i := 0; i < budget; i++ {
		if st := s.Step(); st != Running {
			return st
		}
	}
	return s.setFault(FaultBudgetExceeded)
}

// Step executes exactly one instruction. Stepping a yielded state resumes
// it; stepping a halted or faulted state is a no-op.
func (s *State) Step() Status {
	switch s.status {
	case Halted, Faulted:
		return s.status
	case Yielded:
		s.status = Running
	}

	code := s.program.code
	if s.pc >= len(code) {
		s.status = Halted
		return s.status
	}

	op := code[s.pc]
	operands, err := OperandLength(op)
	if err != nil {
		return s.setFault(FaultInvalidOpcode)
	}
	if s.pc+1+operands > len(code) {
		return s.setFault(FaultTruncatedProgram)
	}
	s.icount++

	if s.vm.trace {
		fmt.Fprintf(s.vm.traceOut, "%04d.\t%02x\tstack=%v\n", s.pc, op, s.stack)
	}

	postfix := op & 0x0F
	next := s.pc + 1 + operands

	switch op & 0xF0 {
	case PrefixPop:
		if int(postfix) > len(s.stack) {
			return s.setFault(FaultStackUnderflow)
		}
		s.stack = s.stack[:len(s.stack)-int(postfix)]

	case PrefixPushB:
		if postfix == 0 {
			if !s.push(0) {
				return s.status
			}
		} else {
			for i := 0; i < int(postfix); i++ {
				if !s.push(uint32(code[s.pc+1+i])) {
					return s.status
				}
			}
		}

	case PrefixPushI:
		for i := 0; i < int(postfix); i++ {
			at := s.pc + 1 + i*4
			v := uint32(code[at]) | uint32(code[at+1])<<8 |
				uint32(code[at+2])<<16 | uint32(code[at+3])<<24
			if !s.push(v) {
				return s.status
			}
		}

	case PrefixPeek:
		if int(postfix) >= len(s.stack) {
			return s.setFault(FaultStackUnderflow)
		}
		if !s.push(s.stack[len(s.stack)-1-int(postfix)]) {
			return s.status
		}

	case PrefixJmp:
		s.pc = int(code[s.pc+1]) | int(code[s.pc+2])<<8
		return s.status

	case PrefixJz, PrefixJnz:
		cond, ok := s.pop()
		if !ok {
			return s.status
		}
		taken := (cond == 0) == (op&0xF0 == PrefixJz)
		if taken {
			s.pc = int(code[s.pc+1]) | int(code[s.pc+2])<<8
			return s.status
		}

	case PrefixUnary:
		v, ok := s.pop()
		if !ok {
			return s.status
		}
		switch postfix {
		case UnaryInc:
			v++
		case UnaryDec:
			v--
		case UnaryNot:
			if v == 0 {
				v = 1
			} else {
				v = 0
			}
		case UnaryNeg:
			v = -v
		case UnaryShl8:
			v <<= 8
		case UnaryShr8:
			v >>= 8
		}
		if !s.push(v) {
			return s.status
		}

	case PrefixBinary:
		rhs, ok := s.pop()
		if !ok {
			return s.status
		}
		lhs, ok := s.pop()
		if !ok {
			return s.status
		}
		var v uint32
		switch postfix {
		case BinaryAdd:
			v = lhs + rhs
		case BinarySub:
			v = lhs - rhs
		case BinaryMul:
			v = lhs * rhs
		case BinaryDiv:
			if rhs == 0 {
				return s.setFault(FaultDivideByZero)
			}
			v = lhs / rhs
		case BinaryMod:
			if rhs == 0 {
				return s.setFault(FaultDivideByZero)
			}
			v = lhs % rhs
		case BinaryAnd:
			v = lhs & rhs
		case BinaryOr:
			v = lhs | rhs
		case BinaryXor:
			v = lhs ^ rhs
		case BinaryGt:
			v = boolWord(lhs > rhs)
		case BinaryGte:
			v = boolWord(lhs >= rhs)
		case BinaryLt:
			v = boolWord(lhs < rhs)
		case BinaryLte:
			v = boolWord(lhs <= rhs)
		case BinaryEq:
			v = boolWord(lhs == rhs)
		case BinaryNeq:
			v = boolWord(lhs != rhs)
		}
		if !s.push(v) {
			return s.status
		}

	case PrefixLoad:
		// A jump into another instruction's operand bytes can decode a
		// slot the register-file sizing scan never saw.
		slot := int(code[s.pc+1])
		if slot >= len(s.regs) {
			return s.setFault(FaultSlotOutOfRange)
		}
		if !s.push(s.regs[slot]) {
			return s.status
		}

	case PrefixStore:
		slot := int(code[s.pc+1])
		if slot >= len(s.regs) {
			return s.setFault(FaultSlotOutOfRange)
		}
		v, ok := s.pop()
		if !ok {
			return s.status
		}
		s.regs[slot] = v

	case PrefixUser:
		if !s.user(postfix) {
			return s.status
		}

	case PrefixSpecial:
		switch postfix {
		case SpecialSwap:
			if len(s.stack) < 2 {
				return s.setFault(FaultStackUnderflow)
			}
			n := len(s.stack)
			s.stack[n-1], s.stack[n-2] = s.stack[n-2], s.stack[n-1]
		case SpecialDump:
			fmt.Fprintf(s.vm.traceOut, "DUMP pc=%d stack=%v regs=%v\n", s.pc, s.stack, s.regs)
		case SpecialYield:
			s.pc = next
			s.status = Yielded
			return s.status
		}
	}

	s.pc = next
	return s.status
}

// user executes one host builtin. Reports false when the state faulted.
func (s *State) user(cmd byte) bool {
	switch cmd {
	case UserGetLength:
		return s.push(s.vm.strip.Length())

	case UserGetWallTime:
		return s.push(s.vm.clock.WallTime())

	case UserGetPreciseTime:
		if s.vm.deterministic {
			return s.push(uint32(s.icount & math.MaxUint32))
		}
		return s.push(s.vm.clock.PreciseTime())

	case UserSetPixel:
		v, ok := s.pop()
		if !ok {
			return false
		}
		idx := v & 0xFF
		r := uint8(v >> 8)
		g := uint8(v >> 16)
		b := uint8(v >> 24)
		if s.vm.trace {
			fmt.Fprintf(s.vm.traceOut, "\tset_pixel idx=%d r=%d g=%d b=%d\n", idx, r, g, b)
		}
		s.vm.strip.SetPixel(idx, r, g, b)
		return true

	case UserBlit:
		s.vm.strip.Blit()
		return true

	case UserRandomInt:
		max, ok := s.pop()
		if !ok {
			return false
		}
		return s.push(s.nextRandom(max))

	case UserGetPixel:
		idx, ok := s.pop()
		if !ok {
			return false
		}
		c := s.vm.strip.GetPixel(idx)
		return s.push((idx & 0xFF) | uint32(c.R)<<8 | uint32(c.G)<<16 | uint32(c.B)<<24)
	}
	// Unreachable: OperandLength already rejected unknown user commands.
	s.setFault(FaultInvalidOpcode)
	return false
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
