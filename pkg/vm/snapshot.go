package vm

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// snapshotState is the JSON-serializable image of a State. The ChaCha20
// stream cannot be serialized directly; the draw count is stored instead and
// the stream is re-derived and fast-forwarded on resume.
type snapshotState struct {
	ProgramSHA1 string   `json:"program_sha1"`
	PC          int      `json:"pc"`
	Stack       []uint32 `json:"stack"`
	Regs        []uint32 `json:"regs"`
	ICount      uint64   `json:"icount"`
	RNGDraws    uint64   `json:"rng_draws"`
	Status      int      `json:"status"`
	Fault       int      `json:"fault"`
}

func programDigest(p *Program) string {
	sum := sha1.Sum(p.code)
	return hex.EncodeToString(sum[:])
}

// Suspend serializes the state so a host can persist a running animation
// across restarts. The program itself is not included; it is identified by
// digest and must be supplied again on Resume.
func (s *State) Suspend() ([]byte, error) {
	snap := snapshotState{
		ProgramSHA1: programDigest(s.program),
		PC:          s.pc,
		Stack:       append([]uint32(nil), s.stack...),
		Regs:        append([]uint32(nil), s.regs...),
		ICount:      s.icount,
		RNGDraws:    s.rngDraws,
		Status:      int(s.status),
		Fault:       int(s.fault),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Resume rebuilds a State from a Suspend snapshot taken against the same
// program and the same VM seed.
func (vm *VM) Resume(p *Program, data []byte) (*State, error) {
	var snap snapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.ProgramSHA1 != programDigest(p) {
		return nil, fmt.Errorf("snapshot was taken against a different program")
	}

	s, err := vm.Start(p)
	if err != nil {
		return nil, err
	}
	if len(snap.Regs) != len(s.regs) {
		return nil, fmt.Errorf("snapshot register file size %d does not match program (%d)",
			len(snap.Regs), len(s.regs))
	}
	if len(snap.Stack) > MaxStackDepth {
		return nil, fmt.Errorf("snapshot stack exceeds maximum depth")
	}
	if snap.PC < 0 || snap.PC > p.Len() {
		return nil, fmt.Errorf("snapshot pc %d outside program of %d bytes", snap.PC, p.Len())
	}

	s.pc = snap.PC
	s.stack = append(s.stack, snap.Stack...)
	copy(s.regs, snap.Regs)
	s.icount = snap.ICount
	s.status = Status(snap.Status)
	s.fault = FaultReason(snap.Fault)

	// Fast-forward the PRNG to where the suspended run left it.
	var buf [4]byte
	for i := uint64(0); i < snap.RNGDraws; i++ {
		s.rng.XORKeyStream(buf[:], buf[:])
	}
	s.rngDraws = snap.RNGDraws
	return s, nil
}
