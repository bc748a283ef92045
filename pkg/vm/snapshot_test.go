package vm

import (
	"encoding/json"
	"testing"
)

// randomLoop yields one PRNG draw into register 0 per frame.
func randomLoop() *Program {
	b := NewBuilder()
	top := b.Here()
	b.Push(1000000)
	b.User(UserRandomInt)
	b.Store(0)
	b.Special(SpecialYield)
	b.Jmp(top)
	return b.Build()
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := randomLoop()
	var seed [32]byte
	seed[0] = 42

	v1 := New(NewMemoryStrip(1))
	v1.SetSeed(seed)
	st1, err := v1.Start(p)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if status := st1.Run(100); status != Yielded {
			t.Fatalf("frame %d: status %s", i, status)
		}
	}

	data, err := st1.Suspend()
	if err != nil {
		t.Fatal(err)
	}

	v2 := New(NewMemoryStrip(1))
	v2.SetSeed(seed)
	st2, err := v2.Resume(p, data)
	if err != nil {
		t.Fatal(err)
	}
	if st2.PC() != st1.PC() || st2.Status() != st1.Status() {
		t.Fatalf("resumed pc=%d status=%s, want pc=%d status=%s",
			st2.PC(), st2.Status(), st1.PC(), st1.Status())
	}
	if st2.InstructionCount() != st1.InstructionCount() {
		t.Errorf("icount %d, want %d", st2.InstructionCount(), st1.InstructionCount())
	}

	// The PRNG stream must continue where the suspended run left it: both
	// states draw the same values from here on.
	for i := 0; i < 5; i++ {
		if st1.Run(100) != Yielded || st2.Run(100) != Yielded {
			t.Fatalf("frame %d after resume did not yield", i)
		}
		if st1.Register(0) != st2.Register(0) {
			t.Fatalf("frame %d after resume: draws diverge %d != %d",
				i, st1.Register(0), st2.Register(0))
		}
	}
}

func TestSnapshotPreservesRegistersAndStack(t *testing.T) {
	// Yield mid-expression so a value is live on the stack.
	b := NewBuilder()
	b.Push(11)
	b.Store(0)
	b.Push(7)
	b.Special(SpecialYield)
	b.Store(1)
	p := b.Build()

	v := New(NewMemoryStrip(1))
	st, err := v.Start(p)
	if err != nil {
		t.Fatal(err)
	}
	if status := st.Run(100); status != Yielded {
		t.Fatalf("status %s", status)
	}

	data, err := st.Suspend()
	if err != nil {
		t.Fatal(err)
	}
	st2, err := v.Resume(p, data)
	if err != nil {
		t.Fatal(err)
	}
	if status := st2.Run(100); status != Halted {
		t.Fatalf("resumed status %s (fault %s)", status, st2.Fault())
	}
	if st2.Register(0) != 11 || st2.Register(1) != 7 {
		t.Errorf("regs = %d,%d, want 11,7", st2.Register(0), st2.Register(1))
	}
}

func TestResumeRejectsDifferentProgram(t *testing.T) {
	v := New(NewMemoryStrip(1))
	st, err := v.Start(randomLoop())
	if err != nil {
		t.Fatal(err)
	}
	st.Run(100)
	data, err := st.Suspend()
	if err != nil {
		t.Fatal(err)
	}

	other := NewBuilder()
	other.Special(SpecialYield)
	if _, err := v.Resume(other.Build(), data); err == nil {
		t.Error("expected error resuming against a different program")
	}
}

func TestResumeRejectsOutOfRangePC(t *testing.T) {
	p := randomLoop()
	v := New(NewMemoryStrip(4))

	for _, pc := range []int{-1, p.Len() + 1} {
		data, err := json.Marshal(snapshotState{
			ProgramSHA1: programDigest(p),
			PC:          pc,
			Regs:        make([]uint32, p.SlotCount()),
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.Resume(p, data); err == nil {
			t.Errorf("pc %d: expected error", pc)
		}
	}
}
