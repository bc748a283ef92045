package client

import (
	"testing"

	"pwlp/pkg/protocol"
	"pwlp/pkg/vm"
)

func TestSetPixelsWritesAndBlits(t *testing.T) {
	strip := vm.NewMemoryStrip(3)
	c := New(vm.New(strip), nil, Options{})

	c.setPixels([]byte{1, 2, 3, 4, 5, 6})
	front := strip.Front()
	if front[0] != (vm.Color{R: 1, G: 2, B: 3}) || front[1] != (vm.Color{R: 4, G: 5, B: 6}) {
		t.Errorf("front = %v", front)
	}
	if front[2] != (vm.Color{}) {
		t.Errorf("pixel 2 = %v, want untouched", front[2])
	}
}

func TestSetPixelsClampsToStripLength(t *testing.T) {
	strip := vm.NewMemoryStrip(1)
	c := New(vm.New(strip), nil, Options{})

	// Two triplets plus a trailing partial byte; only pixel 0 fits.
	c.setPixels([]byte{9, 9, 9, 1, 1, 1, 7})
	if strip.Front()[0] != (vm.Color{R: 9, G: 9, B: 9}) {
		t.Errorf("pixel 0 = %v", strip.Front()[0])
	}
}

// The receive path must never write the strip itself; the run loop owns it.
// Set frames are queued, newest wins.
func TestSetFrameIsQueuedNotApplied(t *testing.T) {
	strip := vm.NewMemoryStrip(2)
	c := New(vm.New(strip), nil, Options{})

	c.handleMessage(&protocol.Message{Type: protocol.TypeSet, Payload: []byte{1, 2, 3}})
	c.handleMessage(&protocol.Message{Type: protocol.TypeSet, Payload: []byte{7, 8, 9}})

	if strip.GetPixel(0) != (vm.Color{}) || strip.Front()[0] != (vm.Color{}) {
		t.Error("handleMessage wrote the strip directly")
	}

	select {
	case data := <-c.frames:
		c.setPixels(data)
	default:
		t.Fatal("no frame queued")
	}
	if strip.Front()[0] != (vm.Color{R: 7, G: 8, B: 9}) {
		t.Errorf("pixel 0 = %v, want the newest frame", strip.Front()[0])
	}
}

func TestRunProgramIsValidatedAndQueued(t *testing.T) {
	c := New(vm.New(vm.NewMemoryStrip(1)), nil, Options{})

	// 0xB0 is not a valid opcode; the program must be rejected at the door.
	c.handleMessage(&protocol.Message{Type: protocol.TypeRun, Payload: []byte{0xB0}})
	select {
	case <-c.programs:
		t.Fatal("invalid program was queued")
	default:
	}

	b := vm.NewBuilder()
	b.Special(vm.SpecialYield)
	c.handleMessage(&protocol.Message{Type: protocol.TypeRun, Payload: b.Build().Code()})
	select {
	case <-c.programs:
	default:
		t.Fatal("valid program was not queued")
	}
}

func TestOptionDefaults(t *testing.T) {
	c := New(vm.New(vm.NewMemoryStrip(1)), nil, Options{})
	if c.opts.FPS <= 0 || c.opts.FrameBudget <= 0 || c.opts.BindAddress == "" {
		t.Errorf("defaults not applied: %+v", c.opts)
	}
}
