package vm

import (
	"fmt"
	"strings"
)

// Color is one pixel of the strip.
type Color struct {
	R, G, B uint8
}

// Strip is the host framebuffer capability the VM draws against. SetPixel
// and GetPixel operate on a working buffer that only becomes visible on the
// output medium when Blit is called, so a script can read back its own
// writes within a frame. Behaviour for out-of-range indices is host-defined.
type Strip interface {
	Length() uint32
	SetPixel(i uint32, r, g, b uint8)
	GetPixel(i uint32) Color
	Blit()
}

// MemoryStrip is a pure in-memory Strip with a working and a front buffer.
// It stands in for real hardware in tests, on the server, and in the
// simulator. Out-of-range indices are ignored.
type MemoryStrip struct {
	working []Color
	front   []Color
}

func NewMemoryStrip(length uint32) *MemoryStrip {
	return &MemoryStrip{
		working: make([]Color, length),
		front:   make([]Color, length),
	}
}

func (s *MemoryStrip) Length() uint32 {
	return uint32(len(s.working))
}

func (s *MemoryStrip) SetPixel(i uint32, r, g, b uint8) {
	if int(i) >= len(s.working) {
		return
	}
	s.working[i] = Color{R: r, G: g, B: b}
}

func (s *MemoryStrip) GetPixel(i uint32) Color {
	if int(i) >= len(s.working) {
		return Color{}
	}
	return s.working[i]
}

func (s *MemoryStrip) Blit() {
	copy(s.front, s.working)
}

// Front returns the last blitted frame. The slice is owned by the strip;
// callers must not modify it.
func (s *MemoryStrip) Front() []Color {
	return s.front
}

// String renders the front buffer as hex triplets, one per pixel.
func (s *MemoryStrip) String() string {
	var sb strings.Builder
	for i, c := range s.front {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x%02x%02x", c.R, c.G, c.B)
	}
	return sb.String()
}
