// Command simulator renders a strip program in a desktop window, one VM
// frame per tick. Press space to pause, escape to quit; with -snapshot the
// animation state survives restarts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/colornames"

	"pwlp/pkg/compiler"
	"pwlp/pkg/vm"
)

const (
	cellSize  = 24
	barHeight = 32
)

type Game struct {
	machine *vm.VM
	program *vm.Program
	state   *vm.State
	strip   *vm.MemoryStrip
	budget  int

	snapshotPath string
	paused       bool

	pixels *ebiten.Image
	frame  []byte // RGBA scratch, one row
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if err := g.saveSnapshot(); err != nil {
			log.Printf("snapshot: %v", err)
		}
		return ebiten.Termination
	}
	if g.paused {
		return nil
	}

	switch g.state.Run(g.budget) {
	case vm.Yielded:
	case vm.Halted:
		g.paused = true
	case vm.Faulted:
		log.Printf("program faulted: %s at pc %d", g.state.Fault(), g.state.PC())
		g.paused = true
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(colornames.Darkslategray)

	front := g.strip.Front()
	for i, c := range front {
		g.frame[i*4+0] = c.R
		g.frame[i*4+1] = c.G
		g.frame[i*4+2] = c.B
		g.frame[i*4+3] = 0xFF
	}
	g.pixels.WritePixels(g.frame)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(cellSize, cellSize)
	screen.DrawImage(g.pixels, op)

	status := fmt.Sprintf("%s  instructions=%d", g.state.Status(), g.state.InstructionCount())
	if g.paused {
		status += "  [paused]"
	}
	ebitenutil.DebugPrintAt(screen, status, 4, cellSize+8)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return int(g.strip.Length()) * cellSize, cellSize + barHeight
}

func (g *Game) saveSnapshot() error {
	if g.snapshotPath == "" {
		return nil
	}
	data, err := g.state.Suspend()
	if err != nil {
		return err
	}
	return os.WriteFile(g.snapshotPath, data, 0o644)
}

func loadProgram(path string) (*vm.Program, error) {
	if filepath.Ext(path) == ".bin" {
		return vm.FromFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(string(src))
}

func main() {
	log.SetFlags(0)
	length := flag.Uint("l", 30, "strip length in pixels")
	budget := flag.Int("budget", 100000, "instruction budget per frame")
	deterministic := flag.Bool("d", false, "deterministic time mode")
	snapshot := flag.String("snapshot", "", "persist animation state to this file")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: simulator [flags] program")
	}

	p, err := loadProgram(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	strip := vm.NewMemoryStrip(uint32(*length))
	machine := vm.New(strip)
	machine.SetDeterministic(*deterministic)

	var state *vm.State
	if *snapshot != "" {
		if data, err := os.ReadFile(*snapshot); err == nil {
			state, err = machine.Resume(p, data)
			if err != nil {
				log.Printf("ignoring stale snapshot: %v", err)
				state = nil
			}
		}
	}
	if state == nil {
		state, err = machine.Start(p)
		if err != nil {
			log.Fatal(err)
		}
	}

	g := &Game{
		machine:      machine,
		program:      p,
		state:        state,
		strip:        strip,
		budget:       *budget,
		snapshotPath: *snapshot,
		pixels:       ebiten.NewImage(int(*length), 1),
		frame:        make([]byte, int(*length)*4),
	}

	ebiten.SetWindowSize(int(*length)*cellSize, cellSize+barHeight)
	ebiten.SetWindowTitle("pwlp simulator")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
