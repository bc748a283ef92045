// Command pwlp is the toolchain entry point: compile scripts, assemble and
// disassemble bytecode, run programs locally, serve devices, or act as one.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"pwlp/pkg/asm"
	"pwlp/pkg/client"
	"pwlp/pkg/compiler"
	"pwlp/pkg/server"
	"pwlp/pkg/vm"
)

const usage = `usage: pwlp <command> [flags]

commands:
  compile   compile a script to bytecode
  asm       assemble bytecode text to binary
  disasm    print a binary program as bytecode text
  run       compile (or load) a program and run it locally
  serve     run the device server
  client    run as a device client
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "compile":
		cmdCompile(os.Args[2:])
	case "asm":
		cmdAsm(os.Args[2:])
	case "disasm":
		cmdDisasm(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "client":
		cmdClient(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// loadProgram reads either a compiled .bin program or a script source,
// decided by extension.
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

func cmdCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	out := fs.String("o", "out.bin", "output file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("compile: expected one source file")
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	p, err := compiler.Compile(string(src))
	if err != nil {
		log.Fatalf("%s: %v", fs.Arg(0), err)
	}
	if err := os.WriteFile(*out, p.Code(), 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, p.Len())
}

func cmdAsm(args []string) {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "out.bin", "output file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("asm: expected one input file")
	}

	text, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	code, err := asm.Assemble(string(text))
	if err != nil {
		log.Fatalf("%s: %v", fs.Arg(0), err)
	}
	if err := os.WriteFile(*out, code, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(code))
}

func cmdDisasm(args []string) {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("disasm: expected one program file")
	}

	p, err := loadProgram(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	text, err := asm.Disassemble(p.Code())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(text)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	length := fs.Uint("l", 10, "strip length in pixels")
	budget := fs.Int("budget", 100000, "instruction budget per frame")
	fps := fs.Int("fps", 20, "frames per second")
	frames := fs.Int("frames", 0, "stop after this many frames (0 = run forever)")
	deterministic := fs.Bool("d", false, "deterministic time mode")
	trace := fs.Bool("trace", false, "trace every instruction")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("run: expected one program or source file")
	}

	p, err := loadProgram(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	strip := vm.NewMemoryStrip(uint32(*length))
	machine := vm.New(strip)
	machine.SetDeterministic(*deterministic)
	machine.SetTrace(*trace)
	state, err := machine.Start(p)
	if err != nil {
		log.Fatal(err)
	}

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()
	for frame := 0; *frames == 0 || frame < *frames; frame++ {
		switch state.Run(*budget) {
		case vm.Yielded:
			fmt.Println(strip.String())
		case vm.Halted:
			fmt.Println(strip.String())
			return
		case vm.Faulted:
			log.Fatalf("faulted at pc %d: %s", state.PC(), state.Fault())
		}
		<-ticker.C
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("c", "config.toml", "config file")
	fs.Parse(args)

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Program == "" {
		log.Fatal("serve: config sets no default program")
	}
	p, err := loadProgram(cfg.Program)
	if err != nil {
		log.Fatal(err)
	}
	if err := server.New(cfg, p).Run(); err != nil {
		log.Fatal(err)
	}
}

func cmdClient(args []string) {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	serverAddr := fs.String("server", "127.0.0.1:33333", "server address")
	bind := fs.String("bind", "0.0.0.0:33332", "bind address")
	secret := fs.String("secret", "secret", "shared secret")
	length := fs.Uint("l", 10, "strip length in pixels")
	budget := fs.Int("budget", 100000, "instruction budget per frame")
	fps := fs.Int("fps", 60, "frames per second")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("client: expected a default program or source file")
	}

	p, err := loadProgram(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	machine := vm.New(vm.NewMemoryStrip(uint32(*length)))
	c := client.New(machine, p, client.Options{
		BindAddress:   *bind,
		ServerAddress: *serverAddr,
		Secret:        []byte(*secret),
		FrameBudget:   *budget,
		FPS:           *fps,
	})
	if err := c.Run(); err != nil {
		log.Fatal(err)
	}
}
