// Package client is the device side of the protocol: announce to the
// server, accept programs, drive the VM one frame per tick and push frames
// out through the strip.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"pwlp/pkg/protocol"
	"pwlp/pkg/vm"
)

var log = commonlog.GetLogger("pwlp.client")

type Options struct {
	BindAddress   string
	ServerAddress string
	Secret        []byte
	FrameBudget   int // instructions per frame
	FPS           int
}

// Client owns one VM and swaps programs into it as the server pushes them.
// A faulted program is replaced by the stored default, so a device never
// stays dark because of one bad script.
type Client struct {
	vm             *vm.VM
	defaultProgram *vm.Program
	opts           Options

	// The receive goroutine never touches the VM or the strip directly;
	// programs and raw frames are handed to the run loop through these.
	programs chan *vm.Program
	frames   chan []byte
}

func New(machine *vm.VM, defaultProgram *vm.Program, opts Options) *Client {
	if opts.BindAddress == "" {
		opts.BindAddress = "0.0.0.0:33332"
	}
	if opts.FrameBudget <= 0 {
		opts.FrameBudget = 100000
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	return &Client{
		vm:             machine,
		defaultProgram: defaultProgram,
		opts:           opts,
		programs:       make(chan *vm.Program, 1),
		frames:         make(chan []byte, 1),
	}
}

// ownMAC picks the first non-loopback interface with a hardware address.
func ownMAC() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, it := range ifaces {
		if it.Flags&net.FlagLoopback != 0 || len(it.HardwareAddr) != 6 {
			continue
		}
		return it.HardwareAddr, nil
	}
	return nil, fmt.Errorf("no network interface with a MAC address")
}

// Run announces to the server, then drives the VM at the configured frame
// rate until the socket fails. Blocks.
func (c *Client) Run() error {
	conn, err := net.ListenPacket("udp", c.opts.BindAddress)
	if err != nil {
		return fmt.Errorf("bind %s: %w", c.opts.BindAddress, err)
	}
	defer conn.Close()

	server, err := net.ResolveUDPAddr("udp", c.opts.ServerAddress)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", c.opts.ServerAddress, err)
	}
	mac, err := ownMAC()
	if err != nil {
		return err
	}

	ping := protocol.New(protocol.TypePing, mac, nil)
	if _, err := conn.WriteTo(ping.Signed(c.opts.Secret), server); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	log.Noticef("announced to %s as %s", c.opts.ServerAddress, mac)

	go c.receive(conn)

	state, err := c.vm.Start(c.defaultProgram)
	if err != nil {
		return fmt.Errorf("default program: %w", err)
	}

	ticker := time.NewTicker(time.Second / time.Duration(c.opts.FPS))
	defer ticker.Stop()
	for {
		select {
		case p := <-c.programs:
			st, err := c.vm.Start(p)
			if err != nil {
				log.Errorf("rejected program: %s", err.Error())
				continue
			}
			state = st
			log.Infof("switched to received program (%d bytes)", p.Len())

		case data := <-c.frames:
			c.setPixels(data)

		case <-ticker.C:
			switch state.Run(c.opts.FrameBudget) {
			case vm.Yielded:
				// Next tick resumes after the yield.
			case vm.Halted:
				// A halted script stays halted until a new program arrives.
			case vm.Faulted:
				log.Errorf("program faulted (%s at pc %d), reverting to default",
					state.Fault(), state.PC())
				st, err := c.vm.Start(c.defaultProgram)
				if err != nil {
					return fmt.Errorf("default program: %w", err)
				}
				state = st
			}
		}
	}
}

// receive verifies and dispatches inbound messages until the socket closes.
func (c *Client) receive(conn net.PacketConn) {
	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		m, err := protocol.Parse(buf[:n], c.opts.Secret)
		if err != nil {
			log.Errorf("dropped message: %s", err.Error())
			continue
		}
		c.handleMessage(m)
	}
}

// handleMessage queues a verified message for the run loop. Each channel
// keeps only the newest pending item; a stale program or frame is worthless.
func (c *Client) handleMessage(m *protocol.Message) {
	switch m.Type {
	case protocol.TypeRun:
		p := vm.FromBinary(m.Payload)
		if err := p.Validate(); err != nil {
			log.Errorf("rejected program: %s", err.Error())
			return
		}
		select {
		case <-c.programs:
		default:
		}
		c.programs <- p

	case protocol.TypeSet:
		select {
		case <-c.frames:
		default:
		}
		c.frames <- m.Payload

	case protocol.TypePong:
		log.Infof("server acknowledged at t=%d", m.UnixTime)
	}
}

// setPixels writes raw RGB triplets straight to the strip, bypassing the VM.
func (c *Client) setPixels(data []byte) {
	strip := c.vm.Strip()
	count := uint32(len(data) / 3)
	if l := strip.Length(); count > l {
		count = l
	}
	for i := uint32(0); i < count; i++ {
		strip.SetPixel(i, data[i*3], data[i*3+1], data[i*3+2])
	}
	strip.Blit()
}
