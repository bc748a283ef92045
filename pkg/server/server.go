// Package server hosts the device-facing side of the protocol: a UDP
// listener answering device announcements with the program each device
// should run, a registry of the devices seen so far, and an optional HTTP
// status API over that registry.
package server

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"pwlp/pkg/protocol"
	"pwlp/pkg/vm"
)

var log = commonlog.GetLogger("pwlp.server")

// Device is one registry entry, keyed by canonical MAC.
type Device struct {
	MAC         string    `json:"mac"`
	Address     string    `json:"address"`
	LastSeen    time.Time `json:"last_seen"`
	ProgramSize int       `json:"program_size"`
}

// Server answers Ping messages with a Pong followed by a Run carrying the
// device's program. Per-device secrets and programs come from the config;
// everything else falls back to the defaults.
type Server struct {
	config         *Config
	defaultProgram *vm.Program

	mu      sync.Mutex
	devices map[string]*Device
}

func New(config *Config, defaultProgram *vm.Program) *Server {
	return &Server{
		config:         config,
		defaultProgram: defaultProgram,
		devices:        make(map[string]*Device),
	}
}

// canonicalMAC is the registry and config key form: lower-case, colons.
func canonicalMAC(mac net.HardwareAddr) string {
	return strings.ToLower(mac.String())
}

func (s *Server) secretFor(mac string) []byte {
	if d, ok := s.config.Devices[mac]; ok && d.Secret != "" {
		return []byte(d.Secret)
	}
	return []byte(s.config.Secret)
}

func (s *Server) programFor(mac string) (*vm.Program, error) {
	if d, ok := s.config.Devices[mac]; ok && d.Program != "" {
		return vm.FromFile(d.Program)
	}
	return s.defaultProgram, nil
}

func (s *Server) touch(mac, address string, programSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mac]
	if !ok {
		d = &Device{MAC: mac}
		s.devices[mac] = d
	}
	d.Address = address
	d.LastSeen = time.Now()
	d.ProgramSize = programSize
}

// Devices returns a snapshot of the registry.
func (s *Server) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	return out
}

// handle processes one datagram and returns the signed replies to send back,
// in order. It never returns an error: bad datagrams are logged and dropped,
// since anyone can throw bytes at a UDP port.
func (s *Server) handle(buf []byte, source string) [][]byte {
	mac, err := protocol.PeekMAC(buf)
	if err != nil {
		log.Errorf("%s: unreadable datagram: %s", source, err.Error())
		return nil
	}
	canonical := canonicalMAC(mac)
	secret := s.secretFor(canonical)

	m, err := protocol.Parse(buf, secret)
	if err != nil {
		log.Errorf("%s (%s): %s (size=%db)", source, canonical, err.Error(), len(buf))
		return nil
	}
	log.Infof("%s @ %s: %s t=%d", canonical, source, m.Type.String(), m.UnixTime)

	switch m.Type {
	case protocol.TypePing:
		program, err := s.programFor(canonical)
		if err != nil {
			log.Errorf("%s: cannot load program: %s", canonical, err.Error())
			return nil
		}
		s.touch(canonical, source, program.Len())

		pong := &protocol.Message{
			MAC:      make(net.HardwareAddr, 6),
			UnixTime: m.UnixTime,
			Type:     protocol.TypePong,
		}
		run := &protocol.Message{
			MAC:      make(net.HardwareAddr, 6),
			UnixTime: m.UnixTime,
			Type:     protocol.TypeRun,
			Payload:  program.Code(),
		}
		return [][]byte{pong.Signed(secret), run.Signed(secret)}

	case protocol.TypePong:
		// Ignore.
	}
	return nil
}

// Run binds the UDP socket and serves until the socket fails. The HTTP API,
// when enabled, runs on its own goroutine.
func (s *Server) Run() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.BindAddress)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.config.BindAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.config.BindAddress, err)
	}
	defer conn.Close()
	log.Noticef("listening at %s", s.config.BindAddress)

	if s.config.API.Enabled {
		go func() {
			if err := s.serveAPI(); err != nil {
				log.Errorf("status API: %s", err.Error())
			}
		}()
	}

	buf := make([]byte, 1500)
	for {
		n, source, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		for _, reply := range s.handle(buf[:n], source.String()) {
			if _, err := conn.WriteToUDP(reply, source); err != nil {
				log.Errorf("send to %s: %s", source, err.Error())
			}
		}
	}
}
