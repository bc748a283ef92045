// Package protocol implements the signed UDP message framing used between
// the server and LED strip devices. Wire format:
//
//	[MAC: 6] [unix time: 4 LE] [type: 1] [payload...] [HMAC-SHA1: 20]
//
// The signature covers everything before it and is keyed with a per-device
// or global shared secret.
package protocol

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// MessageType values are part of the stable wire format.
type MessageType byte

const (
	TypePing MessageType = 0x01 // device announce
	TypePong MessageType = 0x02 // server acknowledge
	TypeSet  MessageType = 0x03 // raw pixel data push
	TypeRun  MessageType = 0x04 // compiled program push
)

func (t MessageType) String() string {
	switch t {
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeSet:
		return "set"
	case TypeRun:
		return "run"
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

const (
	macSize       = 6
	timeSize      = 4
	typeSize      = 1
	headerSize    = macSize + timeSize + typeSize
	signatureSize = sha1.Size
)

var (
	ErrTooShort     = errors.New("message too short")
	ErrBadSignature = errors.New("signature invalid")
)

// Message is one frame of the device protocol. MAC identifies the sender;
// the server uses a nil MAC in its replies.
type Message struct {
	MAC      net.HardwareAddr
	UnixTime uint32
	Type     MessageType
	Payload  []byte
}

// New builds a message stamped with the current time.
func New(t MessageType, mac net.HardwareAddr, payload []byte) *Message {
	return &Message{
		MAC:      mac,
		UnixTime: uint32(time.Now().Unix()),
		Type:     t,
		Payload:  payload,
	}
}

// Signed serializes the message and appends the HMAC-SHA1 signature.
func (m *Message) Signed(secret []byte) []byte {
	buf := make([]byte, 0, headerSize+len(m.Payload)+signatureSize)

	var mac [macSize]byte
	copy(mac[:], m.MAC)
	buf = append(buf, mac[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, m.UnixTime)
	buf = append(buf, byte(m.Type))
	buf = append(buf, m.Payload...)

	h := hmac.New(sha1.New, secret)
	h.Write(buf)
	return h.Sum(buf)
}

// PeekMAC reads the sender MAC without verifying the signature, so a
// receiver can pick the right per-device secret before calling Parse.
func PeekMAC(buf []byte) (net.HardwareAddr, error) {
	if len(buf) < macSize+signatureSize {
		return nil, ErrTooShort
	}
	mac := make(net.HardwareAddr, macSize)
	copy(mac, buf[:macSize])
	return mac, nil
}

// Parse verifies the signature and decodes one message. The returned message
// owns copies of the MAC and payload; buf may be reused.
func Parse(buf, secret []byte) (*Message, error) {
	if len(buf) < headerSize+signatureSize {
		return nil, ErrTooShort
	}
	body := buf[:len(buf)-signatureSize]
	sig := buf[len(buf)-signatureSize:]

	h := hmac.New(sha1.New, secret)
	h.Write(body)
	if !hmac.Equal(sig, h.Sum(nil)) {
		return nil, ErrBadSignature
	}

	m := &Message{
		MAC:      make(net.HardwareAddr, macSize),
		UnixTime: binary.LittleEndian.Uint32(body[macSize : macSize+timeSize]),
		Type:     MessageType(body[macSize+timeSize]),
	}
	copy(m.MAC, body[:macSize])
	if len(body) > headerSize {
		m.Payload = append([]byte(nil), body[headerSize:]...)
	}
	return m, nil
}
