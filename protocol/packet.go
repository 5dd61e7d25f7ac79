package protocol

import (
	"errors"
	"fmt"
)

// Packet is one decoded protocol exchange unit. Packets are transient: built
// for a single transmission or handed to a handler right after reception.
type Packet struct {
	Dest    byte
	Src     byte
	Command Command
	Payload []byte
}

var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 250 bytes")

	// ErrChecksumMismatch is returned by Decode when the frame CRC does not
	// match the computed one. The decoded packet is still returned so the
	// caller can identify the sender for an error response.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrFrameTooShort is returned by Decode for buffers that cannot hold
	// the frame their length field declares.
	ErrFrameTooShort = errors.New("protocol: frame too short")
)

// Encode serializes a packet into its wire representation. It fails only if
// the payload does not fit the single length byte budget.
func Encode(dest, src byte, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}

	n := len(payload)
	frame := make([]byte, HeaderSize+n+TrailerSize)
	frame[0] = StartByte
	frame[1] = dest
	frame[2] = src
	frame[3] = byte(cmd)
	frame[4] = byte(n)
	copy(frame[5:], payload)

	crc := CRC16(frame[1 : 5+n])
	frame[5+n] = byte(crc)
	frame[5+n+1] = byte(crc >> 8)
	frame[5+n+2] = EndByte

	return frame, nil
}

// Decode extracts the packet fields from a structurally complete frame and
// verifies its checksum. The caller (normally the frame assembler) guarantees
// the buffer holds at least MinFrameSize bytes and the full frame the length
// field declares; Decode rechecks that bound rather than trusting it.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < MinFrameSize {
		return nil, ErrFrameTooShort
	}

	n := int(frame[4])
	if len(frame) < HeaderSize+n+TrailerSize {
		return nil, ErrFrameTooShort
	}

	p := &Packet{
		Dest:    frame[1],
		Src:     frame[2],
		Command: Command(frame[3]),
	}
	if n > 0 {
		p.Payload = make([]byte, n)
		copy(p.Payload, frame[5:5+n])
	}

	wireCRC := uint16(frame[5+n]) | uint16(frame[5+n+1])<<8
	if CRC16(frame[1:5+n]) != wireCRC {
		return p, ErrChecksumMismatch
	}
	return p, nil
}
