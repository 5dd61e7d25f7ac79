// Package protocol implements the RS-485 multi-drop wire protocol shared by
// all I/O nodes: CRC validation, packet encode/decode and the byte-at-a-time
// frame assembler.
package protocol

import "time"

// Frame layout constants. A frame on the wire is:
//
//	0xAA | dest | src | command | length | payload... | crcLo | crcHi | 0x55
//
// The CRC covers dest through the last payload byte.
const (
	StartByte = 0xAA
	EndByte   = 0x55

	HeaderSize  = 5 // start byte + dest + src + command + length
	TrailerSize = 3 // crc (2) + end byte

	MaxPayload   = 250
	MinFrameSize = HeaderSize + TrailerSize
	MaxFrameSize = 256 // fixed assembler capacity, overflow guard

	// IdleTimeout is the maximum gap between two bytes of one frame before
	// the assembler discards the partial frame and resynchronizes.
	IdleTimeout = 500 * time.Millisecond
)

// Bus addresses. Address 0x00 is matched by every node's filter but never
// used as a reply target by the master.
const (
	AddrBroadcast     = 0x00
	AddrController420 = 0x01
	AddrControllerDIO = 0x02
	AddrControllerOUT = 0x03
	AddrMaster        = 0x10
)

// Command identifies the operation carried by a packet.
type Command byte

// Command codes. Requests originate from the master, responses from nodes.
const (
	CmdPing              Command = 0x01
	CmdPingResponse      Command = 0x02
	CmdGetVersion        Command = 0x03
	CmdVersionResponse   Command = 0x04
	CmdHeartbeat         Command = 0x05
	CmdHeartbeatResponse Command = 0x06
	CmdGetStatus         Command = 0x10
	CmdStatusResponse    Command = 0x11
	CmdReadDI            Command = 0x20
	CmdDIResponse        Command = 0x21
	CmdWriteDO           Command = 0x30
	CmdDOResponse        Command = 0x31
	CmdReadDO            Command = 0x32
	CmdReadAnalog        Command = 0x40
	CmdAnalogResponse    Command = 0x41
	CmdErrorResponse     Command = 0xFF
)

// ErrorCode is carried in the first payload byte of an error response; the
// second byte is the address of the replying node.
type ErrorCode byte

const (
	ErrNone            ErrorCode = 0x00
	ErrInvalidChecksum ErrorCode = 0x01
	ErrInvalidAddress  ErrorCode = 0x02
	ErrInvalidCommand  ErrorCode = 0x03
	ErrInvalidLength   ErrorCode = 0x04
	ErrTimeout         ErrorCode = 0x05
	ErrBusy            ErrorCode = 0x06
)

// String returns a short name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrInvalidChecksum:
		return "invalid checksum"
	case ErrInvalidAddress:
		return "invalid address"
	case ErrInvalidCommand:
		return "invalid command"
	case ErrInvalidLength:
		return "invalid length"
	case ErrTimeout:
		return "timeout"
	case ErrBusy:
		return "busy"
	}
	return "unknown"
}
