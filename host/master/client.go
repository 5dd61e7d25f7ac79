// Package master implements the master side of the bus: a request/response
// client that polls nodes over a serial port.
package master

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"busnode/host/serial"
	"busnode/protocol"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 1 * time.Second

// ErrTimeout is returned when a node does not answer within the exchange
// timeout.
var ErrTimeout = errors.New("master: response timeout")

// BusError is a node-reported failure: the error-response payload decoded
// into the code and the replying node's address.
type BusError struct {
	Code protocol.ErrorCode
	Node byte
}

func (e *BusError) Error() string {
	return fmt.Sprintf("master: node 0x%02X reported %s", e.Node, e.Code)
}

// Version is a decoded version-response payload.
type Version struct {
	Major, Minor, Patch byte
	Build               byte
	Address             byte
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d build %d", v.Major, v.Minor, v.Patch, v.Build)
}

// NodeStatus is a decoded status-response payload.
type NodeStatus struct {
	NodeID  byte
	Health  byte
	Uptime  uint32
	Errors  uint32
	RxCount uint32
	TxCount uint16
}

// AnalogRecord is one decoded analog channel: raw ADC count plus the
// engineering value (mA, V or degC depending on the group).
type AnalogRecord struct {
	Raw   uint16
	Value float32
}

// Config configures a client. Zero values select the master address, the
// default timeout and a no-op logger.
type Config struct {
	Address byte
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Client runs request/response exchanges on the bus. It assumes exclusive
// use of the port and must not be called concurrently; the bus itself is
// half-duplex, one exchange at a time.
type Client struct {
	port    serial.Port
	addr    byte
	timeout time.Duration
	log     zerolog.Logger

	fifo *protocol.Fifo
	asm  *protocol.Assembler
}

// NewClient creates a client on an open port.
func NewClient(port serial.Port, cfg Config) *Client {
	addr := cfg.Address
	if addr == 0 {
		addr = protocol.AddrMaster
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		port:    port,
		addr:    addr,
		timeout: timeout,
		log:     logger.With().Str("role", "master").Logger(),
		fifo:    protocol.NewFifo(2 * protocol.MaxFrameSize),
		asm:     protocol.NewAssembler(nil),
	}
}

// Close closes the underlying port.
func (c *Client) Close() error {
	return c.port.Close()
}

// roundTrip writes one request frame and waits for the matching response.
// Frames from other nodes and corrupt frames are skipped; an error response
// from the target surfaces as *BusError.
func (c *Client) roundTrip(dest byte, cmd protocol.Command, payload []byte) (*protocol.Packet, error) {
	frame, err := protocol.Encode(dest, c.addr, cmd, payload)
	if err != nil {
		return nil, err
	}

	c.asm.Reset()
	c.fifo.Reset()

	if _, err := c.port.Write(frame); err != nil {
		return nil, fmt.Errorf("master: write failed: %w", err)
	}
	c.log.Debug().Uint8("dest", dest).Uint8("cmd", byte(cmd)).Int("len", len(payload)).Msg("request")

	deadline := time.Now().Add(c.timeout)
	chunk := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := c.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("master: read failed: %w", err)
		}
		if n == 0 {
			// Port read timeout, poll again until the deadline.
			continue
		}
		c.fifo.Write(chunk[:n])

		for {
			b, ok := c.fifo.Next()
			if !ok {
				break
			}
			raw, err := c.asm.Feed(b)
			if err != nil {
				c.log.Warn().Err(err).Msg("framing error")
				continue
			}
			if raw == nil {
				continue
			}
			pkt, err := protocol.Decode(raw)
			if err != nil {
				c.log.Warn().Err(err).Msg("dropping corrupt frame")
				continue
			}
			if pkt.Dest != c.addr {
				// Another exchange on the shared bus.
				continue
			}
			if pkt.Command == protocol.CmdErrorResponse && len(pkt.Payload) >= 2 {
				return nil, &BusError{Code: protocol.ErrorCode(pkt.Payload[0]), Node: pkt.Payload[1]}
			}
			return pkt, nil
		}
	}
	return nil, fmt.Errorf("%w: node 0x%02X cmd 0x%02X", ErrTimeout, dest, byte(cmd))
}

// Ping checks that a node is alive.
func (c *Client) Ping(dest byte) error {
	pkt, err := c.roundTrip(dest, protocol.CmdPing, nil)
	if err != nil {
		return err
	}
	if pkt.Command != protocol.CmdPingResponse {
		return fmt.Errorf("master: unexpected response 0x%02X to ping", byte(pkt.Command))
	}
	return nil
}

// GetVersion reads a node's firmware version.
func (c *Client) GetVersion(dest byte) (Version, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdGetVersion, nil)
	if err != nil {
		return Version{}, err
	}
	if pkt.Command != protocol.CmdVersionResponse || len(pkt.Payload) < 5 {
		return Version{}, fmt.Errorf("master: malformed version response from 0x%02X", dest)
	}
	p := pkt.Payload
	return Version{Major: p[0], Minor: p[1], Patch: p[2], Build: p[3], Address: p[4]}, nil
}

// Heartbeat exchanges a heartbeat and returns the node's health percentage.
func (c *Client) Heartbeat(dest byte) (byte, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdHeartbeat, nil)
	if err != nil {
		return 0, err
	}
	if pkt.Command != protocol.CmdHeartbeatResponse || len(pkt.Payload) < 2 {
		return 0, fmt.Errorf("master: malformed heartbeat response from 0x%02X", dest)
	}
	return pkt.Payload[1], nil
}

// GetStatus reads and decodes a node's status register.
func (c *Client) GetStatus(dest byte) (NodeStatus, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdGetStatus, nil)
	if err != nil {
		return NodeStatus{}, err
	}
	if pkt.Command != protocol.CmdStatusResponse || len(pkt.Payload) < 16 {
		return NodeStatus{}, fmt.Errorf("master: malformed status response from 0x%02X", dest)
	}
	p := pkt.Payload
	return NodeStatus{
		NodeID:  p[0],
		Health:  p[1],
		Uptime:  binary.LittleEndian.Uint32(p[2:]),
		Errors:  binary.LittleEndian.Uint32(p[6:]),
		RxCount: binary.LittleEndian.Uint32(p[10:]),
		TxCount: binary.LittleEndian.Uint16(p[14:]),
	}, nil
}

// ReadInputs reads a node's digital inputs as a little-endian bitmask.
func (c *Client) ReadInputs(dest byte) ([]byte, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdReadDI, nil)
	if err != nil {
		return nil, err
	}
	if pkt.Command != protocol.CmdDIResponse {
		return nil, fmt.Errorf("master: unexpected response 0x%02X to read-inputs", byte(pkt.Command))
	}
	return pkt.Payload, nil
}

// WriteOutputs applies a little-endian output bitmask on a node.
func (c *Client) WriteOutputs(dest byte, mask []byte) error {
	pkt, err := c.roundTrip(dest, protocol.CmdWriteDO, mask)
	if err != nil {
		return err
	}
	if pkt.Command != protocol.CmdDOResponse {
		return fmt.Errorf("master: unexpected response 0x%02X to write-outputs", byte(pkt.Command))
	}
	return nil
}

// ReadOutputs reads back a node's commanded output bitmask.
func (c *Client) ReadOutputs(dest byte) ([]byte, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdReadDO, nil)
	if err != nil {
		return nil, err
	}
	if pkt.Command != protocol.CmdDOResponse {
		return nil, fmt.Errorf("master: unexpected response 0x%02X to read-outputs", byte(pkt.Command))
	}
	return pkt.Payload, nil
}

// ReadAnalogGroup reads one analog channel group and decodes its records.
func (c *Client) ReadAnalogGroup(dest byte, group byte) ([]AnalogRecord, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdReadAnalog, []byte{group})
	if err != nil {
		return nil, err
	}
	return decodeAnalog(pkt)
}

// ReadAnalog reads every analog channel of a node in sequencer order.
func (c *Client) ReadAnalog(dest byte) ([]AnalogRecord, error) {
	pkt, err := c.roundTrip(dest, protocol.CmdReadAnalog, nil)
	if err != nil {
		return nil, err
	}
	return decodeAnalog(pkt)
}

func decodeAnalog(pkt *protocol.Packet) ([]AnalogRecord, error) {
	if pkt.Command != protocol.CmdAnalogResponse {
		return nil, fmt.Errorf("master: unexpected response 0x%02X to read-analog", byte(pkt.Command))
	}
	const recordSize = 6
	if len(pkt.Payload)%recordSize != 0 {
		return nil, fmt.Errorf("master: analog payload length %d is not a record multiple", len(pkt.Payload))
	}
	records := make([]AnalogRecord, len(pkt.Payload)/recordSize)
	for i := range records {
		off := i * recordSize
		records[i] = AnalogRecord{
			Raw:   binary.LittleEndian.Uint16(pkt.Payload[off:]),
			Value: math.Float32frombits(binary.LittleEndian.Uint32(pkt.Payload[off+2:])),
		}
	}
	return records, nil
}
