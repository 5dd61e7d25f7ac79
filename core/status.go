package core

import (
	"encoding/binary"
	"sync/atomic"
)

// StatusRegister holds the node-wide counters shared between the receive
// path, the transmit path and the periodic tick. Counters only grow; they
// are reset at boot and never after.
type StatusRegister struct {
	nodeID byte

	health atomic.Uint32 // 0-100 percent
	uptime atomic.Uint32 // seconds since boot
	errors atomic.Uint32
	rx     atomic.Uint32
	tx     atomic.Uint32
}

// NewStatusRegister creates a register for a node booting at full health.
func NewStatusRegister(nodeID byte) *StatusRegister {
	s := &StatusRegister{nodeID: nodeID}
	s.health.Store(100)
	return s
}

// NodeID returns the address baked in at boot.
func (s *StatusRegister) NodeID() byte { return s.nodeID }

// Health returns the current health percentage.
func (s *StatusRegister) Health() byte { return byte(s.health.Load()) }

// SetHealth updates the health percentage, clamped to 100.
func (s *StatusRegister) SetHealth(pct byte) {
	if pct > 100 {
		pct = 100
	}
	s.health.Store(uint32(pct))
}

// Uptime returns seconds since boot as of the last tick.
func (s *StatusRegister) Uptime() uint32 { return s.uptime.Load() }

func (s *StatusRegister) setUptime(seconds uint32) { s.uptime.Store(seconds) }

// ErrorCount returns the accumulated framing, checksum and transmit errors.
func (s *StatusRegister) ErrorCount() uint32 { return s.errors.Load() }

// RxCount returns how many valid packets addressed to this node arrived.
func (s *StatusRegister) RxCount() uint32 { return s.rx.Load() }

// TxCount returns how many packets were successfully transmitted.
func (s *StatusRegister) TxCount() uint32 { return s.tx.Load() }

func (s *StatusRegister) addError() { s.errors.Add(1) }
func (s *StatusRegister) addRx()    { s.rx.Add(1) }
func (s *StatusRegister) addTx()    { s.tx.Add(1) }

// StatusPayloadSize is the wire size of a status response payload.
const StatusPayloadSize = 16

// Payload encodes the register into the 16-byte status response layout:
// id, health, uptime u32, error count u32, rx count u32, tx count u16, all
// little-endian. The tx counter is truncated to 16 bits on the wire.
func (s *StatusRegister) Payload() []byte {
	p := make([]byte, StatusPayloadSize)
	p[0] = s.nodeID
	p[1] = s.Health()
	binary.LittleEndian.PutUint32(p[2:], s.Uptime())
	binary.LittleEndian.PutUint32(p[6:], s.ErrorCount())
	binary.LittleEndian.PutUint32(p[10:], s.RxCount())
	binary.LittleEndian.PutUint16(p[14:], uint16(s.TxCount()))
	return p
}
