package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// LineDriver is the node's attachment to the physical half-duplex
// transceiver. SetDirection asserts (tx=true) or releases the drive-enable
// signal; Transmit writes a fully encoded frame and blocks until the bytes
// have physically left the wire.
type LineDriver interface {
	SetDirection(tx bool)
	Transmit(frame []byte) error
}

// DefaultTurnaround matches the transceiver switching delay of the
// reference hardware.
const DefaultTurnaround = time.Millisecond

// BusController serializes access to the shared line and owns the
// drive-enable signal. While a transmission is in flight the controller
// reports Driving, and the receive path drops every incoming byte before it
// reaches the frame assembler, so a node never parses its own echo.
type BusController struct {
	mu         sync.Mutex
	driver     LineDriver
	sleeper    Sleeper
	turnaround time.Duration
	driving    atomic.Bool
}

// NewBusController creates a controller in the listening state. A zero
// turnaround is replaced by DefaultTurnaround; a nil sleeper by the system
// one.
func NewBusController(driver LineDriver, turnaround time.Duration, sleeper Sleeper) *BusController {
	if turnaround <= 0 {
		turnaround = DefaultTurnaround
	}
	if sleeper == nil {
		sleeper = SystemSleeper()
	}
	return &BusController{
		driver:     driver,
		sleeper:    sleeper,
		turnaround: turnaround,
	}
}

// Driving reports whether the node is currently driving the line. Incoming
// bytes must be discarded while this is true.
func (b *BusController) Driving() bool {
	return b.driving.Load()
}

// Send drives the line for exactly one frame: assert drive enable, wait the
// transceiver turnaround, write the frame, wait the turnaround again and
// release the line. Reception is suppressed for the whole sequence. Send is
// not re-entrant; concurrent callers are serialized and a sequence once
// started always runs to completion.
func (b *BusController) Send(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.driving.Store(true)
	b.driver.SetDirection(true)
	b.sleeper.Sleep(b.turnaround)

	err := b.driver.Transmit(frame)

	b.sleeper.Sleep(b.turnaround)
	b.driver.SetDirection(false)
	b.driving.Store(false)

	return err
}
