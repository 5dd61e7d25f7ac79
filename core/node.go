// Package core implements the node-side protocol engine: bus direction
// control, command dispatch, the node status register and the built-in
// command set shared by every controller variant.
package core

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"busnode/protocol"
)

// heartbeatInterval is how often Tick emits a counters log line.
const heartbeatInterval = 10 * time.Second

// Config configures a node. Only Address is mandatory; zero values select
// the system clock, the system sleeper, the default turnaround and a no-op
// logger.
type Config struct {
	Address    byte
	Turnaround time.Duration
	Clock      Clock
	Sleeper    Sleeper
	Logger     *zerolog.Logger
}

// Node ties the frame assembler, dispatcher, status register and bus
// controller together into one protocol endpoint on the multi-drop line.
//
// HandleByte is the single entry point for received bytes and runs the
// whole receive, validate, dispatch and respond pipeline synchronously,
// including the blocking transmit sequence. A byte arriving while the node
// drives the line is dropped before it reaches the assembler.
type Node struct {
	addr       byte
	clock      Clock
	log        zerolog.Logger
	asm        *protocol.Assembler
	bus        *BusController
	dispatcher *Dispatcher
	status     *StatusRegister

	boot     time.Time
	lastBeat time.Time
}

// NewNode creates a node in the listening state with the built-in handlers
// (ping, get-version, heartbeat, get-status) pre-registered. Collaborator
// handlers must be registered before the byte source starts delivering.
func NewNode(cfg Config, driver LineDriver) *Node {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	n := &Node{
		addr:   cfg.Address,
		clock:  clock,
		log:    logger.With().Uint8("node", cfg.Address).Logger(),
		asm:    protocol.NewAssembler(clock.Now),
		status: NewStatusRegister(cfg.Address),
		boot:   clock.Now(),
	}
	n.lastBeat = n.boot
	n.dispatcher = NewDispatcher(cfg.Address, n.status)
	n.bus = NewBusController(driver, cfg.Turnaround, cfg.Sleeper)
	n.registerBuiltins()

	n.log.Info().Str("version", VersionString()).Msg("protocol initialized")
	return n
}

// Address returns the node's bus address.
func (n *Node) Address() byte { return n.addr }

// Status returns the node's status register.
func (n *Node) Status() *StatusRegister { return n.status }

// Register installs a command handler; re-registration overrides, including
// the built-ins.
func (n *Node) Register(cmd protocol.Command, h Handler) {
	n.dispatcher.Register(cmd, h)
}

// HandleByte consumes one byte from the line, in arrival order. It must not
// be called concurrently with itself; the byte source is a single reader.
func (n *Node) HandleByte(b byte) {
	if n.bus.Driving() {
		// Self-echo while transmitting, drop before the assembler.
		return
	}

	frame, err := n.asm.Feed(b)
	if err != nil {
		// Framing errors carry no trustworthy sender, count and move on.
		n.status.addError()
	}
	if frame == nil {
		return
	}
	n.processFrame(frame)
}

func (n *Node) processFrame(frame []byte) {
	pkt, err := protocol.Decode(frame)
	if err != nil {
		n.status.addError()
		if errors.Is(err, protocol.ErrChecksumMismatch) && pkt != nil {
			// Structurally complete, so the sender is known.
			n.sendError(pkt.Src, protocol.ErrInvalidChecksum)
		}
		return
	}

	if err := n.dispatcher.Dispatch(pkt, responder{n: n, dest: pkt.Src}); err != nil {
		n.log.Error().Err(err).Uint8("cmd", byte(pkt.Command)).Msg("handler failed")
	}
}

// Send encodes a packet from this node and drives it onto the line.
// Transmit failures are counted and reported to the caller; there is no
// retry.
func (n *Node) Send(dest byte, cmd protocol.Command, payload []byte) error {
	frame, err := protocol.Encode(dest, n.addr, cmd, payload)
	if err != nil {
		return err
	}
	if err := n.bus.Send(frame); err != nil {
		n.status.addError()
		n.log.Error().Err(err).Uint8("dest", dest).Uint8("cmd", byte(cmd)).Msg("tx failed")
		return err
	}
	n.status.addTx()
	n.log.Debug().Uint8("dest", dest).Uint8("cmd", byte(cmd)).Int("len", len(payload)).Msg("tx")
	return nil
}

func (n *Node) sendError(dest byte, code protocol.ErrorCode) error {
	return n.Send(dest, protocol.CmdErrorResponse, []byte{byte(code), n.addr})
}

// Tick refreshes the uptime from the clock and emits the periodic heartbeat
// log line. Call it from the main loop; there is no fixed period guarantee
// beyond "often".
func (n *Node) Tick() {
	now := n.clock.Now()
	n.status.setUptime(uint32(now.Sub(n.boot) / time.Second))

	if now.Sub(n.lastBeat) >= heartbeatInterval {
		n.lastBeat = now
		n.log.Info().
			Uint32("uptime", n.status.Uptime()).
			Uint32("rx", n.status.RxCount()).
			Uint32("tx", n.status.TxCount()).
			Uint32("errors", n.status.ErrorCount()).
			Uint8("health", n.status.Health()).
			Msg("heartbeat")
	}
}

// responder binds a ResponseWriter to the source of the request being
// dispatched.
type responder struct {
	n    *Node
	dest byte
}

func (r responder) Respond(cmd protocol.Command, payload []byte) error {
	return r.n.Send(r.dest, cmd, payload)
}

func (r responder) Error(code protocol.ErrorCode) error {
	return r.n.sendError(r.dest, code)
}

func (n *Node) registerBuiltins() {
	n.Register(protocol.CmdPing, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		return w.Respond(protocol.CmdPingResponse, nil)
	}))

	n.Register(protocol.CmdGetVersion, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		payload := []byte{
			VersionMajor, VersionMinor, VersionPatch, BuildNumber,
			n.addr,
			0, 0, 0, // reserved
		}
		return w.Respond(protocol.CmdVersionResponse, payload)
	}))

	n.Register(protocol.CmdHeartbeat, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		return w.Respond(protocol.CmdHeartbeatResponse, []byte{n.addr, n.status.Health()})
	}))

	n.Register(protocol.CmdGetStatus, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		return w.Respond(protocol.CmdStatusResponse, n.status.Payload())
	}))
}
