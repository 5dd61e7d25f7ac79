package core

import (
	"sync"

	"busnode/protocol"
)

// ResponseWriter lets a handler send at most one reply for the packet being
// dispatched. Replies go back through the bus direction controller to the
// source of the request.
type ResponseWriter interface {
	// Respond encodes and transmits a response packet.
	Respond(cmd protocol.Command, payload []byte) error

	// Error transmits a standard error response carrying the code and the
	// replying node's address.
	Error(code protocol.ErrorCode) error
}

// Handler processes one validated packet addressed to this node. Handlers
// close over whatever collaborator state they need (output banks, analog
// banks) and produce zero or one response through w.
type Handler interface {
	Handle(req *protocol.Packet, w ResponseWriter) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(req *protocol.Packet, w ResponseWriter) error

// Handle calls f.
func (f HandlerFunc) Handle(req *protocol.Packet, w ResponseWriter) error {
	return f(req, w)
}

// Dispatcher maps command codes to handlers and routes validated packets.
// Each node owns one instance; nothing here is process-global so tests can
// run several independent nodes side by side.
type Dispatcher struct {
	mu       sync.RWMutex
	addr     byte
	status   *StatusRegister
	handlers map[protocol.Command]Handler
}

// NewDispatcher creates a dispatcher filtering on the given node address.
func NewDispatcher(addr byte, status *StatusRegister) *Dispatcher {
	return &Dispatcher{
		addr:     addr,
		status:   status,
		handlers: make(map[protocol.Command]Handler),
	}
}

// Register installs a handler for a command code. At most one handler per
// code; registering again replaces the previous one.
func (d *Dispatcher) Register(cmd protocol.Command, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = h
}

// Lookup returns the handler for a command code, if any.
func (d *Dispatcher) Lookup(cmd protocol.Command) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[cmd]
	return h, ok
}

// Count returns the number of registered command codes.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch routes one CRC-valid packet. Packets addressed to neither this
// node nor broadcast are dropped silently: the bus is shared and every node
// observes every frame. A packet that passes the filter counts as received;
// an unregistered command yields an invalid-command error response to the
// sender.
func (d *Dispatcher) Dispatch(req *protocol.Packet, w ResponseWriter) error {
	if req.Dest != d.addr && req.Dest != protocol.AddrBroadcast {
		return nil
	}

	d.status.addRx()

	h, ok := d.Lookup(req.Command)
	if !ok {
		return w.Error(protocol.ErrInvalidCommand)
	}
	return h.Handle(req, w)
}
