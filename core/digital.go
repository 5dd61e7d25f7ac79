package core

import (
	"sync"
	"time"

	"busnode/protocol"
)

// DefaultDebounce matches the input filter of the reference boards.
const DefaultDebounce = 10 * time.Millisecond

// RegisterOutputHandlers installs the digital-output commands backed by
// bank: write-outputs applies the request bitmask and confirms with an
// empty payload, read-outputs reports the current bitmask.
func RegisterOutputHandlers(n *Node, bank OutputBank) {
	n.Register(protocol.CmdWriteDO, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		bank.SetAll(req.Payload)
		return w.Respond(protocol.CmdDOResponse, nil)
	}))
	n.Register(protocol.CmdReadDO, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		return w.Respond(protocol.CmdDOResponse, bank.Snapshot())
	}))
}

// RegisterInputHandlers installs the read-digital-inputs command backed by
// bank.
func RegisterInputHandlers(n *Node, bank InputBank) {
	n.Register(protocol.CmdReadDI, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		return w.Respond(protocol.CmdDIResponse, bank.Snapshot())
	}))
}

// MemoryOutputBank tracks 56 output channels and forwards state changes to
// an optional PinWriter. It implements OutputBank.
type MemoryOutputBank struct {
	mu     sync.Mutex
	states [NumDigitalOutputs]bool
	write  PinWriter
}

// NewMemoryOutputBank creates a bank with all channels low.
func NewMemoryOutputBank(write PinWriter) *MemoryOutputBank {
	b := &MemoryOutputBank{write: write}
	if write != nil {
		for ch := 0; ch < NumDigitalOutputs; ch++ {
			write(ch, false)
		}
	}
	return b
}

// Set drives a single channel. Out-of-range channels are ignored.
func (b *MemoryOutputBank) Set(ch int, on bool) {
	if ch < 0 || ch >= NumDigitalOutputs {
		return
	}
	b.mu.Lock()
	b.states[ch] = on
	b.mu.Unlock()
	if b.write != nil {
		b.write(ch, on)
	}
}

// Get returns the commanded state of a channel.
func (b *MemoryOutputBank) Get(ch int) bool {
	if ch < 0 || ch >= NumDigitalOutputs {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[ch]
}

// Toggle inverts one channel.
func (b *MemoryOutputBank) Toggle(ch int) {
	b.Set(ch, !b.Get(ch))
}

// SetAll applies a little-endian bitmask. A mask shorter than
// DigitalMaskBytes only touches the channels it covers.
func (b *MemoryOutputBank) SetAll(mask []byte) {
	for ch := 0; ch < NumDigitalOutputs && ch < len(mask)*8; ch++ {
		b.Set(ch, mask[ch/8]>>(ch%8)&1 == 1)
	}
}

// Snapshot packs all channel states into a bitmask.
func (b *MemoryOutputBank) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	mask := make([]byte, DigitalMaskBytes)
	for ch := 0; ch < NumDigitalOutputs; ch++ {
		if b.states[ch] {
			mask[ch/8] |= 1 << (ch % 8)
		}
	}
	return mask
}

// DebouncedInputBank samples 56 input channels through a PinReader and
// filters contact bounce: a level change is only accepted once the channel
// has been stable past the debounce interval. It implements InputBank.
type DebouncedInputBank struct {
	mu         sync.Mutex
	read       PinReader
	clock      Clock
	debounce   time.Duration
	current    [NumDigitalInputs]bool
	previous   [NumDigitalInputs]bool
	lastChange [NumDigitalInputs]time.Time
}

// NewDebouncedInputBank creates a bank. A zero debounce selects
// DefaultDebounce; a nil clock the system clock.
func NewDebouncedInputBank(read PinReader, clock Clock, debounce time.Duration) *DebouncedInputBank {
	if clock == nil {
		clock = SystemClock()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &DebouncedInputBank{read: read, clock: clock, debounce: debounce}
}

// Update samples every channel once. Call it periodically from the main
// loop; the debounce interval is measured between accepted changes.
func (b *DebouncedInputBank) Update() {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := 0; ch < NumDigitalInputs; ch++ {
		level := b.read(ch)
		if level != b.current[ch] && now.Sub(b.lastChange[ch]) >= b.debounce {
			b.previous[ch] = b.current[ch]
			b.current[ch] = level
			b.lastChange[ch] = now
		}
	}
}

// Get returns the debounced state of a channel.
func (b *DebouncedInputBank) Get(ch int) bool {
	if ch < 0 || ch >= NumDigitalInputs {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current[ch]
}

// Changed reports whether the last accepted update flipped the channel.
func (b *DebouncedInputBank) Changed(ch int) bool {
	if ch < 0 || ch >= NumDigitalInputs {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current[ch] != b.previous[ch]
}

// Snapshot packs the debounced states into a bitmask.
func (b *DebouncedInputBank) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	mask := make([]byte, DigitalMaskBytes)
	for ch := 0; ch < NumDigitalInputs; ch++ {
		if b.current[ch] {
			mask[ch/8] |= 1 << (ch % 8)
		}
	}
	return mask
}
