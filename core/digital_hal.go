package core

// Channel geometry of the digital controller boards. Channel states travel
// on the wire as a little-endian bitmask: bit i%8 of byte i/8 is channel i.
const (
	NumDigitalInputs  = 56
	NumDigitalOutputs = 56
	DigitalMaskBytes  = 7
)

// OutputBank is the digital-output collaborator. The protocol core only
// talks to it in bulk; the bitmask layout is owned by the bank.
type OutputBank interface {
	// SetAll applies a bitmask to all channels. Shorter masks leave the
	// remaining channels untouched.
	SetAll(mask []byte)

	// Snapshot returns the current states as a DigitalMaskBytes bitmask.
	Snapshot() []byte
}

// InputBank is the digital-input collaborator.
type InputBank interface {
	// Snapshot returns the debounced states as a DigitalMaskBytes bitmask.
	Snapshot() []byte
}

// PinWriter drives one physical output channel. Board bring-up code
// supplies the real implementation; nil is valid for pure state tracking.
type PinWriter func(ch int, on bool)

// PinReader samples one physical input channel.
type PinReader func(ch int) bool
