package core

// Channel geometry of the analog controller boards: 4-20 mA current loops,
// 0-10 V inputs and NTC temperature sensors, sampled in that sequencer
// order.
const (
	NumCurrentChannels  = 26
	NumVoltageChannels  = 6
	NumNTCChannels      = 4
	TotalAnalogChannels = NumCurrentChannels + NumVoltageChannels + NumNTCChannels

	// AnalogRecordSize is the packed wire record per channel: raw ADC
	// count (u16) followed by the engineering value (f32), little-endian.
	AnalogRecordSize = 6
)

// AnalogGroup selects a channel group for bulk reads.
type AnalogGroup byte

const (
	GroupCurrent AnalogGroup = 0
	GroupVoltage AnalogGroup = 1
	GroupNTC     AnalogGroup = 2
)

// ChannelStatus classifies an analog reading.
type ChannelStatus byte

const (
	StatusOK           ChannelStatus = 0
	StatusUnderrange   ChannelStatus = 1
	StatusOverrange    ChannelStatus = 2
	StatusOpenCircuit  ChannelStatus = 3
	StatusShortCircuit ChannelStatus = 4
	StatusError        ChannelStatus = 5
)

// AnalogBank is the analog collaborator. The protocol core reads it in
// bulk; record layout is owned by the bank.
type AnalogBank interface {
	// ReadGroup returns the packed records of one channel group.
	ReadGroup(g AnalogGroup) ([]byte, error)

	// ReadAll returns the packed records of every group, current loops
	// first, then voltages, then NTCs.
	ReadAll() []byte
}

// SampleFunc reads one raw ADC count in sequencer order: current channels
// first, then voltage, then NTC. Board bring-up code supplies the real
// implementation.
type SampleFunc func(ch int) uint16
