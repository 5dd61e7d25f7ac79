package core

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"busnode/protocol"
)

// Analog front-end characteristics of the reference boards.
const (
	adcFullScale = 65535.0
	adcVref      = 3.3

	senseResistorOhm    = 250.0 // 4-20 mA shunt
	voltageDividerRatio = 3.03

	ntcNominalOhm   = 10000.0
	ntcNominalTempC = 25.0
	ntcBeta         = 3950.0
	ntcSeriesOhm    = 10000.0

	currentOpenCircuitMA = 0.5
	currentUnderrangeMA  = 3.8 // wire-break threshold
	currentOverrangeMA   = 21.0
	voltageOverrangeV    = 10.5
)

// ErrUnknownGroup is returned by ReadGroup for group codes above GroupNTC.
var ErrUnknownGroup = errors.New("core: unknown analog group")

// RegisterAnalogHandlers installs the read-analog command backed by bank.
// An empty request payload reads every group; a single payload byte selects
// one group. Anything else is rejected with an invalid-length error.
func RegisterAnalogHandlers(n *Node, bank AnalogBank) {
	n.Register(protocol.CmdReadAnalog, HandlerFunc(func(req *protocol.Packet, w ResponseWriter) error {
		switch len(req.Payload) {
		case 0:
			return w.Respond(protocol.CmdAnalogResponse, bank.ReadAll())
		case 1:
			data, err := bank.ReadGroup(AnalogGroup(req.Payload[0]))
			if err != nil {
				return w.Error(protocol.ErrInvalidLength)
			}
			return w.Respond(protocol.CmdAnalogResponse, data)
		default:
			return w.Error(protocol.ErrInvalidLength)
		}
	}))
}

type analogChannel struct {
	raw    uint16
	value  float32 // mA, V or degC depending on the group
	status ChannelStatus
}

// ConverterBank samples raw ADC counts through a SampleFunc and converts
// them to engineering units with per-channel calibration and range
// classification. It implements AnalogBank.
type ConverterBank struct {
	mu     sync.Mutex
	sample SampleFunc

	current [NumCurrentChannels]analogChannel
	voltage [NumVoltageChannels]analogChannel
	ntc     [NumNTCChannels]analogChannel

	curOffset  [NumCurrentChannels]float32
	curGain    [NumCurrentChannels]float32
	voltOffset [NumVoltageChannels]float32
	voltGain   [NumVoltageChannels]float32
}

// NewConverterBank creates a bank with unity calibration.
func NewConverterBank(sample SampleFunc) *ConverterBank {
	b := &ConverterBank{sample: sample}
	for i := range b.curGain {
		b.curGain[i] = 1
	}
	for i := range b.voltGain {
		b.voltGain[i] = 1
	}
	return b
}

// CalibrateCurrent sets the offset/gain pair of one 4-20 mA channel.
func (b *ConverterBank) CalibrateCurrent(ch int, offset, gain float32) {
	if ch < 0 || ch >= NumCurrentChannels {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.curOffset[ch] = offset
	b.curGain[ch] = gain
}

// CalibrateVoltage sets the offset/gain pair of one 0-10 V channel.
func (b *ConverterBank) CalibrateVoltage(ch int, offset, gain float32) {
	if ch < 0 || ch >= NumVoltageChannels {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voltOffset[ch] = offset
	b.voltGain[ch] = gain
}

// Update samples every channel once and refreshes values and statuses.
// Call it periodically from the main loop.
func (b *ConverterBank) Update() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := 0; ch < TotalAnalogChannels; ch++ {
		raw := b.sample(ch)
		switch {
		case ch < NumCurrentChannels:
			mA := (currentFromRaw(raw) + b.curOffset[ch]) * b.curGain[ch]
			b.current[ch] = analogChannel{raw: raw, value: mA, status: classifyCurrent(mA)}
		case ch < NumCurrentChannels+NumVoltageChannels:
			i := ch - NumCurrentChannels
			v := (voltageFromRaw(raw) + b.voltOffset[i]) * b.voltGain[i]
			b.voltage[i] = analogChannel{raw: raw, value: v, status: classifyVoltage(v)}
		default:
			i := ch - NumCurrentChannels - NumVoltageChannels
			b.ntc[i] = analogChannel{raw: raw, value: ntcTemperatureFromRaw(raw), status: classifyNTC(raw)}
		}
	}
}

// Current returns the calibrated loop current and status of one channel.
func (b *ConverterBank) Current(ch int) (float32, ChannelStatus) {
	if ch < 0 || ch >= NumCurrentChannels {
		return 0, StatusError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current[ch].value, b.current[ch].status
}

// Voltage returns the calibrated voltage and status of one channel.
func (b *ConverterBank) Voltage(ch int) (float32, ChannelStatus) {
	if ch < 0 || ch >= NumVoltageChannels {
		return 0, StatusError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voltage[ch].value, b.voltage[ch].status
}

// Temperature returns the NTC temperature in degrees Celsius and status.
func (b *ConverterBank) Temperature(ch int) (float32, ChannelStatus) {
	if ch < 0 || ch >= NumNTCChannels {
		return 0, StatusError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ntc[ch].value, b.ntc[ch].status
}

// ReadGroup returns the packed records of one channel group.
func (b *ConverterBank) ReadGroup(g AnalogGroup) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch g {
	case GroupCurrent:
		return packRecords(b.current[:]), nil
	case GroupVoltage:
		return packRecords(b.voltage[:]), nil
	case GroupNTC:
		return packRecords(b.ntc[:]), nil
	}
	return nil, ErrUnknownGroup
}

// ReadAll returns the packed records of every group in sequencer order.
func (b *ConverterBank) ReadAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := make([]byte, 0, TotalAnalogChannels*AnalogRecordSize)
	data = append(data, packRecords(b.current[:])...)
	data = append(data, packRecords(b.voltage[:])...)
	data = append(data, packRecords(b.ntc[:])...)
	return data
}

func packRecords(chans []analogChannel) []byte {
	data := make([]byte, len(chans)*AnalogRecordSize)
	for i, c := range chans {
		off := i * AnalogRecordSize
		binary.LittleEndian.PutUint16(data[off:], c.raw)
		binary.LittleEndian.PutUint32(data[off+2:], math.Float32bits(c.value))
	}
	return data
}

func adcVolts(raw uint16) float32 {
	return float32(raw) / adcFullScale * adcVref
}

func currentFromRaw(raw uint16) float32 {
	return adcVolts(raw) / senseResistorOhm * 1000.0
}

func voltageFromRaw(raw uint16) float32 {
	return adcVolts(raw) * voltageDividerRatio
}

// ntcTemperatureFromRaw applies the Beta equation to the divider formed by
// the series resistor and the thermistor.
func ntcTemperatureFromRaw(raw uint16) float32 {
	v := float64(adcVolts(raw))
	if v <= 0 || v >= adcVref {
		return 0 // classified as short/open, value is meaningless
	}
	r := ntcSeriesOhm * v / (adcVref - v)
	invT := 1.0/(ntcNominalTempC+273.15) + math.Log(r/ntcNominalOhm)/ntcBeta
	return float32(1.0/invT - 273.15)
}

func classifyCurrent(mA float32) ChannelStatus {
	switch {
	case mA < currentOpenCircuitMA:
		return StatusOpenCircuit
	case mA < currentUnderrangeMA:
		return StatusUnderrange
	case mA > currentOverrangeMA:
		return StatusOverrange
	}
	return StatusOK
}

func classifyVoltage(v float32) ChannelStatus {
	if v > voltageOverrangeV {
		return StatusOverrange
	}
	return StatusOK
}

func classifyNTC(raw uint16) ChannelStatus {
	switch {
	case raw < 656: // divider pulled to ground, thermistor shorted
		return StatusShortCircuit
	case raw > 64879: // divider at the rail, thermistor missing
		return StatusOpenCircuit
	}
	return StatusOK
}
