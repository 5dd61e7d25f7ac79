package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"busnode/protocol"
)

// rawFor converts a loop voltage back to an ADC count for test inputs.
func rawFor(volts float64) uint16 {
	return uint16(volts / adcVref * adcFullScale)
}

func TestCurrentConversion(t *testing.T) {
	// 12 mA through the 250 ohm shunt drops 3.0 V.
	mA := currentFromRaw(rawFor(3.0))
	require.InDelta(t, 12.0, mA, 0.01)
	require.Equal(t, StatusOK, classifyCurrent(mA))
}

func TestCurrentClassification(t *testing.T) {
	require.Equal(t, StatusOpenCircuit, classifyCurrent(0))
	require.Equal(t, StatusOpenCircuit, classifyCurrent(0.4))
	require.Equal(t, StatusUnderrange, classifyCurrent(1.5))
	require.Equal(t, StatusOK, classifyCurrent(4.0))
	require.Equal(t, StatusOK, classifyCurrent(20.0))
	require.Equal(t, StatusOverrange, classifyCurrent(22.0))
}

func TestVoltageConversion(t *testing.T) {
	// Half scale through the 3.03 divider is about 5 V.
	v := voltageFromRaw(32768)
	require.InDelta(t, 5.0, v, 0.01)
	require.Equal(t, StatusOK, classifyVoltage(v))
	require.Equal(t, StatusOverrange, classifyVoltage(11.0))
}

func TestNTCConversion(t *testing.T) {
	// At half scale the thermistor equals the series resistor, which is its
	// nominal operating point.
	temp := ntcTemperatureFromRaw(32768)
	require.InDelta(t, 25.0, temp, 0.05)

	require.Equal(t, StatusShortCircuit, classifyNTC(100))
	require.Equal(t, StatusShortCircuit, classifyNTC(655))
	require.Equal(t, StatusOK, classifyNTC(656))
	require.Equal(t, StatusOK, classifyNTC(64879))
	require.Equal(t, StatusOpenCircuit, classifyNTC(64880))
}

func newTestConverterBank() *ConverterBank {
	b := NewConverterBank(func(ch int) uint16 {
		if ch < NumCurrentChannels {
			return rawFor(3.0) // 12 mA
		}
		return 32768
	})
	b.Update()
	return b
}

func TestConverterBankUpdate(t *testing.T) {
	b := newTestConverterBank()

	mA, status := b.Current(0)
	require.InDelta(t, 12.0, mA, 0.01)
	require.Equal(t, StatusOK, status)

	v, status := b.Voltage(0)
	require.InDelta(t, 5.0, v, 0.01)
	require.Equal(t, StatusOK, status)

	temp, status := b.Temperature(0)
	require.InDelta(t, 25.0, temp, 0.05)
	require.Equal(t, StatusOK, status)

	_, status = b.Current(NumCurrentChannels)
	require.Equal(t, StatusError, status)
}

func TestConverterBankCalibration(t *testing.T) {
	b := newTestConverterBank()
	b.CalibrateCurrent(0, 1, 2)
	b.Update()

	mA, status := b.Current(0)
	require.InDelta(t, 26.0, mA, 0.01)
	require.Equal(t, StatusOverrange, status, "calibration feeds range classification")

	mA, _ = b.Current(1)
	require.InDelta(t, 12.0, mA, 0.01, "other channels keep unity calibration")
}

func TestConverterBankGroupSizes(t *testing.T) {
	b := newTestConverterBank()

	cur, err := b.ReadGroup(GroupCurrent)
	require.NoError(t, err)
	require.Len(t, cur, NumCurrentChannels*AnalogRecordSize)

	volt, err := b.ReadGroup(GroupVoltage)
	require.NoError(t, err)
	require.Len(t, volt, NumVoltageChannels*AnalogRecordSize)

	ntc, err := b.ReadGroup(GroupNTC)
	require.NoError(t, err)
	require.Len(t, ntc, NumNTCChannels*AnalogRecordSize)

	_, err = b.ReadGroup(AnalogGroup(9))
	require.ErrorIs(t, err, ErrUnknownGroup)

	require.Len(t, b.ReadAll(), TotalAnalogChannels*AnalogRecordSize)
}

func TestConverterBankRecordLayout(t *testing.T) {
	b := newTestConverterBank()

	data, err := b.ReadGroup(GroupCurrent)
	require.NoError(t, err)

	raw := binary.LittleEndian.Uint16(data[0:])
	require.Equal(t, rawFor(3.0), raw)

	value := math.Float32frombits(binary.LittleEndian.Uint32(data[2:]))
	mA, _ := b.Current(0)
	require.Equal(t, mA, value)
}

func TestNodeAnalogCommands(t *testing.T) {
	n, driver, _ := newTestNode(t, 0x01)
	RegisterAnalogHandlers(n, newTestConverterBank())

	// Empty payload reads every group.
	feedFrame(n, encodeFrame(t, 0x01, protocol.AddrMaster, protocol.CmdReadAnalog, nil))
	frames := driver.sentFrames()
	require.Len(t, frames, 1)
	resp, err := protocol.Decode(frames[0])
	require.NoError(t, err)
	require.Equal(t, protocol.CmdAnalogResponse, resp.Command)
	require.Len(t, resp.Payload, TotalAnalogChannels*AnalogRecordSize)

	// One payload byte selects a group.
	feedFrame(n, encodeFrame(t, 0x01, protocol.AddrMaster, protocol.CmdReadAnalog, []byte{byte(GroupVoltage)}))
	frames = driver.sentFrames()
	require.Len(t, frames, 2)
	resp, err = protocol.Decode(frames[1])
	require.NoError(t, err)
	require.Len(t, resp.Payload, NumVoltageChannels*AnalogRecordSize)

	// Unknown groups and longer payloads are rejected.
	feedFrame(n, encodeFrame(t, 0x01, protocol.AddrMaster, protocol.CmdReadAnalog, []byte{9}))
	frames = driver.sentFrames()
	require.Len(t, frames, 3)
	resp, err = protocol.Decode(frames[2])
	require.NoError(t, err)
	require.Equal(t, protocol.CmdErrorResponse, resp.Command)
	require.Equal(t, []byte{byte(protocol.ErrInvalidLength), 0x01}, resp.Payload)

	feedFrame(n, encodeFrame(t, 0x01, protocol.AddrMaster, protocol.CmdReadAnalog, []byte{1, 2}))
	frames = driver.sentFrames()
	require.Len(t, frames, 4)
	resp, err = protocol.Decode(frames[3])
	require.NoError(t, err)
	require.Equal(t, protocol.CmdErrorResponse, resp.Command)
}
