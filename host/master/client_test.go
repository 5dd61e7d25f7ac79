package master

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"busnode/core"
	"busnode/protocol"
)

// memDriver collects node transmissions for the loopback port to read back.
type memDriver struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (d *memDriver) SetDirection(bool) {}

func (d *memDriver) Transmit(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Write(frame)
	return nil
}

// memPort is an in-memory duplex wired straight to a node: bytes written by
// the client are fed into the node's receive path, and the node's
// transmissions become the client's read stream. Everything runs
// synchronously, so a response is readable as soon as Write returns.
type memPort struct {
	node *core.Node
	drv  *memDriver
}

func (p *memPort) Write(b []byte) (int, error) {
	for _, x := range b {
		p.node.HandleByte(x)
	}
	return len(b), nil
}

func (p *memPort) Read(b []byte) (int, error) {
	p.drv.mu.Lock()
	defer p.drv.mu.Unlock()
	n, err := p.drv.buf.Read(b)
	if errors.Is(err, io.EOF) {
		return 0, nil // mimic a serial read timeout
	}
	return n, err
}

func (p *memPort) Close() error { return nil }
func (p *memPort) Flush() error { return nil }

type noopSleeper struct{}

func (noopSleeper) Sleep(time.Duration) {}

func newLoopback(t *testing.T, addr byte) (*Client, *core.Node, *memPort) {
	t.Helper()
	drv := &memDriver{}
	port := &memPort{drv: drv}
	port.node = core.NewNode(core.Config{Address: addr, Sleeper: noopSleeper{}}, drv)
	client := NewClient(port, Config{Timeout: 200 * time.Millisecond})
	return client, port.node, port
}

func TestClientPing(t *testing.T) {
	client, _, _ := newLoopback(t, protocol.AddrControllerDIO)
	require.NoError(t, client.Ping(protocol.AddrControllerDIO))
}

func TestClientGetVersion(t *testing.T) {
	client, _, _ := newLoopback(t, protocol.AddrControllerDIO)

	v, err := client.GetVersion(protocol.AddrControllerDIO)
	require.NoError(t, err)
	require.Equal(t, byte(core.VersionMajor), v.Major)
	require.Equal(t, byte(core.VersionMinor), v.Minor)
	require.Equal(t, byte(core.VersionPatch), v.Patch)
	require.Equal(t, byte(core.BuildNumber), v.Build)
	require.Equal(t, byte(protocol.AddrControllerDIO), v.Address)
}

func TestClientHeartbeat(t *testing.T) {
	client, node, _ := newLoopback(t, protocol.AddrControllerDIO)
	node.Status().SetHealth(73)

	health, err := client.Heartbeat(protocol.AddrControllerDIO)
	require.NoError(t, err)
	require.Equal(t, byte(73), health)
}

func TestClientGetStatus(t *testing.T) {
	client, _, _ := newLoopback(t, protocol.AddrControllerDIO)

	status, err := client.GetStatus(protocol.AddrControllerDIO)
	require.NoError(t, err)
	require.Equal(t, byte(protocol.AddrControllerDIO), status.NodeID)
	require.Equal(t, byte(100), status.Health)
	require.Equal(t, uint32(1), status.RxCount, "the status request itself is counted")
	require.Zero(t, status.Errors)
}

func TestClientDigitalRoundTrip(t *testing.T) {
	client, node, _ := newLoopback(t, protocol.AddrControllerOUT)
	core.RegisterOutputHandlers(node, core.NewMemoryOutputBank(nil))

	mask := []byte{0x0F, 0x00, 0x00, 0xA0, 0x00, 0x00, 0x01}
	require.NoError(t, client.WriteOutputs(protocol.AddrControllerOUT, mask))

	got, err := client.ReadOutputs(protocol.AddrControllerOUT)
	require.NoError(t, err)
	require.Equal(t, mask, got)
}

func TestClientReadInputs(t *testing.T) {
	client, node, _ := newLoopback(t, protocol.AddrControllerDIO)
	raw := [core.NumDigitalInputs]bool{}
	raw[5] = true
	bank := core.NewDebouncedInputBank(func(ch int) bool { return raw[ch] }, nil, 0)
	bank.Update()
	core.RegisterInputHandlers(node, bank)

	mask, err := client.ReadInputs(protocol.AddrControllerDIO)
	require.NoError(t, err)
	require.Len(t, mask, core.DigitalMaskBytes)
	require.Equal(t, byte(0x20), mask[0])
}

func TestClientReadAnalog(t *testing.T) {
	client, node, _ := newLoopback(t, protocol.AddrController420)
	bank := core.NewConverterBank(func(ch int) uint16 { return 32768 })
	bank.Update()
	core.RegisterAnalogHandlers(node, bank)

	records, err := client.ReadAnalog(protocol.AddrController420)
	require.NoError(t, err)
	require.Len(t, records, core.TotalAnalogChannels)
	require.Equal(t, uint16(32768), records[0].Raw)

	volts, err := client.ReadAnalogGroup(protocol.AddrController420, byte(core.GroupVoltage))
	require.NoError(t, err)
	require.Len(t, volts, core.NumVoltageChannels)
	require.InDelta(t, 5.0, volts[0].Value, 0.01)
}

func TestClientBusError(t *testing.T) {
	// A node without input handlers rejects the command.
	client, _, _ := newLoopback(t, protocol.AddrControllerOUT)

	_, err := client.ReadInputs(protocol.AddrControllerOUT)
	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	require.Equal(t, protocol.ErrInvalidCommand, busErr.Code)
	require.Equal(t, byte(protocol.AddrControllerOUT), busErr.Node)
}

func TestClientSkipsForeignFrames(t *testing.T) {
	client, _, port := newLoopback(t, protocol.AddrControllerDIO)

	// Another node's reply is already sitting in the receive stream.
	foreign, err := protocol.Encode(protocol.AddrController420, protocol.AddrControllerOUT, protocol.CmdPingResponse, nil)
	require.NoError(t, err)
	require.NoError(t, port.drv.Transmit(foreign))

	require.NoError(t, client.Ping(protocol.AddrControllerDIO))
}

// deadPort never delivers a byte.
type deadPort struct{}

func (deadPort) Write(b []byte) (int, error) { return len(b), nil }
func (deadPort) Read([]byte) (int, error)    { return 0, nil }
func (deadPort) Close() error                { return nil }
func (deadPort) Flush() error                { return nil }

func TestClientTimeout(t *testing.T) {
	client := NewClient(deadPort{}, Config{Timeout: 20 * time.Millisecond})
	err := client.Ping(protocol.AddrControllerDIO)
	require.ErrorIs(t, err, ErrTimeout)
}
