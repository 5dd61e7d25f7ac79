// Command busnode runs one I/O node on the bus. It speaks the full node
// protocol over a serial adapter with automatic driver-enable; the I/O banks
// are in-memory implementations, so it doubles as a bench stand-in for real
// controller hardware.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"busnode/config"
	"busnode/core"
	"busnode/host/serial"
	"busnode/protocol"
)

var (
	configPath = flag.String("config", "", "TOML config file path")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	address    = flag.Int("address", 0, "Bus address (overrides config)")
	role       = flag.String("role", "", "Controller role: 420, dio or out (overrides config)")
)

// portDriver adapts a serial port to the node's line driver. Adapters with
// automatic driver-enable need no explicit direction control.
type portDriver struct {
	port serial.Port
}

func (d *portDriver) SetDirection(tx bool) {}

func (d *portDriver) Transmit(frame []byte) error {
	_, err := d.port.Write(frame)
	return err
}

func main() {
	flag.Parse()

	cfg := config.DefaultNodeConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadNodeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *address != 0 {
		cfg.Address = byte(*address)
	}
	if *role != "" {
		addr, err := config.RoleAddress(*role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Address = addr
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	portCfg := serial.DefaultConfig(cfg.Device)
	portCfg.Baud = cfg.Baud
	port, err := serial.Open(portCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open serial port")
	}
	defer port.Close()

	node := core.NewNode(core.Config{
		Address:    cfg.Address,
		Turnaround: cfg.Turnaround,
		Logger:     &logger,
	}, &portDriver{port: port})

	// In-memory banks stand in for the board I/O. Bring-up for real hardware
	// replaces the pin and sample callbacks.
	outputs := core.NewMemoryOutputBank(nil)
	inputs := core.NewDebouncedInputBank(func(ch int) bool { return false }, nil, cfg.Debounce)
	analog := core.NewConverterBank(func(ch int) uint16 { return 0 })

	switch cfg.Address {
	case protocol.AddrController420:
		core.RegisterAnalogHandlers(node, analog)
	case protocol.AddrControllerDIO:
		core.RegisterInputHandlers(node, inputs)
		core.RegisterOutputHandlers(node, outputs)
	case protocol.AddrControllerOUT:
		core.RegisterOutputHandlers(node, outputs)
	default:
		core.RegisterInputHandlers(node, inputs)
		core.RegisterOutputHandlers(node, outputs)
	}

	logger.Info().
		Str("device", cfg.Device).
		Int("baud", cfg.Baud).
		Uint8("address", cfg.Address).
		Msg("node online")

	go func() {
		chunk := make([]byte, 64)
		for {
			n, err := port.Read(chunk)
			if err != nil {
				logger.Error().Err(err).Msg("serial read failed")
				return
			}
			for _, b := range chunk[:n] {
				node.HandleByte(b)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			inputs.Update()
			analog.Update()
			node.Tick()
		case <-sig:
			logger.Info().Msg("shutting down")
			return
		}
	}
}
