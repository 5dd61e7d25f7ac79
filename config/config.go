// Package config loads TOML configuration for the node and master binaries.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"busnode/protocol"
)

// NodeConfig is the resolved configuration of one I/O node process.
type NodeConfig struct {
	Address    byte
	Device     string
	Baud       int
	Turnaround time.Duration
	Debounce   time.Duration
	LogLevel   string
}

// MasterConfig is the resolved configuration of the master process.
type MasterConfig struct {
	Device   string
	Baud     int
	Timeout  time.Duration
	LogLevel string
}

// DefaultNodeConfig returns the standard node settings: digital I/O
// controller on the first USB serial adapter.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Address:    protocol.AddrControllerDIO,
		Device:     "/dev/ttyUSB0",
		Baud:       115200,
		Turnaround: time.Millisecond,
		Debounce:   10 * time.Millisecond,
		LogLevel:   "info",
	}
}

// DefaultMasterConfig returns the standard master settings.
func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		Device:   "/dev/ttyUSB0",
		Baud:     115200,
		Timeout:  time.Second,
		LogLevel: "info",
	}
}

type fileNodeConfig struct {
	Address    int    `toml:"address"`
	Role       string `toml:"role"`
	Device     string `toml:"device"`
	Baud       int    `toml:"baud"`
	Turnaround string `toml:"turnaround"`
	Debounce   string `toml:"debounce"`
	LogLevel   string `toml:"log_level"`
}

type fileMasterConfig struct {
	Device   string `toml:"device"`
	Baud     int    `toml:"baud"`
	Timeout  string `toml:"timeout"`
	LogLevel string `toml:"log_level"`
}

// LoadNodeConfig reads a node config file over the defaults. The bus address
// can be given numerically as "address" or symbolically as "role"; the role
// wins when both are present.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	var raw fileNodeConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}

	if meta.IsDefined("address") {
		if raw.Address <= 0 || raw.Address > 0xEF {
			return NodeConfig{}, fmt.Errorf("address %d out of range", raw.Address)
		}
		cfg.Address = byte(raw.Address)
	}

	if meta.IsDefined("role") {
		addr, err := RoleAddress(raw.Role)
		if err != nil {
			return NodeConfig{}, err
		}
		cfg.Address = addr
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}

	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return NodeConfig{}, fmt.Errorf("baud %d out of range", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}

	if meta.IsDefined("turnaround") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Turnaround))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("parse turnaround: %w", err)
		}
		cfg.Turnaround = d
	}

	if meta.IsDefined("debounce") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Debounce))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("parse debounce: %w", err)
		}
		cfg.Debounce = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if cfg.Device == "" {
		return NodeConfig{}, fmt.Errorf("node config missing device")
	}

	return cfg, nil
}

// LoadMasterConfig reads a master config file over the defaults.
func LoadMasterConfig(path string) (MasterConfig, error) {
	cfg := DefaultMasterConfig()

	var raw fileMasterConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return MasterConfig{}, fmt.Errorf("load master config: %w", err)
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}

	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return MasterConfig{}, fmt.Errorf("baud %d out of range", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return MasterConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if cfg.Device == "" {
		return MasterConfig{}, fmt.Errorf("master config missing device")
	}

	return cfg, nil
}

// RoleAddress maps a controller role name to its bus address.
func RoleAddress(role string) (byte, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "420", "analog":
		return protocol.AddrController420, nil
	case "dio":
		return protocol.AddrControllerDIO, nil
	case "out":
		return protocol.AddrControllerOUT, nil
	}
	return 0, fmt.Errorf("unknown role %q", role)
}
