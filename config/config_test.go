package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"busnode/protocol"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadNodeConfigDefaults(t *testing.T) {
	cfg, err := LoadNodeConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.Equal(t, DefaultNodeConfig(), cfg)
}

func TestLoadNodeConfigOverrides(t *testing.T) {
	cfg, err := LoadNodeConfig(writeConfig(t, `
address = 3
device = "/dev/ttyAMA1"
baud = 57600
turnaround = "2ms"
debounce = "25ms"
log_level = "debug"
`))
	require.NoError(t, err)
	require.Equal(t, byte(3), cfg.Address)
	require.Equal(t, "/dev/ttyAMA1", cfg.Device)
	require.Equal(t, 57600, cfg.Baud)
	require.Equal(t, 2*time.Millisecond, cfg.Turnaround)
	require.Equal(t, 25*time.Millisecond, cfg.Debounce)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadNodeConfigRoleWinsOverAddress(t *testing.T) {
	cfg, err := LoadNodeConfig(writeConfig(t, `
address = 9
role = "420"
`))
	require.NoError(t, err)
	require.Equal(t, byte(protocol.AddrController420), cfg.Address)
}

func TestLoadNodeConfigRejectsBroadcastAddress(t *testing.T) {
	_, err := LoadNodeConfig(writeConfig(t, "address = 0"))
	require.Error(t, err)
}

func TestLoadNodeConfigBadDuration(t *testing.T) {
	_, err := LoadNodeConfig(writeConfig(t, `turnaround = "abc"`))
	require.Error(t, err)
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	_, err := LoadNodeConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadMasterConfig(t *testing.T) {
	cfg, err := LoadMasterConfig(writeConfig(t, `
device = "/dev/ttyUSB1"
timeout = "250ms"
`))
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB1", cfg.Device)
	require.Equal(t, 250*time.Millisecond, cfg.Timeout)
	require.Equal(t, 115200, cfg.Baud)
}

func TestRoleAddress(t *testing.T) {
	for role, want := range map[string]byte{
		"420":    protocol.AddrController420,
		"analog": protocol.AddrController420,
		"DIO":    protocol.AddrControllerDIO,
		" out ":  protocol.AddrControllerOUT,
	} {
		addr, err := RoleAddress(role)
		require.NoError(t, err)
		require.Equal(t, want, addr, "role %q", role)
	}

	_, err := RoleAddress("master")
	require.Error(t, err)
}
