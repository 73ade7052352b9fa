package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_String(t *testing.T) {
	assert.Equal(t, "Unknown", ModeUnknown.String())
	assert.Equal(t, "Server", ModeServer.String())
	assert.Equal(t, "Client", ModeClient.String())
	assert.Equal(t, "Unknown", Mode(99).String())
}

func TestParseArgs_mode(t *testing.T) {
	t.Run("server mode", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"server"})
		require.NoError(t, err)
		assert.Equal(t, ModeServer, cfg.Mode)
	})

	t.Run("client mode", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"client"})
		require.NoError(t, err)
		assert.Equal(t, ModeClient, cfg.Mode)
	})

	t.Run("mode is case-insensitive", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"SERVER"})
		require.NoError(t, err)
		assert.Equal(t, ModeServer, cfg.Mode)
	})

	t.Run("first mode wins", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"server", "client"})
		require.NoError(t, err)
		assert.Equal(t, ModeServer, cfg.Mode)
	})

	t.Run("missing mode fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"address", "127.0.0.1"})
		assert.ErrorIs(t, err, ErrModeRequired)
	})

	t.Run("no arguments fails", func(t *testing.T) {
		_, err := ParseArgs(nil)
		assert.ErrorIs(t, err, ErrModeRequired)
	})
}

func TestParseArgs_defaults(t *testing.T) {
	cfg, err := ParseArgs([]string{"server"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, uint64(0), cfg.MaxOps)
}

func TestParseArgs_addressAndPort(t *testing.T) {
	t.Run("full keyword form", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"server", "address", "192.168.0.1", "port", "3400"})
		require.NoError(t, err)
		assert.Equal(t, "192.168.0.1", cfg.Address)
		assert.Equal(t, uint16(3400), cfg.Port)
	})

	t.Run("first address wins", func(t *testing.T) {
		cfg, err := ParseArgs([]string{"server", "address", "10.0.0.1", "address", "10.0.0.2"})
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", cfg.Address)
	})

	t.Run("address without value fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "address"})
		assert.Error(t, err)
	})

	t.Run("port without value fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "port"})
		assert.Error(t, err)
	})

	t.Run("non-numeric port fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "port", "http"})
		assert.Error(t, err)
	})

	t.Run("out of range port fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "port", "70000"})
		assert.Error(t, err)
	})

	t.Run("invalid IPv4 address fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "address", "not-an-ip"})
		assert.Error(t, err)
	})

	t.Run("IPv6 address fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "address", "::1"})
		assert.Error(t, err)
	})

	t.Run("unrecognized argument fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"server", "bogus"})
		assert.Error(t, err)
	})
}

func TestParseArgs_maxOps(t *testing.T) {
	cfg, err := ParseArgs([]string{"--max-ops", "100", "server"})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cfg.MaxOps)
}

func TestParseArgs_configFile(t *testing.T) {
	writeFile := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "tcpcore.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeFile(t, "address: 10.1.2.3\nport: 9000\n")
		cfg, err := ParseArgs([]string{"--config", path, "server"})
		require.NoError(t, err)
		assert.Equal(t, "10.1.2.3", cfg.Address)
		assert.Equal(t, uint16(9000), cfg.Port)
	})

	t.Run("keyword arguments override file values", func(t *testing.T) {
		path := writeFile(t, "address: 10.1.2.3\nport: 9000\n")
		cfg, err := ParseArgs([]string{"--config", path, "server", "port", "8000"})
		require.NoError(t, err)
		assert.Equal(t, "10.1.2.3", cfg.Address)
		assert.Equal(t, uint16(8000), cfg.Port)
	})

	t.Run("partial file keeps defaults for the rest", func(t *testing.T) {
		path := writeFile(t, "port: 9000\n")
		cfg, err := ParseArgs([]string{"--config", path, "server"})
		require.NoError(t, err)
		assert.Equal(t, DefaultAddress, cfg.Address)
		assert.Equal(t, uint16(9000), cfg.Port)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := ParseArgs([]string{"--config", "/nonexistent/tcpcore.yaml", "server"})
		assert.Error(t, err)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := writeFile(t, "address: [unterminated\n")
		_, err := ParseArgs([]string{"--config", path, "server"})
		assert.Error(t, err)
	})
}

func TestConfig_endpoints(t *testing.T) {
	cfg := &Config{Mode: ModeServer, Address: "192.168.0.1", Port: 3400}

	assert.Equal(t, ":3400", cfg.ServerEndpoint())
	assert.Equal(t, "192.168.0.1:3400", cfg.ClientEndpoint())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{Mode: ModeServer, Address: "127.0.0.1", Port: 7500}
	assert.Equal(t, "[Server : 127.0.0.1 : 7500]", cfg.String())
}
