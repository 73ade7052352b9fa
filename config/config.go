// Package config defines the resolved runtime configuration for tcpcore and
// parses it from keyword-style command-line arguments, optionally seeded from
// a YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Mode selects whether the process runs as a server or a client.
type Mode int

const (
	ModeUnknown Mode = iota // No mode was resolved
	ModeServer              // Listen and accept connections
	ModeClient              // Connect to a remote server
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "Server"
	case ModeClient:
		return "Client"
	default:
		return "Unknown"
	}
}

const (
	// DefaultAddress is used when no address argument is supplied.
	DefaultAddress = "127.0.0.1"
	// DefaultPort is used when no port argument is supplied.
	DefaultPort uint16 = 7500
)

// ErrModeRequired is returned by ParseArgs when neither "server" nor
// "client" appears in the arguments.
var ErrModeRequired = errors.New("mode is required: server | client")

// Config is the resolved runtime configuration. It is immutable after
// construction; build it once via ParseArgs and pass it by pointer.
type Config struct {
	Mode    Mode
	Address string // IPv4 dotted-quad
	Port    uint16
	MaxOps  uint64 // 0 means no operation budget
}

// fileConfig is the YAML shape accepted by the --config flag.
type fileConfig struct {
	Address string  `yaml:"address"`
	Port    *uint16 `yaml:"port"`
}

// String renders the configuration for diagnostics.
func (c *Config) String() string {
	return fmt.Sprintf("[%s : %s : %d]", c.Mode, c.Address, c.Port)
}

// ServerEndpoint returns the listen address for the acceptor. The server
// binds all interfaces on the configured port.
//
// Returns:
//   - A "host:port" string suitable for net.Listen
func (c *Config) ServerEndpoint() string {
	return net.JoinHostPort("", strconv.Itoa(int(c.Port)))
}

// ClientEndpoint returns the remote address a client would connect to.
//
// Returns:
//   - A "host:port" string suitable for net.Dial
func (c *Config) ClientEndpoint() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// ParseArgs builds a Config from command-line arguments. The arguments use
// keyword style: "server" or "client" selects the mode, "address <ip>" and
// "port <n>" supply the endpoint. Keywords are matched case-insensitively
// and the first occurrence of each wins. A --config flag may name a YAML
// file whose values sit between the defaults and the keyword arguments.
//
// Parameters:
//   - args: Arguments to parse, typically os.Args[1:]
//
// Returns:
//   - The resolved Config
//   - An error if no mode is given, a value is missing or invalid, or the
//     config file cannot be read
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tcpcore", flag.ContinueOnError)

	var configPath string
	var maxOps uint64
	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.Uint64Var(&maxOps, "max-ops", 0, "Stop after servicing this many operations (0 = run until signalled)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:    ModeUnknown,
		Address: DefaultAddress,
		Port:    DefaultPort,
		MaxOps:  maxOps,
	}

	if configPath != "" {
		if err := applyFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyKeywords(cfg, fs.Args()); err != nil {
		return nil, err
	}

	if cfg.Mode == ModeUnknown {
		return nil, ErrModeRequired
	}

	ip := net.ParseIP(cfg.Address)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("address %q is not a valid IPv4 address", cfg.Address)
	}

	return cfg, nil
}

// applyFile overlays values from a YAML file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Address != "" {
		cfg.Address = fc.Address
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}

	return nil
}

// applyKeywords overlays keyword-style positional arguments onto cfg.
func applyKeywords(cfg *Config, args []string) error {
	var modeFound, addressFound, portFound bool

	for i := 0; i < len(args); i++ {
		word := strings.ToLower(args[i])

		switch word {
		case "server":
			if !modeFound {
				cfg.Mode = ModeServer
				modeFound = true
			}

		case "client":
			if !modeFound {
				cfg.Mode = ModeClient
				modeFound = true
			}

		case "address":
			if i+1 >= len(args) {
				return errors.New("address keyword requires a value")
			}
			if !addressFound {
				cfg.Address = args[i+1]
				addressFound = true
			}
			i++

		case "port":
			if i+1 >= len(args) {
				return errors.New("port keyword requires a value")
			}
			if !portFound {
				p, err := strconv.ParseUint(args[i+1], 10, 16)
				if err != nil {
					return fmt.Errorf("port %q is not a number in [0, 65535]", args[i+1])
				}
				cfg.Port = uint16(p)
				portFound = true
			}
			i++

		default:
			return fmt.Errorf("unrecognized argument %q", args[i])
		}
	}

	return nil
}
