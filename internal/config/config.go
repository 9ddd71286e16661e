// Package config holds the gateway's process configuration: defaults, an
// optional YAML file, and TCPSOCKS_* environment overrides. Flag handling
// stays in main; flags that were set explicitly win over everything here.
package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/qingchen1984/tcpsocks/internal/gateway"
)

type Config struct {
	// Listen is the client-facing listen address.
	Listen string `mapstructure:"listen"`

	// SOCKS5Server is the upstream SOCKS5 server address.
	SOCKS5Server string `mapstructure:"socks5_server"`

	// SOCKS5User/SOCKS5Password enable username/password authentication
	// when non-empty.
	SOCKS5User     string `mapstructure:"socks5_user"`
	SOCKS5Password string `mapstructure:"socks5_password"`

	// Destination is the fixed destination requested for every client.
	Destination string `mapstructure:"destination"`

	// Transparent recovers each client's original destination from the
	// kernel instead of using Destination.
	Transparent bool `mapstructure:"transparent"`

	// MaxConns bounds the connection table.
	MaxConns int `mapstructure:"max_conns"`

	// TCPKeepAlive is on|off|keepidle:keepintvl:keepcnt.
	TCPKeepAlive string `mapstructure:"tcp_keepalive"`

	// DebugListen exposes /debug/pprof and /debug/vars when non-empty.
	DebugListen string `mapstructure:"debug_listen"`

	// Verbose enables per-event debug logging.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:       "127.0.0.1:1098",
		SOCKS5Server: "127.0.0.1:1080",
		MaxConns:     gateway.DefaultMaxConns,
		TCPKeepAlive: "45:45:3",
	}
}

// Validate rejects configurations the gateway cannot start with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if c.SOCKS5Server == "" {
		return errors.New("socks5 server address is required")
	}
	if _, _, err := net.SplitHostPort(c.SOCKS5Server); err != nil {
		return fmt.Errorf("invalid socks5 server address: %w", err)
	}

	switch {
	case c.Transparent && c.Destination != "":
		return errors.New("destination and transparent mode are mutually exclusive")
	case !c.Transparent && c.Destination == "":
		return errors.New("either a destination or transparent mode is required")
	case c.Destination != "":
		if _, _, err := net.SplitHostPort(c.Destination); err != nil {
			return fmt.Errorf("invalid destination: %w", err)
		}
	}

	if c.SOCKS5User == "" && c.SOCKS5Password != "" {
		return errors.New("socks5 password requires a username")
	}
	if c.MaxConns < 3 {
		// One slot for the listener plus two per pair.
		return errors.New("max conns must be at least 3")
	}
	return nil
}
