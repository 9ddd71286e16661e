package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/qingchen1984/tcpsocks/internal/gateway"
)

func TestDefaultSharesGatewayMaxConns(t *testing.T) {
	if got := Default().MaxConns; got != gateway.DefaultMaxConns {
		t.Errorf("Default().MaxConns = %d, want gateway.DefaultMaxConns (%d)", got, gateway.DefaultMaxConns)
	}
}

func TestLoadDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcpsocks.yaml")
	body := `
listen: 0.0.0.0:2098
socks5_server: 10.0.0.1:1080
socks5_user: alice
socks5_password: hunter2
transparent: true
max_conns: 64
verbose: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.Listen = "0.0.0.0:2098"
	want.SOCKS5Server = "10.0.0.1:1080"
	want.SOCKS5User = "alice"
	want.SOCKS5Password = "hunter2"
	want.Transparent = true
	want.MaxConns = 64
	want.Verbose = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load(%q) mismatch (-want +got):\n%s", path, diff)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load with a missing explicit file succeeded")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TCPSOCKS_MAX_CONNS", "16")
	t.Setenv("TCPSOCKS_DESTINATION", "192.0.2.1:443")

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MaxConns != 16 {
		t.Errorf("MaxConns = %d, want 16", got.MaxConns)
	}
	if got.Destination != "192.0.2.1:443" {
		t.Errorf("Destination = %q, want 192.0.2.1:443", got.Destination)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Destination = "192.0.2.1:80"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid destination", func(c *Config) {}, ""},
		{"valid transparent", func(c *Config) {
			c.Destination = ""
			c.Transparent = true
		}, ""},
		{"no listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"bad listen", func(c *Config) { c.Listen = "nope" }, "listen"},
		{"no socks5 server", func(c *Config) { c.SOCKS5Server = "" }, "socks5 server"},
		{"destination and transparent", func(c *Config) { c.Transparent = true }, "mutually exclusive"},
		{"neither destination nor transparent", func(c *Config) { c.Destination = "" }, "required"},
		{"bad destination", func(c *Config) { c.Destination = "no-port" }, "destination"},
		{"password without user", func(c *Config) { c.SOCKS5Password = "x" }, "username"},
		{"max conns too small", func(c *Config) { c.MaxConns = 2 }, "max conns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
