package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from path, or searches the default locations when
// path is empty. A missing file is only an error when a path was given
// explicitly. Environment variables of the form TCPSOCKS_<KEY> override file
// values.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName("tcpsocks")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tcpsocks")
	}
	v.SetEnvPrefix("TCPSOCKS")
	v.AutomaticEnv()

	v.SetDefault("listen", def.Listen)
	v.SetDefault("socks5_server", def.SOCKS5Server)
	v.SetDefault("socks5_user", def.SOCKS5User)
	v.SetDefault("socks5_password", def.SOCKS5Password)
	v.SetDefault("destination", def.Destination)
	v.SetDefault("transparent", def.Transparent)
	v.SetDefault("max_conns", def.MaxConns)
	v.SetDefault("tcp_keepalive", def.TCPKeepAlive)
	v.SetDefault("debug_listen", def.DebugListen)
	v.SetDefault("verbose", def.Verbose)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
