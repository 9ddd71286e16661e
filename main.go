package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/qingchen1984/tcpsocks/internal/config"
	"github.com/qingchen1984/tcpsocks/internal/gateway"
	"github.com/qingchen1984/tcpsocks/internal/socks5"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "", "Path to YAML config file. Empty searches . and /etc/tcpsocks.")

		listen       = pflag.String("listen", "", "Client-facing listen address (e.g. 127.0.0.1:1098)")
		socksServer  = pflag.String("socks5-server", "", "Upstream SOCKS5 server address (e.g. 127.0.0.1:1080)")
		socksUser    = pflag.String("socks5-user", "", "Username for SOCKS5 username/password authentication. Empty disables.")
		socksPass    = pflag.String("socks5-password", "", "Password for SOCKS5 username/password authentication")
		destination  = pflag.String("destination", "", "Fixed destination host:port requested for every client")
		transparent  = pflag.Bool("transparent", false, "Recover each client's original destination from the kernel (iptables REDIRECT)")
		maxConns     = pflag.Int("max-conns", 0, "Maximum tracked descriptors, including the listener")
		tcpKeepAlive = pflag.String("tcp-keepalive", "", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		debugListen  = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /debug/vars (e.g. 127.0.0.1:6060). Empty disables.")
		verbose      = pflag.Bool("verbose", false, "Enable per-event debug logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags set explicitly win over the file and environment.
	flags := pflag.CommandLine
	if flags.Changed("listen") {
		cfg.Listen = *listen
	}
	if flags.Changed("socks5-server") {
		cfg.SOCKS5Server = *socksServer
	}
	if flags.Changed("socks5-user") {
		cfg.SOCKS5User = *socksUser
	}
	if flags.Changed("socks5-password") {
		cfg.SOCKS5Password = *socksPass
	}
	if flags.Changed("destination") {
		cfg.Destination = *destination
	}
	if flags.Changed("transparent") {
		cfg.Transparent = *transparent
	}
	if flags.Changed("max-conns") {
		cfg.MaxConns = *maxConns
	}
	if flags.Changed("tcp-keepalive") {
		cfg.TCPKeepAlive = *tcpKeepAlive
	}
	if flags.Changed("debug-listen") {
		cfg.DebugListen = *debugListen
	}
	if flags.Changed("verbose") {
		cfg.Verbose = *verbose
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Listen:       cfg.Listen,
		SOCKS5Server: cfg.SOCKS5Server,
		Auth:         socks5.Auth{Username: cfg.SOCKS5User, Password: cfg.SOCKS5Password},
		Destination:  cfg.Destination,
		Transparent:  cfg.Transparent,
		MaxConns:     cfg.MaxConns,
		ControlFD:    int(os.Stdin.Fd()),
		KeepAlive:    ka,
		Log:          log,
	})
	if err != nil {
		return err
	}
	defer gw.Close()

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Info("debug listening", "addr", cfg.DebugListen)
	}

	g.Go(func() error {
		return gw.Run(ctx)
	})
	log.Info("listening", "addr", gw.Addr(), "socks5_server", cfg.SOCKS5Server, "transparent", cfg.Transparent)

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info("shutting down")
	return err
}

func parseTCPKeepAlive(s string) (gateway.KeepAlive, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return gateway.KeepAlive{}, errors.New("empty")
	}
	if s == "on" {
		return gateway.KeepAlive{Enable: true}, nil
	}
	if s == "off" {
		return gateway.KeepAlive{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return gateway.KeepAlive{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return gateway.KeepAlive{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return gateway.KeepAlive{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return gateway.KeepAlive{}, fmt.Errorf("keepcnt: %w", err)
	}

	return gateway.KeepAlive{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
