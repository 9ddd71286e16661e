//go:build linux

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/qingchen1984/tcpsocks/internal/poller"
)

const (
	relayBufSize = 64 * 1024
	eventBatch   = 128
)

// wakeHandle marks the internal shutdown pipe. Table handles always carry a
// nonzero generation, so zero never collides with a record.
const wakeHandle poller.Handle = 0

// Gateway is one relay instance. All methods run on the goroutine that calls
// Run; only Close and the context wakeup may be invoked from elsewhere.
type Gateway struct {
	cfg Config
	log *slog.Logger

	poller *poller.Poller
	table  *table

	listenFD   int
	listenAddr netip.AddrPort
	destAddr   netip.AddrPort
	socksSA    *unix.SockaddrInet4

	// One reusable relay buffer; single-threaded dispatch means it is
	// never in use twice.
	readBuf []byte

	wakeR, wakeW int
	wakeOnce     sync.Once
	closeOnce    sync.Once
}

// New binds the listening socket and registers the listening, control, and
// wakeup descriptors. Any failure here is a fatal startup error.
func New(cfg Config) (*Gateway, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}

	g := &Gateway{
		cfg:     cfg,
		log:     cfg.Log,
		table:   newTable(cfg.MaxConns),
		readBuf: make([]byte, relayBufSize),
		wakeR:   -1,
		wakeW:   -1,
	}

	socksAddr, err := resolveIPv4(cfg.SOCKS5Server)
	if err != nil {
		return nil, fmt.Errorf("socks5 server: %w", err)
	}
	g.socksSA, err = sockaddr4(socksAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 server: %w", err)
	}

	if cfg.Transparent {
		if cfg.Destination != "" {
			return nil, errors.New("destination and transparent mode are mutually exclusive")
		}
	} else {
		if cfg.Destination == "" {
			return nil, errors.New("either a destination or transparent mode is required")
		}
		g.destAddr, err = resolveIPv4(cfg.Destination)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
	}

	listenAddr, err := resolveIPv4(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	g.poller, err = poller.New()
	if err != nil {
		return nil, err
	}

	g.listenFD, err = listenTCP4(listenAddr)
	if err != nil {
		_ = g.poller.Close()
		return nil, err
	}
	g.listenAddr, err = localAddrPort(g.listenFD)
	if err != nil {
		g.cleanupStartup()
		return nil, err
	}

	lrec, err := g.table.allocate(g.listenFD)
	if err != nil {
		g.cleanupStartup()
		return nil, err
	}
	lrec.state = StateListening
	lrec.addr = g.listenAddr
	if err := g.poller.RegisterPersistent(lrec.fd, lrec.handle); err != nil {
		g.cleanupStartup()
		return nil, err
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		g.cleanupStartup()
		return nil, fmt.Errorf("wakeup pipe: %w", err)
	}
	g.wakeR, g.wakeW = wake[0], wake[1]
	if err := g.poller.RegisterPersistent(g.wakeR, wakeHandle); err != nil {
		g.cleanupStartup()
		return nil, err
	}

	g.registerControl()

	return g, nil
}

// registerControl watches the control descriptor if one is configured. Not
// every stdin is pollable, so failure only disables the feature.
func (g *Gateway) registerControl() {
	if g.cfg.ControlFD < 0 {
		return
	}
	if err := unix.SetNonblock(g.cfg.ControlFD, true); err != nil {
		g.log.Debug("control descriptor unavailable", "fd", g.cfg.ControlFD, "error", err)
		return
	}
	rec, err := g.table.allocate(g.cfg.ControlFD)
	if err != nil {
		g.log.Debug("control descriptor unavailable", "fd", g.cfg.ControlFD, "error", err)
		return
	}
	rec.state = StateControl
	if err := g.poller.RegisterPersistent(rec.fd, rec.handle); err != nil {
		g.table.release(rec.handle)
		g.log.Debug("control descriptor unavailable", "fd", g.cfg.ControlFD, "error", err)
	}
}

func (g *Gateway) cleanupStartup() {
	_ = unix.Close(g.listenFD)
	_ = g.poller.Close()
	if g.wakeR >= 0 {
		_ = unix.Close(g.wakeR)
	}
	if g.wakeW >= 0 {
		_ = unix.Close(g.wakeW)
	}
}

// Addr is the bound listen address.
func (g *Gateway) Addr() netip.AddrPort { return g.listenAddr }

// Run blocks dispatching readiness events until ctx is canceled or the
// reactor fails. A canceled context is a clean shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	defer context.AfterFunc(ctx, g.wake)()

	g.log.Info("gateway listening", "addr", g.listenAddr.String(), "transparent", g.cfg.Transparent)

	events := make([]poller.Event, eventBatch)
	for {
		n, err := g.poller.Wait(events)
		if err != nil {
			return err
		}
		for _, ev := range events[:n] {
			if ev.Handle == wakeHandle {
				return nil
			}
			g.dispatch(ev)
		}
	}
}

// wake makes the blocked Wait return by closing the write end of the wakeup
// pipe.
func (g *Gateway) wake() {
	g.wakeOnce.Do(func() {
		_ = unix.Close(g.wakeW)
		g.wakeW = -1
	})
}

// Close releases every descriptor and the reactor. Safe after Run returns.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.table.each(func(rec *record) { g.closeOne(rec) })
		g.wake()
		if g.wakeR >= 0 {
			_ = unix.Close(g.wakeR)
		}
		_ = g.poller.Close()
	})
	return nil
}

func (g *Gateway) dispatch(ev poller.Event) {
	rec := g.table.get(ev.Handle)
	if rec == nil || rec.state == StateClosed {
		// Stale event for a pair torn down earlier in this batch.
		return
	}

	switch rec.state {
	case StateListening:
		g.processAccept()
	case StateControl:
		g.processControl(rec)
	default:
		g.processConn(rec, ev)
	}
}

// processConn updates the record's readiness bookkeeping for one event and
// then runs whichever guarded actions became possible.
func (g *Gateway) processConn(rec *record, ev poller.Event) {
	h := rec.handle

	if ev.Writable {
		g.log.Debug("writable", "fd", rec.fd, "state", rec.state)
		rec.writeReady = true
		rec.wantWrite = false
		if !g.updateInterest(rec) {
			return
		}
		// A drained socket buffer means the peer may resume reading
		// toward us, unless we still owe it delivery of earlier bytes.
		if peer := g.table.get(rec.peer); peer != nil && peer != rec &&
			rec.state.writable() && peer.state.readable() && len(rec.pending) == 0 && !peer.wantRead {
			peer.wantRead = true
			if !g.updateInterest(peer) {
				return
			}
		}
	}

	if ev.Readable {
		g.log.Debug("readable", "fd", rec.fd, "state", rec.state)
		rec.readReady = true
		rec.wantRead = false
		if !g.updateInterest(rec) {
			return
		}
	}

	if ev.Err {
		g.log.Debug("error or hang-up", "fd", rec.fd, "state", rec.state)
		if rec.state.handshaking() {
			// Route through the handshake so a half-built pair is
			// cleaned up exactly like a completed one. The final
			// reply may still be readable; if the phase cannot
			// finish, fail it.
			g.stepHandshake(rec, true)
			if rec = g.table.get(h); rec != nil && rec.state.handshaking() {
				g.failHandshake(rec, "handshake", unix.ECONNRESET)
			}
		} else {
			g.closePair(rec)
		}
		return
	}

	// Guarded dispatch, in the same order the readiness flags allow: relay
	// a fresh read, flush outstanding debt, then advance the handshake.
	if rec.readReady && rec.state.readable() {
		if peer := g.table.get(rec.peer); peer != nil && peer != rec &&
			peer.writeReady && len(peer.pending) == 0 && peer.state.writable() {
			g.processReadable(rec, peer)
		}
	}

	if rec = g.table.get(h); rec == nil {
		return
	}
	if rec.writeReady && len(rec.pending) > 0 && rec.state.writable() {
		g.processDebt(rec)
	}

	if rec = g.table.get(h); rec == nil {
		return
	}
	if rec.state.handshaking() {
		g.stepHandshake(rec, false)
	}
}

// processControl consumes input on the control descriptor and dumps
// per-connection diagnostics. EOF stops watching it.
func (g *Gateway) processControl(rec *record) {
	buf := make([]byte, 256)
	for {
		n, err := unix.Read(rec.fd, buf)
		if err == unix.EAGAIN {
			break
		}
		if err != nil || n == 0 {
			_ = g.poller.Deregister(rec.fd)
			g.table.release(rec.handle)
			return
		}
		if n < len(buf) {
			break
		}
	}

	g.table.each(func(r *record) {
		if r.state == StateListening || r.state == StateControl {
			return
		}
		g.log.Info("connection",
			"fd", r.fd,
			"role", r.role.String(),
			"state", r.state.String(),
			"addr", r.addr.String(),
			"bytes_relayed", r.bytesRelayed,
			"debt", len(r.pending),
		)
	})
}

// updateInterest pushes the record's desired interest to the reactor. On
// failure the pair is torn down and false returned so callers stop touching
// the record.
func (g *Gateway) updateInterest(rec *record) bool {
	if err := g.poller.SetInterest(rec.fd, rec.handle, rec.wantRead, rec.wantWrite); err != nil {
		g.log.Warn("interest update failed", "fd", rec.fd, "error", err)
		g.closePair(rec)
		return false
	}
	return true
}
