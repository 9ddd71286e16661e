//go:build !linux

package gateway

import (
	"context"
	"errors"
	"net/netip"
)

// Gateway requires epoll; non-Linux builds fail at construction.
type Gateway struct{}

func New(Config) (*Gateway, error) {
	return nil, errors.New("the gateway is only supported on linux")
}

func (g *Gateway) Run(context.Context) error { return nil }
func (g *Gateway) Close() error              { return nil }
func (g *Gateway) Addr() netip.AddrPort      { return netip.AddrPort{} }
