//go:build !linux

package poller

import "errors"

type Handle uint64

type Event struct {
	Handle   Handle
	Readable bool
	Writable bool
	Err      bool
}

type Poller struct{}

func New() (*Poller, error) {
	return nil, errors.New("readiness polling is only supported on linux")
}

func (p *Poller) Close() error                              { return nil }
func (p *Poller) Register(int, Handle, bool, bool) error    { return nil }
func (p *Poller) RegisterPersistent(int, Handle) error      { return nil }
func (p *Poller) SetInterest(int, Handle, bool, bool) error { return nil }
func (p *Poller) Deregister(int) error                      { return nil }
func (p *Poller) Wait([]Event) (int, error)                 { return 0, nil }
