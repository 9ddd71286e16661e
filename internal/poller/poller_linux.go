//go:build linux

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Handle is an opaque caller-supplied payload attached to a registration and
// reported back with every event for it. It survives fd reuse, which the raw
// descriptor number does not.
type Handle uint64

// Event is one readiness notification.
type Event struct {
	Handle   Handle
	Readable bool
	Writable bool
	// Err is set on error or hang-up conditions, which the OS reports
	// whether or not they were asked for.
	Err bool
}

// Poller multiplexes readiness notifications for many descriptors over a
// single blocking wait.
type Poller struct {
	epfd int
}

func New() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Poller{epfd: fd}, nil
}

func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

// Register adds fd with one-shot interest. After any event fires for fd the
// registration is disabled until SetInterest re-arms it.
func (p *Poller) Register(fd int, h Handle, read, write bool) error {
	ev := epollEvent(h, eventMask(read, write, true))
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	return nil
}

// RegisterPersistent adds fd with level-triggered read interest that stays
// armed across events. Used for the listening and control descriptors.
func (p *Poller) RegisterPersistent(fd int, h Handle) error {
	ev := epollEvent(h, eventMask(true, false, false))
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	return nil
}

// SetInterest declares what fd should currently wait for and re-arms its
// one-shot registration accordingly. It must be called after every state
// change that could alter what the descriptor waits for; a consumed readiness
// flag that is never re-armed silently stops delivering events.
func (p *Poller) SetInterest(fd int, h Handle, read, write bool) error {
	ev := epollEvent(h, eventMask(read, write, true))
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll mod fd %d: %w", fd, err)
	}
	return nil
}

func (p *Poller) Deregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one event is ready and fills events with as many
// as are available, returning the count. EINTR is retried internally.
func (p *Poller) Wait(events []Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	for {
		n, err := unix.EpollWait(p.epfd, raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			events[i] = Event{
				Handle:   handleFrom(raw[i]),
				Readable: raw[i].Events&unix.EPOLLIN != 0,
				Writable: raw[i].Events&unix.EPOLLOUT != 0,
				Err:      raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			}
		}
		return n, nil
	}
}

// eventMask builds the OS interest mask from the desired read/write flags.
func eventMask(read, write, oneshot bool) uint32 {
	var m uint32
	if read {
		m |= unix.EPOLLIN
	}
	if write {
		m |= unix.EPOLLOUT
	}
	if oneshot {
		m |= unix.EPOLLONESHOT
	}
	return m
}

// The 64-bit handle rides in the event payload, split across the Fd and Pad
// fields of the epoll data union.
func epollEvent(h Handle, mask uint32) unix.EpollEvent {
	return unix.EpollEvent{
		Events: mask,
		Fd:     int32(uint32(h)),
		Pad:    int32(uint32(h >> 32)),
	}
}

func handleFrom(ev unix.EpollEvent) Handle {
	return Handle(uint32(ev.Fd)) | Handle(uint32(ev.Pad))<<32
}
