//go:build !linux

package originaldst

import (
	"errors"
	"net/netip"
)

func Lookup(_ int) (netip.AddrPort, error) {
	return netip.AddrPort{}, errors.New("original destination lookup is only supported on linux")
}
