// Package domain holds the core value types of pingtally: client addresses,
// per-client counts and the ranked report derived from them.
package domain

import (
	"fmt"
	"net"
	"net/netip"
)

// ClientAddress is the IP address of a peer making a request.
// The zero value is invalid and never counted.
type ClientAddress = netip.Addr

// NormalizeAddress returns the canonical form used as a counter key:
// IPv4-mapped IPv6 addresses collapse onto IPv4 and zones are dropped.
func NormalizeAddress(a netip.Addr) ClientAddress {
	return a.Unmap().WithZone("")
}

// ParseRemoteAddr extracts the client address from a transport peer string
// such as "127.0.0.1:52314" or "[::1]:52314". A bare IP without a port is
// accepted as well.
func ParseRemoteAddr(remote string) (ClientAddress, error) {
	if remote == "" {
		return ClientAddress{}, fmt.Errorf("empty remote address")
	}
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return NormalizeAddress(ap.Addr()), nil
	}
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ClientAddress{}, fmt.Errorf("invalid remote address %q: %w", remote, err)
	}
	return NormalizeAddress(addr), nil
}
