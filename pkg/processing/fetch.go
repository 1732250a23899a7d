package processing

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrForbiddenAddress is returned when a URL resolves to an address that
// public-only fetching refuses: loopback, private, link-local, multicast,
// unspecified or shared (CGNAT) ranges.
var ErrForbiddenAddress = errors.New("address not allowed")

var sharedRange = netip.MustParsePrefix("100.64.0.0/10")

// NewPublicProcessor returns a processor that only fetches from public
// addresses. The check runs on the resolved address of every connection,
// redirects included.
func NewPublicProcessor() *Processor {
	p := NewProcessor()
	p.HTTPClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: publicTransport(),
	}
	return p
}

func publicTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   denyNonPublic,
	}
	return &http.Transport{
		// no proxy: the proxy address would be checked instead of the target
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func denyNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%s: %w", host, ErrForbiddenAddress)
	}
	if !IsPublicAddr(addr) {
		return fmt.Errorf("%s: %w", addr, ErrForbiddenAddress)
	}
	return nil
}

// IsPublicAddr reports whether addr is a globally routable unicast address.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified(),
		sharedRange.Contains(addr):
		return false
	}
	return true
}
