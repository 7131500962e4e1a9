package collyfetcher

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

// errNonPublicAddress marks a dial refused because the resolved address is not
// routable on the public internet.
var errNonPublicAddress = errors.New("address is not publicly routable")

var nonPublicRanges = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// publicOnly is a net.Dialer Control hook. It runs after name resolution, so
// hostnames that resolve or redirect to internal addresses are refused too.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", errNonPublicAddress, address)
	}
	if !isPublic(addr) {
		return fmt.Errorf("%w: %s", errNonPublicAddress, addr)
	}
	return nil
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	for _, prefix := range nonPublicRanges {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}
