package upstream

import (
	"fmt"
	"net"
)

// splitHostPort splits "host", "host:port", or "[ipv6]:port" into its
// host and port parts. A bare IP address with no port returns an empty
// port string rather than an error; any other portless form (such as a
// hostname) is an error.
func splitHostPort(address string) (string, string, error) {
	host, port, err := net.SplitHostPort(address)
	if err == nil {
		return host, port, nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return "", "", fmt.Errorf("upstream: invalid address %q: %w", address, err)
	}
	return address, "", nil
}
