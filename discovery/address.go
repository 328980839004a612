package discovery

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned for peer addresses that cannot be dialed.
var ErrInvalidAddress = errors.New("invalid peer address")

// ParseAddress normalizes s to "host:port". A missing port is replaced by
// defaultPort. Bare IPv6 addresses are accepted with or without brackets.
func ParseAddress(s string, defaultPort uint16) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// No port: a hostname, an IPv4 literal, or an IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		if strings.Contains(host, ":") && net.ParseIP(host) == nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		port = strconv.Itoa(int(defaultPort))
	}
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, s)
	}

	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || n == 0 {
		return "", fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, s)
	}
	return net.JoinHostPort(host, port), nil
}

// ParseList parses a comma-separated address list. Empty entries are
// skipped and duplicates are dropped, keeping first-seen order.
func ParseList(list string, defaultPort uint16) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, field := range strings.Split(list, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		addr, err := ParseAddress(field, defaultPort)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

// Rotate returns a copy of addrs starting at offset and wrapping around.
func Rotate(addrs []string, offset int) []string {
	if len(addrs) == 0 {
		return nil
	}
	offset %= len(addrs)
	if offset < 0 {
		offset += len(addrs)
	}
	out := make([]string, 0, len(addrs))
	out = append(out, addrs[offset:]...)
	return append(out, addrs[:offset]...)
}

// RandomOffset picks a uniformly random start index for a list of n entries.
func RandomOffset(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}
