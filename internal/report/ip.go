package report

import (
	"net/netip"
	"strings"
)

// IsIPAddress reports whether s is an IPv4/IPv6 address or CIDR range.
func IsIPAddress(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}

// IsIPv6 reports whether s is an IPv6 address or range.
func IsIPv6(s string) bool {
	if !strings.Contains(s, ":") {
		return false
	}
	return IsIPAddress(s)
}
