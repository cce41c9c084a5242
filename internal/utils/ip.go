package utils

import (
	"fmt"
	"net"
	"net/netip"

	"go4.org/netipx"
)

// MaskPrefixLen converts a dotted IPv4 netmask ("255.255.255.0") or wildcard
// mask ("0.0.0.255") to its prefix length. A mask valid in both forms
// ("0.0.0.0") reads as a netmask. Non-contiguous masks are rejected.
func MaskPrefixLen(mask string) (int, error) {
	ip := net.ParseIP(mask).To4()
	if ip == nil {
		return 0, fmt.Errorf("invalid netmask %q", mask)
	}
	ones, bits := net.IPMask(ip).Size()
	if bits == 0 {
		wildcard := make(net.IPMask, net.IPv4len)
		for i, b := range ip {
			wildcard[i] = ^b
		}
		if ones, bits = wildcard.Size(); bits == 0 {
			return 0, fmt.Errorf("non-contiguous netmask %q", mask)
		}
	}
	return ones, nil
}

// ParseIPv4 parses a dotted-quad address and rejects every other family.
func ParseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return addr, nil
}

// RangeToPrefixes returns the minimal ordered set of CIDR blocks whose union
// is exactly the inclusive range start..end.
func RangeToPrefixes(start, end netip.Addr) ([]netip.Prefix, error) {
	if !start.Is4() || !end.Is4() {
		return nil, fmt.Errorf("range %s-%s is not IPv4", start, end)
	}
	r := netipx.IPRangeFrom(start, end)
	if !r.IsValid() {
		return nil, fmt.Errorf("range start %s is after end %s", start, end)
	}
	return r.Prefixes(), nil
}

// PrefixSize returns the number of addresses in an IPv4 prefix.
func PrefixSize(p netip.Prefix) uint64 {
	return 1 << (p.Addr().BitLen() - p.Bits())
}
