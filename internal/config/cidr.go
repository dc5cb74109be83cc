package config

import (
	"encoding/binary"
	"fmt"
	"net"
)

// CIDRSubnet calculates a subnet address given a network address, a netmask size increase, and a subnet number.
// This mimics the behavior of Terraform's cidrsubnet function.
//
// Parameters:
//   - prefix: The network prefix (e.g., "10.0.0.0/16")
//   - newbits: The number of additional bits to add to the prefix length (e.g., 8 for /24 inside /16)
//   - netnum: The zero-based index of the subnet to calculate
//
// Note: Only IPv4 addresses are supported. IPv6 addresses will return an error.
func CIDRSubnet(prefix string, newbits int, netnum int) (string, error) {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR prefix: %w", err)
	}

	// Validate IPv4
	if network.IP.To4() == nil {
		return "", fmt.Errorf("only IPv4 addresses are supported, got IPv6: %s", prefix)
	}

	maskSize, totalBits := network.Mask.Size()
	newMaskSize := maskSize + newbits

	if newMaskSize > totalBits {
		return "", fmt.Errorf("prefix extension of %d bits is too large for %s", newbits, prefix)
	}

	// Calculate the max number of subnets allowed with newbits
	maxSubnets := 1 << newbits
	if netnum >= maxSubnets {
		return "", fmt.Errorf("subnet number %d exceeds max subnets %d", netnum, maxSubnets)
	}

	// Convert IP to integer
	ip := network.IP
	if ip.To4() != nil {
		ip = ip.To4()
	}

	ipInt := bigIntFromIP(ip)

	// Calculate the size of each subnet
	subnetSize := 1 << (totalBits - newMaskSize)

	// Add the offset
	offset := netnum * subnetSize

	// Add offset to IP
	// #nosec G115
	ipInt += uint64(offset)

	// Convert back to IP
	newIP := ipFromBigInt(ipInt)

	return fmt.Sprintf("%s/%d", newIP.String(), newMaskSize), nil
}

// SubnetAllocator hands out aligned, non-overlapping blocks from a parent
// prefix in request order. Blocks of different sizes may be mixed; each block
// is aligned to its own size, so gaps are left where alignment requires.
type SubnetAllocator struct {
	prefix   string
	maskSize int
	base     uint64
	end      uint64
	next     uint64
}

// NewSubnetAllocator creates an allocator over an IPv4 prefix.
func NewSubnetAllocator(prefix string) (*SubnetAllocator, error) {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("only IPv4 addresses are supported, got IPv6: %s", prefix)
	}

	maskSize, totalBits := network.Mask.Size()
	base := bigIntFromIP(network.IP)
	return &SubnetAllocator{
		prefix:   network.String(),
		maskSize: maskSize,
		base:     base,
		end:      base + (uint64(1) << (totalBits - maskSize)),
		next:     base,
	}, nil
}

// Next allocates the next free block with the given mask length.
func (a *SubnetAllocator) Next(mask int) (string, error) {
	if mask < a.maskSize || mask > 32 {
		return "", fmt.Errorf("mask /%d does not fit inside %s", mask, a.prefix)
	}

	size := uint64(1) << (32 - mask)
	start := (a.next + size - 1) &^ (size - 1)
	if start+size > a.end {
		return "", fmt.Errorf("address space %s exhausted allocating a /%d", a.prefix, mask)
	}

	// #nosec G115
	cidr, err := CIDRSubnet(a.prefix, mask-a.maskSize, int((start-a.base)/size))
	if err != nil {
		return "", err
	}
	a.next = start + size
	return cidr, nil
}

// Overlaps reports whether two IPv4 prefixes share any address.
func Overlaps(a, b string) (bool, error) {
	_, na, err := net.ParseCIDR(a)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", a, err)
	}
	_, nb, err := net.ParseCIDR(b)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", b, err)
	}
	return na.Contains(nb.IP) || nb.Contains(na.IP), nil
}

// bigIntFromIP converts an IP address to uint64.
// Only supports IPv4 addresses.
func bigIntFromIP(ip net.IP) uint64 {
	if len(ip) == 16 {
		if ip4 := ip.To4(); ip4 != nil {
			return uint64(binary.BigEndian.Uint32(ip4))
		}
		return 0
	}
	return uint64(binary.BigEndian.Uint32(ip))
}

// ipFromBigInt converts a uint64 value back to an IPv4 address.
func ipFromBigInt(val uint64) net.IP {
	ip := make(net.IP, 4)
	// #nosec G115
	binary.BigEndian.PutUint32(ip, uint32(val))
	return ip
}
