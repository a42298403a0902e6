// Package addr implements the 32-bit address and prefix primitives that the
// rest of the topology reconstruction pipeline is built on: the host-order
// address type, prefix/broadcast arithmetic, and the named/anonymous
// classification of an address.
package addr

import (
	"encoding/binary"
	"net/netip"
)

// Address is a 32-bit IPv4 address in host order.
type Address uint32

// AnonBase is the first address of the reserved block synthetic addresses
// for non-responding hops are allocated from. The block is 224.0.0.0/4,
// matching the multicast range: no named interface is ever resolved there,
// so it is safe to repurpose as the anonymous address space.
const AnonBase Address = 0xE0000000 // 224.0.0.0

// AnonBlockSize is the number of addresses available for anonymous
// interfaces before the space is exhausted.
const AnonBlockSize = 1 << 28

// IsAnonymous reports whether a is the zero address or falls in the
// reserved anonymous block.
func IsAnonymous(a Address) bool {
	return a == 0 || (a >= AnonBase && a < AnonBase+AnonBlockSize)
}

// Less orders addresses with anonymous ones sorting before named ones, and
// numerically within each class.
func Less(a, b Address) bool {
	aa, ba := IsAnonymous(a), IsAnonymous(b)
	if aa != ba {
		return aa
	}
	return a < b
}

// Prefix returns the len-bit network prefix containing addr, with the host
// part zeroed.
func Prefix(a Address, length int) Address {
	if length <= 0 {
		return 0
	}
	if length >= 32 {
		return a
	}
	return a &^ (Address(^uint32(0)) >> uint(length))
}

// MaxAddr returns the broadcast (all-ones host part) address of the length-
// bit prefix containing addr.
func MaxAddr(a Address, length int) Address {
	if length <= 0 {
		return Address(^uint32(0))
	}
	if length >= 32 {
		return a
	}
	return a | (Address(^uint32(0)) >> uint(length))
}

// CommonPrefixLen returns the length, in bits, of the longest prefix shared
// by a and b.
func CommonPrefixLen(a, b Address) int {
	length := 32
	for diff := uint32(a ^ b); diff != 0; diff >>= 1 {
		length--
	}
	return length
}

// SamePrefix reports whether a and b share the same length-bit prefix.
func SamePrefix(a, b Address, length int) bool {
	if length <= 0 {
		return true
	}
	if length >= 32 {
		return a == b
	}
	return uint32(a^b)>>uint(32-length) == 0
}

// MaxSubnetLen finds the longest prefix length that holds both a and b
// without making either address the subnet's broadcast address: the common
// prefix is shortened further while either address's complement falls on a
// subnet boundary, excluding candidate lengths one bit above the actual
// data. This mirrors the original maxSubnetLen exclusion loop exactly.
func MaxSubnetLen(a, b Address) int {
	length := CommonPrefixLen(a, b)
	if length < 31 {
		if a > b {
			a, b = b, a
		}
		b = b + 1 // bump from x.111... to (x+1).000...
		for length > 0 && (shiftLeftIsZero(a, length) || shiftLeftIsZero(b, length)) {
			length--
		}
	}
	return length
}

func shiftLeftIsZero(a Address, length int) bool {
	if length >= 32 {
		return true
	}
	return uint32(a)<<uint(length) == 0
}

// String renders a in dotted-decimal form, the way the teacher's own
// uint32_to_ip/net.IP.String round trip does.
func (a Address) String() string {
	return ToNetIP(a).String()
}

// ToNetIP converts a host-order Address into a net/netip.Addr, for
// interoperability with LPM libraries keyed on netip.Addr (e.g. the bogon
// table).
func ToNetIP(a Address) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(a))
	return netip.AddrFrom4(b)
}

// FromNetIP converts a net/netip.Addr (must be a 4-in-4 address) to an
// Address.
func FromNetIP(ip netip.Addr) Address {
	b := ip.As4()
	return Address(binary.BigEndian.Uint32(b[:]))
}

// BinaryString renders addr as a zero-padded 32-character binary string,
// truncated to the given prefix length. Used to key the radix-tree backed
// bad-subnet index.
func BinaryString(a Address, length int) string {
	if length < 0 {
		length = 0
	}
	if length > 32 {
		length = 32
	}
	var buf [32]byte
	for i := 0; i < 32; i++ {
		if uint32(a)&(1<<uint(31-i)) != 0 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf[:length])
}
