// Package prefix models the announced prefix under validation: an
// address-family tag, up to 16 address bytes, and a prefix length
// (spec §3).
package prefix

import (
	"fmt"
	"net/netip"

	"github.com/srx-go/rpki-validator/internal/afi"
)

// Prefix is the address-family-tagged prefix under validation. Invariant:
// bits beyond Length are zero (spec §3) — enforced by New.
type Prefix struct {
	Family afi.Family
	Addr   [16]byte // first Family.ByteLen() bytes significant
	Length uint8
}

// New builds a Prefix, masking any bits beyond length to zero.
func New(family afi.Family, addr []byte, length uint8) (Prefix, error) {
	byteLen := family.ByteLen()
	if len(addr) != byteLen {
		return Prefix{}, fmt.Errorf("prefix: address length %d, want %d for %v", len(addr), byteLen, family)
	}
	maxBits := family.MaxPrefixBits()
	if int(length) > maxBits {
		return Prefix{}, fmt.Errorf("prefix: length %d exceeds %d bits for %v", length, maxBits, family)
	}

	var p Prefix
	p.Family = family
	p.Length = length
	copy(p.Addr[:byteLen], addr)
	maskTrailingBits(p.Addr[:byteLen], int(length))
	return p, nil
}

func maskTrailingBits(addr []byte, prefixLen int) {
	fullBytes := prefixLen / 8
	remBits := prefixLen % 8
	for i := fullBytes; i < len(addr); i++ {
		if i == fullBytes && remBits > 0 {
			mask := byte(0xFF << (8 - remBits))
			addr[i] &= mask
			continue
		}
		addr[i] = 0
	}
}

// Bytes returns the significant address bytes (4 or 16, per family).
func (p Prefix) Bytes() []byte {
	return p.Addr[:p.Family.ByteLen()]
}

// String renders the prefix in CIDR notation.
func (p Prefix) String() string {
	addr, ok := netip.AddrFromSlice(p.Bytes())
	if !ok {
		return fmt.Sprintf("<invalid prefix family=%v>", p.Family)
	}
	return fmt.Sprintf("%s/%d", addr.String(), p.Length)
}

// Equal reports whether p and o are the same prefix.
func (p Prefix) Equal(o Prefix) bool {
	return p.Family == o.Family && p.Length == o.Length && p.Bytes() != nil && string(p.Bytes()) == string(o.Bytes())
}
