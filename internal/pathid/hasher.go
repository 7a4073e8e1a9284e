// Package pathid computes the deterministic 32-bit identifier used to key
// the AS-path cache, so that two differently-encoded transmissions of the
// same AS sequence always memoize to the same entry.
package pathid

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// ID is a CRC-32 over the canonical text form of an AS-number sequence.
type ID uint32

// Invalid is returned for empty input; callers must treat it as an error,
// not a valid hash of the empty path (spec §4.1).
const Invalid ID = 0

// Compute returns the path ID for asns in the order given. The canonical
// form is each AS number rendered as 8 uppercase hex digits of its
// host-order value, concatenated, with a single trailing length-padding
// byte (the AS count mod 256) — this keeps the hash stable across
// transports that could otherwise pad, reverse, or re-chunk the raw bytes,
// at the cost of needing the text form documented here.
func Compute(asns []uint32) ID {
	if len(asns) == 0 {
		return Invalid
	}

	var b strings.Builder
	b.Grow(len(asns)*8 + 1)
	for _, asn := range asns {
		fmt.Fprintf(&b, "%08X", asn)
	}
	b.WriteByte(byte(len(asns) % 256))

	return ID(crc32.ChecksumIEEE([]byte(b.String())))
}
