// Package aspaval implements the ASPA validation algorithm: an
// upstream/downstream walk of an AS path against the ASPA trust store
// (spec §4.7), grounded on the reference do_AspaValidation walk in
// srx-server/src/server/command_handler.c.
package aspaval

import (
	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/result"
)

// Store is the subset of aspatrie.Store the validator needs — an
// interface so tests can substitute a fake trust store.
type Store interface {
	ValidateHop(customerAS, providerAS uint32, family afi.Family) result.Outcome
}

var _ Store = (*aspatrie.Store)(nil)

// Validate walks asns (destination-to-origin, as stored) against store and
// returns the aggregate ASPA outcome (spec §4.7).
func Validate(asns []uint32, kind aspath.SegmentKind, dir aspath.Direction, family afi.Family, store Store) result.Outcome {
	unverifiable := kind != aspath.Sequence

	path := aspath.Reversed(asns) // origin-to-destination

	if len(path) < 2 {
		if unverifiable {
			return result.Unverifiable
		}
		return result.Unknown
	}

	var sawUnknown, sawUnverifiable bool
	if unverifiable {
		sawUnverifiable = true
	}

	switch dir {
	case aspath.Upstream:
		for i := 0; i < len(path)-1; i++ {
			if unverifiable {
				continue
			}
			customer, provider := path[i], path[i+1]
			hop := store.ValidateHop(customer, provider, family)
			switch hop {
			case result.Invalid:
				return result.Invalid
			case result.Unknown:
				sawUnknown = true
			}
		}

	case aspath.Downstream:
		swapped := false
		for i := 0; i < len(path)-1; i++ {
			if unverifiable {
				continue
			}
			customer, provider := path[i], path[i+1]
			if swapped {
				customer, provider = provider, customer
			}
			hop := store.ValidateHop(customer, provider, family)
			switch hop {
			case result.Unknown:
				sawUnknown = true
			case result.Invalid:
				if swapped {
					return result.Invalid
				}
				// First INVALID: swap customer/provider roles once and
				// re-evaluate the remaining hops under that assumption
				// (spec §4.7 step 4, downstream branch).
				swapped = true
			}
		}
	}

	switch {
	case sawUnknown && sawUnverifiable:
		// Open question (spec §9): source behaviour is unspecified when
		// both bits are set. This implementation chooses UNKNOWN, the
		// more conservative outcome from an operator's perspective.
		return result.Unknown
	case sawUnknown:
		return result.Unknown
	case sawUnverifiable:
		return result.Unverifiable
	default:
		return result.Valid
	}
}
