package aspaval

import (
	"testing"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/result"
)

func buildStore() *aspatrie.Store {
	s := aspatrie.New()
	s.Insert(aspatrie.NewObject(100, []uint32{200, 300}, afi.IPv4))
	s.Insert(aspatrie.NewObject(200, []uint32{400}, afi.IPv4))
	return s
}

// Scenario 1 (spec §8.2): ASPA VALID upstream.
func TestUpstreamValid(t *testing.T) {
	s := buildStore()
	// stored (destination-to-origin): [400, 200, 100]
	got := Validate([]uint32{400, 200, 100}, aspath.Sequence, aspath.Upstream, afi.IPv4, s)
	if got != result.Valid {
		t.Fatalf("got %v, want VALID", got)
	}
}

// Scenario 2 (spec §8.2): ASPA INVALID.
func TestUpstreamInvalid(t *testing.T) {
	s := buildStore()
	got := Validate([]uint32{500, 200, 100}, aspath.Sequence, aspath.Upstream, afi.IPv4, s)
	if got != result.Invalid {
		t.Fatalf("got %v, want INVALID", got)
	}
}

// Scenario 3 (spec §8.2): ASPA UNKNOWN after removing the customer-100 object.
func TestUpstreamUnknownAfterRemoval(t *testing.T) {
	s := aspatrie.New()
	got := Validate([]uint32{999, 100}, aspath.Sequence, aspath.Upstream, afi.IPv4, s)
	if got != result.Unknown {
		t.Fatalf("got %v, want UNKNOWN", got)
	}
}

func TestUpstreamInvalidBeforeRemoval(t *testing.T) {
	s := buildStore()
	// customer 100 exists with providers {200,300}; 999 is not among them -> INVALID.
	got := Validate([]uint32{999, 100}, aspath.Sequence, aspath.Upstream, afi.IPv4, s)
	if got != result.Invalid {
		t.Fatalf("got %v, want INVALID", got)
	}
}

// Scenario 4 (spec §8.2): ASPA UNVERIFIABLE for an AS_SET segment.
func TestSetSegmentUnverifiable(t *testing.T) {
	s := buildStore()
	got := Validate([]uint32{100, 200}, aspath.Set, aspath.Upstream, afi.IPv4, s)
	if got != result.Unverifiable {
		t.Fatalf("got %v, want UNVERIFIABLE", got)
	}
}

func TestDownstreamSwapToleratesSingleInvalid(t *testing.T) {
	s := aspatrie.New()
	// Forward hop (200,300) is INVALID (200 exists but doesn't authorize
	// 300). A single-hop downstream path has no further pair to
	// re-evaluate after the swap, so the walk completes without ever
	// confirming an INVALID hop and the aggregate is VALID.
	s.Insert(aspatrie.NewObject(200, []uint32{999}, afi.IPv4))

	got := Validate([]uint32{300, 200}, aspath.Sequence, aspath.Downstream, afi.IPv4, s)
	if got != result.Valid {
		t.Fatalf("got %v, want VALID (tolerated single swappable invalid)", got)
	}
}

func TestDownstreamInvalidPersists(t *testing.T) {
	s := aspatrie.New()
	s.Insert(aspatrie.NewObject(100, []uint32{999}, afi.IPv4))
	s.Insert(aspatrie.NewObject(300, []uint32{999}, afi.IPv4))

	// stored (dest->origin) [300,200,100], reversed (origin->dest) [100,200,300].
	// hop 0: (100,200) -> INVALID (100's providers are {999}); sets swap.
	// hop 1 (swapped): (300,200) -> INVALID (300's providers are {999}) -> returns INVALID.
	got := Validate([]uint32{300, 200, 100}, aspath.Sequence, aspath.Downstream, afi.IPv4, s)
	if got != result.Invalid {
		t.Fatalf("got %v, want INVALID", got)
	}
}

func TestShortPathUnknown(t *testing.T) {
	s := buildStore()
	got := Validate([]uint32{100}, aspath.Sequence, aspath.Upstream, afi.IPv4, s)
	if got != result.Unknown {
		t.Fatalf("single-AS path: got %v, want UNKNOWN", got)
	}
}
