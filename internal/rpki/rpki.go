// Package rpki defines the ROA/prefix-cache collaborator contract (spec
// §6): an external validation engine the dispatch workers call into, plus
// an asynchronous change feed the notifier drains. Only the interface is
// in scope here — the lookup engine itself is out of scope (spec §1).
package rpki

import (
	"context"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/result"
	"github.com/srx-go/rpki-validator/internal/updatecache"
)

// Validator evaluates a single (prefix, origin-AS) pair against the ROA
// cache (spec §6: "rpki.validate(prefix, origin-AS) → outcome").
type Validator interface {
	Validate(ctx context.Context, addr []byte, prefixLen uint8, family afi.Family, originAS uint32) result.Outcome
}

// ChangeQueue delivers UpdateIDs whose ROA outcome may have changed because
// the trust data moved, independent of any client request (spec §6). The
// notifier drains this the same way it drains updatecache.Cache's own
// notification channel.
type ChangeQueue interface {
	Changes() <-chan updatecache.UpdateID
}

// StubValidator is the Non-goal-compliant default: it never has a
// prefix/origin table to check against, so every pair is UNKNOWN rather
// than a fabricated pass/fail (mirrors bgpsec.StubVerifier).
type StubValidator struct{}

func (StubValidator) Validate(ctx context.Context, addr []byte, prefixLen uint8, family afi.Family, originAS uint32) result.Outcome {
	return result.Unknown
}
