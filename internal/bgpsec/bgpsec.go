// Package bgpsec defines the BGPsec signature-verification collaborator
// contract (spec §6). Signing outgoing announcements is a stated
// Non-goal; only signature verification of inbound path-attestations is
// in scope, and only as a contract — the cryptographic primitives
// themselves are out of scope (spec §1).
package bgpsec

import "github.com/srx-go/rpki-validator/internal/result"

// Verifier checks a BGPsec path-attestation blob as received in a verify
// request's optional BGPsec section (spec §6: "bgpsec.validate_signature
// (update-data) → outcome").
type Verifier interface {
	VerifySignature(blob []byte) result.Outcome
}

// StubVerifier is the Non-goal-compliant default: it never has signing
// key material to check against, so every blob is UNKNOWN rather than a
// fabricated pass/fail.
type StubVerifier struct{}

func (StubVerifier) VerifySignature(blob []byte) result.Outcome {
	return result.Unknown
}
