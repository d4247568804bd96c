// Package model defines the data structures exchanged between the SDK
// components: audio samples, voice fingerprints (scalar and per-speaker),
// payment intents and receipts, registration requests, and the NFT records
// returned by the registry backend. Fingerprints have a canonical wire form
// (sorted speaker/vector pairs) so that resubmissions hash identically.
package model

import (
	"sort"
	"time"
)

// AudioSample is a user-uploaded audio file captured for fingerprinting.
// It is immutable once constructed; the SDK never retains it past extraction.
type AudioSample struct {
	// Data holds the raw audio bytes.
	Data []byte
	// MimeType is the declared content type (advisory only; the fingerprint
	// service performs its own validation).
	MimeType string
	// Filename is the original upload name, forwarded in the multipart form.
	Filename string
}

// IsEmpty reports whether the sample carries no audio bytes.
func (s AudioSample) IsEmpty() bool {
	return len(s.Data) == 0
}

// Fingerprint is a derived voice signature. Exactly one of the two shapes is
// populated: Scalar (simple mode, the /gen endpoint) or Speakers (multi-speaker
// mode, one embedding vector per diarized speaker).
type Fingerprint struct {
	Scalar   []float64
	Speakers map[string][]float64
}

// IsEmpty reports whether the fingerprint carries no usable signature:
// neither a scalar vector nor at least one speaker entry. An empty fingerprint
// must never reach the payment stage.
func (f Fingerprint) IsEmpty() bool {
	return len(f.Scalar) == 0 && len(f.Speakers) == 0
}

// SpeakerVector is one (speaker, embedding) pair of the canonical form.
type SpeakerVector struct {
	Speaker     string    `json:"speaker"`
	Fingerprint []float64 `json:"fingerprint"`
}

// Canonical returns the canonical ordered representation of the fingerprint:
// speaker/vector pairs sorted by speaker label. A scalar fingerprint maps to a
// single pair under the empty speaker label. Canonicalizing twice yields the
// same result, which keeps request hashing reproducible across retries.
func (f Fingerprint) Canonical() []SpeakerVector {
	if len(f.Speakers) == 0 {
		if len(f.Scalar) == 0 {
			return nil
		}
		return []SpeakerVector{{Speaker: "", Fingerprint: f.Scalar}}
	}

	pairs := make([]SpeakerVector, 0, len(f.Speakers))
	for speaker, vec := range f.Speakers {
		pairs = append(pairs, SpeakerVector{Speaker: speaker, Fingerprint: vec})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Speaker < pairs[j].Speaker })
	return pairs
}

// PaymentIntent is a single-use description of a ledger transfer. A fresh
// intent is derived per registration attempt; intents are never reused, so a
// retried submission always carries a new memo and timestamp.
type PaymentIntent struct {
	// FromAccount is the payer account identifier (hex).
	FromAccount string
	// ToAccount is the payee account identifier (hex).
	ToAccount string
	// AmountE8s is the transfer amount in minor units (1 token = 10^8 e8s).
	AmountE8s uint64
	// FeeE8s is the ledger fee fetched for this attempt.
	FeeE8s uint64
	// Memo correlates the transfer with the submission.
	Memo uint64
	// CreatedAt is the intent creation time; zero means the ledger assigns one.
	CreatedAt time.Time
}

// PaymentReceipt proves that a PaymentIntent settled on the ledger. The block
// height is the opaque transaction reference returned by the transfer.
type PaymentReceipt struct {
	BlockHeight uint64
}

// RegistrationRequest is the payload submitted to the registry backend. The
// fingerprint travels in canonical form and the request carries a
// per-submission idempotency token so the backend can reject duplicate
// registrations for the same settled payment.
type RegistrationRequest struct {
	// Owner is the textual principal of the registering identity.
	Owner string
	// Name is the human-readable record name.
	Name string
	// SpeakerMap is the canonical fingerprint form (see Fingerprint.Canonical).
	SpeakerMap []SpeakerVector
	// IdempotencyKey uniquely identifies the submission across retries.
	IdempotencyKey string
	// FingerprintURI optionally references the archived fingerprint payload.
	FingerprintURI string
}

// NftRecord is a registered voice fingerprint as stored by the backend.
// Records are assigned their ID by the backend and are read-only to clients.
type NftRecord struct {
	ID          uint64    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Fingerprint []float64 `json:"fingerprint"`
}
