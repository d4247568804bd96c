// Package principal implements the identity primitives of the ledger and
// registry backends: textual principals (base32 with a CRC-32 check sequence)
// and the deterministic derivation of account identifiers from principals,
// used to address ledger transfers (SHA-224 over a domain separator, the principal
// bytes and a 32-byte subaccount, prefixed with a CRC-32 checksum).
//
// All functions here are pure: the same identity always derives the same
// account, which is what makes payment addressing reproducible across
// submissions.
package principal

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// accountDomainSeparator prefixes the account derivation hash input. The
// leading byte is the separator length.
const accountDomainSeparator = "\x0Aaccount-id"

// SubAccountSize is the fixed byte length of a subaccount.
const SubAccountSize = 32

// AccountIDSize is the byte length of a derived account identifier
// (4 checksum bytes + 28 digest bytes).
const AccountIDSize = 32

var textEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is an externally authenticated identity, used both as the payment
// payer and as the registration owner.
type Principal struct {
	Raw []byte
}

// SubAccount selects one of a principal's ledger accounts. The zero value is
// the default account.
type SubAccount [SubAccountSize]byte

// AccountID is a derived ledger account identifier.
type AccountID [AccountIDSize]byte

// Decode parses the textual principal representation: lowercase base32 of
// crc32(raw) || raw, dash-grouped in runs of five characters. The embedded
// checksum is verified.
func Decode(text string) (Principal, error) {
	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	decoded, err := textEncoding.DecodeString(compact)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid principal %q: %w", text, err)
	}
	if len(decoded) < 4 {
		return Principal{}, fmt.Errorf("invalid principal %q: too short", text)
	}

	check := uint32(decoded[0])<<24 | uint32(decoded[1])<<16 | uint32(decoded[2])<<8 | uint32(decoded[3])
	raw := decoded[4:]
	if crc32.ChecksumIEEE(raw) != check {
		return Principal{}, fmt.Errorf("invalid principal %q: checksum mismatch", text)
	}

	return Principal{Raw: append([]byte(nil), raw...)}, nil
}

// MustDecode is like Decode but panics on malformed input. Intended for
// well-known constants.
func MustDecode(text string) Principal {
	p, err := Decode(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Encode returns the textual representation of the principal.
func (p Principal) Encode() string {
	check := crc32.ChecksumIEEE(p.Raw)
	payload := make([]byte, 0, 4+len(p.Raw))
	payload = append(payload, byte(check>>24), byte(check>>16), byte(check>>8), byte(check))
	payload = append(payload, p.Raw...)

	text := strings.ToLower(textEncoding.EncodeToString(payload))

	var b strings.Builder
	for i, r := range text {
		if i > 0 && i%5 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return p.Encode()
}

// IsZero reports whether the principal carries no identity bytes.
func (p Principal) IsZero() bool {
	return len(p.Raw) == 0
}

// AccountIdentifier derives the ledger account of the principal under the
// given subaccount. The derivation is:
//
//	digest   = SHA-224("\x0Aaccount-id" || raw || subaccount)
//	account  = CRC-32(digest) || digest
func (p Principal) AccountIdentifier(sub SubAccount) AccountID {
	h := sha256.New224()
	h.Write([]byte(accountDomainSeparator))
	h.Write(p.Raw)
	h.Write(sub[:])
	digest := h.Sum(nil)

	check := crc32.ChecksumIEEE(digest)

	var account AccountID
	account[0] = byte(check >> 24)
	account[1] = byte(check >> 16)
	account[2] = byte(check >> 8)
	account[3] = byte(check)
	copy(account[4:], digest)
	return account
}

// Hex returns the lowercase hex encoding of the account identifier, which is
// the form accepted by the ledger gateway.
func (a AccountID) Hex() string {
	return hex.EncodeToString(a[:])
}

// AccountIDFromHex parses a hex account identifier and verifies its embedded
// checksum.
func AccountIDFromHex(s string) (AccountID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid account identifier: %w", err)
	}
	if len(raw) != AccountIDSize {
		return AccountID{}, errors.New("invalid account identifier: wrong length")
	}

	var account AccountID
	copy(account[:], raw)

	check := uint32(account[0])<<24 | uint32(account[1])<<16 | uint32(account[2])<<8 | uint32(account[3])
	if crc32.ChecksumIEEE(account[4:]) != check {
		return AccountID{}, errors.New("invalid account identifier: checksum mismatch")
	}
	return account, nil
}
