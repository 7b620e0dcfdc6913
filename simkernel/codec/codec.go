// Package codec implements the canonical encoding and content-hashing rules
// every hashed or persisted structure in the system must follow (I4, I6):
// canonical CBOR (sorted map keys, definite-length encoding, shortest integer
// form) and BLAKE3-256 hex-encoded digests.
package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"
)

var canonicalEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to build canonical CBOR encoder: %v", err))
	}
	canonicalEncMode = mode
}

// Marshal encodes v using the canonical CBOR profile: map keys sorted,
// definite-length arrays/maps, shortest-form integers. Any structure that is
// hashed or persisted must go through this function so two equal values
// always produce byte-identical encodings (P1, P4).
func Marshal(v any) ([]byte, error) {
	b, err := canonicalEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: canonical marshal: %w", err)
	}
	return b, nil
}

// MustMarshal is Marshal but panics on error; only safe for values whose
// encodability is an invariant of the program (no unsupported field types).
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Unmarshal decodes canonical CBOR into v.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}

// Hash computes the BLAKE3-256 digest of raw bytes, returned as a lowercase
// hex string (I4).
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashCanonical encodes v canonically and returns the hex BLAKE3-256 digest
// of the encoding — the standard "hash of a hashed structure" operation used
// throughout snapshot, journal, and block validation.
func HashCanonical(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// MustHashCanonical is HashCanonical but panics on encode error.
func MustHashCanonical(v any) string {
	h, err := HashCanonical(v)
	if err != nil {
		panic(err)
	}
	return h
}

// VerifyHash reports whether data's BLAKE3-256 digest equals expectedHex
// (case-insensitive hex compare against the canonical lowercase form).
func VerifyHash(data []byte, expectedHex string) bool {
	return Hash(data) == normalizeHex(expectedHex)
}

func normalizeHex(h string) string {
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return h
	}
	return hex.EncodeToString(decoded)
}
