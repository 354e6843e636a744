package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainRule   = "ruletrace/rule/v1"
	DomainDump   = "ruletrace/dump/v1"
	DomainRunner = "ruletrace/runner/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes bytes that are already canonical JSON.
func HashCanonical(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

// ContentID marshals v canonically and hashes it under domain.
func ContentID(domain string, v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ContentID: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustContentID is like ContentID but panics on error.
// Use only in tests or when v is known to be valid.
func MustContentID(domain string, v IRValue) string {
	id, err := ContentID(domain, v)
	if err != nil {
		panic(err)
	}
	return id
}
