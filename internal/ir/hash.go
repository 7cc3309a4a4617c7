package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainEntry    = "tilehist/entry/v1"
	DomainDocument = "tilehist/document/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryDigest computes the content digest of a completed history entry.
// Two entries with the same id, metadata and patches always share a digest,
// regardless of key order or whitespace in their original encoding.
func EntryDigest(entry HistoryEntrySnapshot) (string, error) {
	canonical, err := CanonicalizeValue(entry)
	if err != nil {
		return "", fmt.Errorf("EntryDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// DocumentDigest computes the content digest of a whole change document.
// The version field is excluded so that re-exporting under a newer schema
// version does not change the identity of the history itself.
func DocumentDigest(doc ChangeDocumentSnapshot) (string, error) {
	doc.Version = ""
	canonical, err := CanonicalizeValue(doc)
	if err != nil {
		return "", fmt.Errorf("DocumentDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustEntryDigest is like EntryDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEntryDigest(entry HistoryEntrySnapshot) string {
	d, err := EntryDigest(entry)
	if err != nil {
		panic(err)
	}
	return d
}
