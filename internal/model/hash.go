package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// Digest is a lowercase hex-encoded hash.
type Digest string

// Domain tags for hashing. The version suffix enables future algorithm
// migration; changing a tag invalidates every persisted cache entry.
const (
	DomainInput = "wro/input/v1"
	DomainKey   = "wro/cache-key/v1"
)

// contentKey is the 32-byte BLAKE3 key for resource content digests:
// the ASCII domain name, zero padded.
var contentKey = [32]byte{
	'w', 'r', 'o', '.', 'r', 'e', 's', 'o', 'u', 'r', 'c', 'e', '.',
	'c', 'o', 'n', 't', 'e', 'n', 't',
}

// HashContent computes the content digest of one resource.
// Uses keyed BLAKE3 so resource digests never collide with input hashes.
func HashContent(data []byte) Digest {
	hasher, err := blake3.NewKeyed(contentKey[:])
	if err != nil {
		// Only returned for a wrong key length, which the array type rules out.
		panic("model: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	return Digest(hex.EncodeToString(hasher.Sum(nil)))
}

// InputHash computes the order-sensitive digest over the content digests of
// every resource that contributed to an artifact.
//
// Format: SHA256(domain + 0x00 + d1 + 0x00 + d2 + 0x00 ...)
// The null separators keep ["ab","c"] and ["a","bc"] distinct.
func InputHash(digests []Digest) Digest {
	return hashWithDomain(DomainInput, digests)
}

// KeyHash computes a stable identifier for a canonical cache key string.
// The pipeline version is part of the hash, so persisted entries written
// by another version are never found.
func KeyHash(canonicalKey string) Digest {
	return hashWithDomain(DomainKey, []Digest{Digest(PipelineVersion), Digest(canonicalKey)})
}

func hashWithDomain(domain string, parts []Digest) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0x00})
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// CanonicalName normalizes a group name or variant selector for use in
// cache keys: NFC normalization and surrounding whitespace trimmed, so
// visually identical names always select the same cache entry.
func CanonicalName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Short returns the first 12 characters of the digest for logs.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// DigestMissing stands in for the content digest of a resource that could
// not be read and was skipped. Input hashes include it so that the resource
// appearing later makes the artifact stale.
const DigestMissing Digest = "missing"
