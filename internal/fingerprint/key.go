// Package fingerprint computes the stable, content-addressed cache key
// that identifies a cached LLM result.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/arborcache/engine/internal/cacheerr"
)

// separator avoids prefix collisions when concatenating variable-length
// fields before hashing (e.g. content="ab", model="c" must not collide
// with content="a", model="bc").
const separator = 0x1F

// CacheKey is a 256-bit fingerprint rendered as a lowercase hex string.
type CacheKey string

// Key computes the cache key for a request.
//
//	cache_key = SHA256(content_hash ‖ 0x1F ‖ model ‖ 0x1F ‖ prompt_hash ‖ 0x1F ‖ LE64(schema_version))
//
// provider is not part of the hash: model identifiers are globally
// unique in the pricing table, so hashing it would be redundant.
func Key(content []byte, model string, promptTemplate []byte, schemaVersion int64) (CacheKey, error) {
	if model == "" {
		return "", cacheerr.BadInputs("model identifier must not be empty", nil)
	}

	contentHash := sha256.Sum256(content)
	promptHash := sha256.Sum256(promptTemplate)

	var schemaBuf [8]byte
	binary.LittleEndian.PutUint64(schemaBuf[:], uint64(schemaVersion))

	h := sha256.New()
	h.Write(contentHash[:])
	h.Write([]byte{separator})
	h.Write([]byte(model))
	h.Write([]byte{separator})
	h.Write(promptHash[:])
	h.Write([]byte{separator})
	h.Write(schemaBuf[:])

	return CacheKey(hex.EncodeToString(h.Sum(nil))), nil
}

// ContentHash returns SHA-256(content) as used in CacheEntry.content_hash.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// PromptHash returns SHA-256(promptTemplate) as used in CacheEntry.prompt_hash.
func PromptHash(promptTemplate []byte) string {
	sum := sha256.Sum256(promptTemplate)
	return hex.EncodeToString(sum[:])
}
