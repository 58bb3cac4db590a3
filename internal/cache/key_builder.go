package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// QueryKey identifies a cached response in shared backends.
type QueryKey struct {
	Hash string
}

// String converts the key into the string used in Redis.
func (k QueryKey) String() string {
	// exact:<HASH_HEX>
	return "exact:" + k.Hash
}

// BuildQueryKey hashes the raw query bytes with SHA-256. No trimming or case
// folding is applied, so the key is exactly as sensitive as the in-memory map.
func BuildQueryKey(query string) QueryKey {
	sum := sha256.Sum256([]byte(query))
	return QueryKey{Hash: hex.EncodeToString(sum[:])}
}
