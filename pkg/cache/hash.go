package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// digest hashes the JSON encoding of parts.
func digest(parts []any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		// channels and funcs cannot be encoded
		data = []byte(err.Error())
	}
	return Hash(data)
}

// hashKey returns "prefix:" followed by the digest of parts.
func hashKey(prefix string, parts ...any) string {
	return prefix + ":" + digest(parts)
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes job identity parts (source, function, parameters,
// geometry) into a stable string used to scope tile results.
func Fingerprint(parts ...any) string {
	return digest(parts)
}
