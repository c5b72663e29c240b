package mrf

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Hash computes the content hash of d: the SHA-256 digest of d's canonical
// JSON serialization (keys sorted, as encoding/json already does for any
// map[string]any), truncated to its first 8 bytes and read back as a
// little-endian uint64 — SPEC_FULL.md §6's
// hash(d) = LE_u64(SHA256(utf8(json_dumps(d, sort_keys=True)))[0:8]).
//
// An empty map is rejected: a hash over no fields carries no identity and
// almost always indicates a materialization bug upstream.
func Hash(d map[string]any) (uint64, error) {
	if len(d) == 0 {
		return 0, fmt.Errorf("mrf: cannot hash an empty dict")
	}
	buf, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("mrf: canonicalizing for hash: %w", err)
	}
	sum := sha256.Sum256(buf)
	return binary.LittleEndian.Uint64(sum[:8]), nil
}

// filenameHash returns the hash of {"filename": filename}, matching the
// reference Python processor's filename_hasher.
func filenameHash(filename string) (uint64, error) {
	return Hash(map[string]any{"filename": filename})
}
