// Package hashutil implements WorkerSQL's deterministic hashing
// contracts: shard fallback hashing and the query cache key digest.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashString is the stable 32-bit mixing hash used by every component that
// falls back to a deterministic default shard:
//
//	h := 0; for each byte b: h := ((h << 5) - h + b); return |h|
func HashString(s string) uint32 {
	var h int32
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + int32(s[i])
	}
	if h < 0 {
		return uint32(-h)
	}
	return uint32(h)
}

// QueryDigest computes the hex digest used in the query cache key scheme:
// a stable hash over (sql_normalized, params). SHA-256 is used
// for its collision resistance and determinism across runs/processes;
// params are marshaled through encoding/json on a canonical slice so
// identical param values always produce identical bytes.
func QueryDigest(sqlNormalized string, params []interface{}) string {
	paramBytes, _ := json.Marshal(params)
	h := sha256.New()
	h.Write([]byte(sqlNormalized))
	h.Write([]byte{0})
	h.Write(paramBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// PolicyChecksum computes the collision-resistant digest over a policy's
// canonical serialization, used by the Policy Store.
func PolicyChecksum(canonicalJSON []byte) []byte {
	sum := sha256.Sum256(canonicalJSON)
	return sum[:]
}
