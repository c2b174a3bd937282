package policystore

import (
	"encoding/json"
	"sort"

	"github.com/healthfees-org/workersql-sub002/pkg/hashutil"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// canonical is the sorted-key JSON shape checksums and on-wire policy
// serialization are computed over.
type canonical struct {
	Version uint64           `json:"version"`
	Tenants []canonicalTenant `json:"tenants"`
	Ranges  []types.RangeRule `json:"ranges"`
}

type canonicalTenant struct {
	TenantID string `json:"tenant_id"`
	ShardID  string `json:"shard_id"`
}

// CanonicalBytes renders p's (version, tenants, ranges) in sorted-key form.
func CanonicalBytes(p *types.Policy) []byte {
	tenants := make([]canonicalTenant, 0, len(p.Tenants))
	for t, s := range p.Tenants {
		tenants = append(tenants, canonicalTenant{TenantID: t, ShardID: s})
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].TenantID < tenants[j].TenantID })

	ranges := append([]types.RangeRule(nil), p.Ranges...)

	c := canonical{Version: p.Version, Tenants: tenants, Ranges: ranges}
	b, _ := json.Marshal(c)
	return b
}

// Checksum computes the collision-resistant digest over p's canonical form.
func Checksum(p *types.Policy) []byte {
	return hashutil.PolicyChecksum(CanonicalBytes(p))
}

// VerifyChecksum reports whether p.Checksum matches its own content.
func VerifyChecksum(p *types.Policy) bool {
	want := Checksum(p)
	if len(want) != len(p.Checksum) {
		return false
	}
	for i := range want {
		if want[i] != p.Checksum[i] {
			return false
		}
	}
	return true
}
