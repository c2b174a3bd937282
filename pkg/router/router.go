package router

import (
	"github.com/healthfees-org/workersql-sub002/pkg/hashutil"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// PolicyProvider supplies the current routing policy (pkg/policystore
// implements this).
type PolicyProvider interface {
	Current() *types.Policy
}

// Overlay is the Split Orchestrator's router-overlay contract:
// it lets an in-flight split redirect reads to the source and fan out
// writes to both source and target without the router knowing about split
// mechanics. NoopOverlay is used when no split is active.
type Overlay interface {
	ResolveReadShard(tenant, primary string) string
	ResolveWriteShards(tenant, primary string) []string
}

// NoopOverlay passes every decision through unchanged.
type NoopOverlay struct{}

func (NoopOverlay) ResolveReadShard(_, primary string) string { return primary }

func (NoopOverlay) ResolveWriteShards(_, primary string) []string { return []string{primary} }

// Decision is the outcome of routing a single operation.
type Decision struct {
	Table        string
	PrimaryShard string
	ReadShard    string
	WriteShards  []string
	PolicyVersion uint64
}

// Router resolves (tenant, sql) pairs to shards.
type Router struct {
	policy     PolicyProvider
	overlay    Overlay
	shardCount uint32
	shards     []string
}

// New constructs a Router. shards lists the configured shard identifiers in
// hash-fallback order; the
// Nth entry must be named "shard_N" or the caller's own convention — New
// stores them verbatim and indexes by H(tenant) mod len(shards).
func New(policy PolicyProvider, overlay Overlay, shards []string) *Router {
	if overlay == nil {
		overlay = NoopOverlay{}
	}
	return &Router{policy: policy, overlay: overlay, shardCount: uint32(len(shards)), shards: shards}
}

// Route resolves routing for a single operation.
// hints is accepted to match the documented contract signature but does
// not currently affect shard selection; consistency hints are consumed by
// the query pipeline, not the router.
func (r *Router) Route(tenant, sql string, _ types.Hints) Decision {
	table := sqlclassify.ExtractTable(sql)
	policy := r.policy.Current()

	primary := r.resolvePrimary(policy, tenant, table)

	d := Decision{
		Table:        table,
		PrimaryShard: primary,
		ReadShard:    r.overlay.ResolveReadShard(tenant, primary),
		WriteShards:  r.overlay.ResolveWriteShards(tenant, primary),
	}
	if policy != nil {
		d.PolicyVersion = policy.Version
	}
	return d
}

// resolvePrimary implements steps 2-5: tenant pin, then range-prefix walk,
// then stable hash fallback.
func (r *Router) resolvePrimary(policy *types.Policy, tenant, table string) string {
	if policy != nil {
		if shardID, ok := policy.Tenants[tenant]; ok {
			return shardID
		}
		for _, rule := range policy.Ranges {
			if rule.Prefix != "" && hasPrefix(table, rule.Prefix) {
				return rule.ShardID
			}
		}
	}

	if r.shardCount == 0 {
		return ""
	}
	idx := hashutil.HashString(tenant) % r.shardCount
	return r.shards[idx]
}

func hasPrefix(table, prefix string) bool {
	if len(prefix) > len(table) {
		return false
	}
	return table[:len(prefix)] == prefix
}
