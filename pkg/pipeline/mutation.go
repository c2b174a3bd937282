package pipeline

import (
	"context"
	"time"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// Mutation runs the MUTATION orchestration: route, dual-write
// dispatch, invalidate on primary success, emit one invalidation event per
// target shard.
func (p *Pipeline) Mutation(ctx context.Context, tenant, sql string, params []interface{}) (*shardclient.MutationResult, error) {
	timer := metrics.NewTimer()
	transpiled := sqlclassify.Transpile(sql)
	decision := p.Router.Route(tenant, transpiled.SQL, transpiled.Hints)
	defer timer.ObserveDurationVec(metrics.QueryDuration, "mutation", string(transpiled.Hints.Consistency))

	var primaryResult *shardclient.MutationResult
	result := p.Coordinator.DualWrite(ctx, decision.WriteShards, func(ctx context.Context, client *shardclient.Client) error {
		r, err := client.Mutation(ctx, tenant, shardclient.QuerySpec{SQL: transpiled.SQL, Params: params}, "")
		if err != nil {
			return err
		}
		if client.ShardID == decision.WriteShards[0] {
			primaryResult = r
		}
		return nil
	})

	if result.PrimaryErr != nil {
		return nil, workerr.Wrap(workerr.MutationFailed, "mutation failed on primary shard "+decision.PrimaryShard, result.PrimaryErr)
	}

	p.Cache.DeleteByPattern(cachestore.TableInvalidationPattern(tenant, decision.Table))
	p.publishInvalidations(decision.WriteShards, decision.PolicyVersion, []string{tenant + ":" + decision.Table})

	return primaryResult, nil
}

// publishInvalidations publishes one invalidation event per target shard.
func (p *Pipeline) publishInvalidations(shardIDs []string, policyVersion uint64, keys []string) {
	if p.Events == nil {
		return
	}
	now := time.Now()
	for _, shardID := range shardIDs {
		p.Events.Publish(&types.InvalidationEvent{
			Type:      types.EventInvalidate,
			ShardID:   shardID,
			Version:   policyVersion,
			Timestamp: now,
			Keys:      keys,
		})
	}
}
