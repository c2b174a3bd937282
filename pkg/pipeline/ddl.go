package pipeline

import (
	"context"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// DDL runs the DDL orchestration: identical to MUTATION except
// invalidation is tenant-wide (`<tenant>:q:*`) rather than table-scoped.
func (p *Pipeline) DDL(ctx context.Context, tenant, sql string) error {
	timer := metrics.NewTimer()
	transpiled := sqlclassify.Transpile(sql)
	decision := p.Router.Route(tenant, transpiled.SQL, transpiled.Hints)
	defer timer.ObserveDurationVec(metrics.QueryDuration, "ddl", string(transpiled.Hints.Consistency))

	result := p.Coordinator.DualWrite(ctx, decision.WriteShards, func(ctx context.Context, client *shardclient.Client) error {
		return client.DDL(ctx, tenant, shardclient.QuerySpec{SQL: transpiled.SQL})
	})

	if result.PrimaryErr != nil {
		return workerr.Wrap(workerr.DDLFailed, "ddl failed on primary shard "+decision.PrimaryShard, result.PrimaryErr)
	}

	p.Cache.DeleteByPattern(cachestore.TenantInvalidationPattern(tenant))
	p.publishInvalidations(decision.WriteShards, decision.PolicyVersion, []string{tenant})

	return nil
}
