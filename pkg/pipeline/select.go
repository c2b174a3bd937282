package pipeline

import (
	"context"
	"encoding/json"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// SelectResult is the data returned to a SELECT caller.
type SelectResult struct {
	Data       json.RawMessage
	FromCache  bool
	Revalidate bool
}

// Select runs the SELECT orchestration: transpile, resolve
// consistency mode, then apply the Strong/Bounded/Cached read strategy.
func (p *Pipeline) Select(ctx context.Context, tenant, sql string, params []interface{}) (*SelectResult, error) {
	timer := metrics.NewTimer()
	transpiled := sqlclassify.Transpile(sql)
	table := sqlclassify.ExtractTable(transpiled.SQL)
	tablePolicy := p.Config.TablePolicy(table)

	mode := transpiled.Hints.Consistency
	if mode == "" {
		mode = tablePolicy.Cache.Mode
	}
	defer timer.ObserveDurationVec(metrics.QueryDuration, "select", string(mode))

	decision := p.Router.Route(tenant, transpiled.SQL, transpiled.Hints)
	shardID := decision.ReadShard

	ttlMS, swrMS := tablePolicy.Cache.TTLMS, tablePolicy.Cache.SWRMS
	if mode == types.ConsistencyBounded && transpiled.Hints.BoundedMS > 0 {
		// bounded=N caps how stale a cached result may be.
		ttlMS = transpiled.Hints.BoundedMS
		if swrMS < ttlMS {
			swrMS = ttlMS
		}
	}

	switch mode {
	case types.ConsistencyStrong:
		return p.selectStrong(ctx, tenant, shardID, transpiled.SQL, params)
	case types.ConsistencyBounded:
		return p.selectBounded(ctx, tenant, table, shardID, transpiled.SQL, params, ttlMS, swrMS)
	default:
		return p.selectCached(ctx, tenant, table, shardID, transpiled.SQL, params, ttlMS, swrMS)
	}
}

func (p *Pipeline) selectStrong(ctx context.Context, tenant, shardID, sql string, params []interface{}) (*SelectResult, error) {
	res, err := p.fetchQuery(ctx, tenant, shardID, sql, params)
	if err != nil {
		return nil, err
	}
	return &SelectResult{Data: res.Data}, nil
}

func (p *Pipeline) selectBounded(ctx context.Context, tenant, table, shardID, sql string, params []interface{}, ttlMS, swrMS uint64) (*SelectResult, error) {
	entry, _ := p.Cache.GetMaterialized(tenant, table, sql, params)
	cachestore.RecordLookup(p.Cache, entry)
	if p.Cache.IsFresh(entry) {
		return &SelectResult{Data: entry.Data, FromCache: true}, nil
	}

	res, err := p.fetchQuery(ctx, tenant, shardID, sql, params)
	if err != nil {
		return nil, err
	}
	p.Cache.SetMaterialized(tenant, table, sql, params, res.Data, ttlMS, swrMS, shardID)
	return &SelectResult{Data: res.Data}, nil
}

func (p *Pipeline) selectCached(ctx context.Context, tenant, table, shardID, sql string, params []interface{}, ttlMS, swrMS uint64) (*SelectResult, error) {
	entry, _ := p.Cache.GetMaterialized(tenant, table, sql, params)
	cachestore.RecordLookup(p.Cache, entry)

	if p.Cache.IsFresh(entry) {
		return &SelectResult{Data: entry.Data, FromCache: true}, nil
	}

	if p.Cache.IsStaleButRevalidatable(entry) {
		go p.revalidate(tenant, table, shardID, sql, params, ttlMS, swrMS)
		return &SelectResult{Data: entry.Data, FromCache: true, Revalidate: true}, nil
	}

	res, err := p.fetchQuery(ctx, tenant, shardID, sql, params)
	if err != nil {
		return nil, err
	}
	p.Cache.SetMaterialized(tenant, table, sql, params, res.Data, ttlMS, swrMS, shardID)
	return &SelectResult{Data: res.Data}, nil
}

// revalidate refreshes a stale-but-revalidatable cache entry in the
// background; it runs detached from the originating request's context.
func (p *Pipeline) revalidate(tenant, table, shardID, sql string, params []interface{}, ttlMS, swrMS uint64) {
	ctx := context.Background()
	res, err := p.fetchQuery(ctx, tenant, shardID, sql, params)
	if err != nil {
		pipelineLogger := log.WithComponent("pipeline")
		pipelineLogger.Warn().Err(err).Str("tenant_id", tenant).Str("table", table).Msg("background revalidation failed")
		return
	}
	p.Cache.SetMaterialized(tenant, table, sql, params, res.Data, ttlMS, swrMS, shardID)
}
