package pipeline

import (
	"context"
	"encoding/json"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// BatchOp is one input operation of a batch mutation request.
type BatchOp struct {
	SQL    string
	Params []interface{}
}

// BatchResponse is the aggregate result of a batch mutation, and the shape
// stored verbatim under an idempotency key for replay.
type BatchResponse struct {
	Success      bool  `json:"success"`
	RowsAffected int64 `json:"rowsAffected"`
}

// Batch runs the BATCH orchestration: validate every op
// classifies as a mutation post-transpile, honor an idempotency key, group
// by primary write shard, dispatch, and aggregate rows affected. Any group
// failure aborts the whole batch with BatchFailed; there is no cross-shard
// rollback.
func (p *Pipeline) Batch(ctx context.Context, tenant string, ops []BatchOp, idempotencyKey string) (*BatchResponse, error) {
	if idempotencyKey != "" {
		if cached, ok := p.Cache.Get(cachestore.IdempotencyKey(tenant, idempotencyKey)); ok && !p.Cache.IsExpired(cached) {
			var resp BatchResponse
			if err := json.Unmarshal(cached.Data, &resp); err == nil {
				return &resp, nil
			}
		}
	}

	if len(ops) > p.Config.BatchMaxOps {
		return nil, workerr.New(workerr.InvalidInput, "batch exceeds max op count")
	}
	if bodySize(ops) > p.Config.BatchMaxBytes {
		return nil, workerr.New(workerr.InvalidInput, "batch exceeds max body size")
	}

	items := make([]coordinator.BatchItem, 0, len(ops))
	for _, op := range ops {
		transpiled := sqlclassify.Transpile(op.SQL)
		kind, err := sqlclassify.Classify(transpiled.SQL)
		if err != nil || !kind.IsMutation() {
			return nil, workerr.New(workerr.InvalidSQL, "batch item is not a mutation: "+op.SQL)
		}

		decision := p.Router.Route(tenant, transpiled.SQL, transpiled.Hints)
		items = append(items, coordinator.BatchItem{SQL: transpiled.SQL, Params: op.Params, WriteShards: decision.WriteShards})
	}

	groups := coordinator.GroupByPrimary(items)

	var totalRows int64
	for primary, group := range groups {
		rows, err := p.dispatchBatchGroup(ctx, tenant, primary, group)
		if err != nil {
			return nil, workerr.Wrap(workerr.BatchFailed, "batch group failed on shard "+primary, err)
		}
		totalRows += rows
	}

	resp := &BatchResponse{Success: true, RowsAffected: totalRows}

	if idempotencyKey != "" {
		if data, err := json.Marshal(resp); err == nil {
			p.Cache.Set(cachestore.IdempotencyKey(tenant, idempotencyKey), data, p.Config.IdempotencyTTLMS, p.Config.IdempotencyTTLMS, "")
		}
	}

	return resp, nil
}

func (p *Pipeline) dispatchBatchGroup(ctx context.Context, tenant, primary string, group []coordinator.BatchItem) (int64, error) {
	batchOps := make([]shardclient.BatchOp, len(group))
	for i, item := range group {
		batchOps[i] = shardclient.BatchOp{SQL: item.SQL, Params: item.Params}
	}

	var rows int64
	err := p.Coordinator.Execute(ctx, primary, func(ctx context.Context, client *shardclient.Client) error {
		result, err := client.Batch(ctx, tenant, batchOps)
		if err != nil {
			return err
		}
		rows = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.fanoutBatchSecondaries(ctx, tenant, group)
	return rows, nil
}

// fanoutBatchSecondaries re-dispatches each op individually to its
// secondary write shards, fire-and-forget.
func (p *Pipeline) fanoutBatchSecondaries(ctx context.Context, tenant string, group []coordinator.BatchItem) {
	for _, item := range group {
		if len(item.WriteShards) < 2 {
			continue
		}
		for _, shardID := range item.WriteShards[1:] {
			shardID := shardID
			item := item
			go func() {
				_ = p.Coordinator.Execute(ctx, shardID, func(ctx context.Context, client *shardclient.Client) error {
					_, err := client.Mutation(ctx, tenant, shardclient.QuerySpec{SQL: item.SQL, Params: item.Params}, "")
					return err
				})
			}()
		}
	}
}

func bodySize(ops []BatchOp) int {
	size := 0
	for _, op := range ops {
		size += len(op.SQL)
		if data, err := json.Marshal(op.Params); err == nil {
			size += len(data)
		}
	}
	return size
}
