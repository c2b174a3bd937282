package splitplan

import (
	"context"
	"runtime"

	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/sqlclassify"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// ReplayTail is the explicit replay_tail trigger: it (re)starts
// background tail replay, resuming from the persisted
// watermark, for a plan whose tail replay previously failed or has not
// been driven since backfill completed. It returns immediately.
func (o *Orchestrator) ReplayTail(splitID string) error {
	o.mu.Lock()
	plan, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	if plan.Phase != types.PhaseTailing {
		o.mu.Unlock()
		return workerr.New(workerr.InvalidPlan, "split plan is not tailing: "+splitID)
	}

	plan.Tail.Status = types.TailRunning
	plan.Tail.Error = ""
	ctx := o.backgroundContext(splitID)
	err := o.persist(plan)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	go o.runTailLoop(ctx, splitID)
	return nil
}

// runTailLoop drives tail batches until the plan catches up, the plan
// leaves Tailing (e.g. via rollback), or a batch fails.
func (o *Orchestrator) runTailLoop(ctx context.Context, splitID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		caughtUp, err := o.tailBatch(ctx, splitID)
		if err != nil {
			o.failTail(splitID, err)
			return
		}
		if caughtUp {
			o.markCutoverPending(splitID)
			return
		}
		runtime.Gosched()
	}
}

// tailBatch fetches and applies one page of the source event log to the
// target shard. Events with id <= the persisted watermark are skipped,
// making replay idempotent.
func (o *Orchestrator) tailBatch(ctx context.Context, splitID string) (caughtUp bool, err error) {
	o.mu.Lock()
	plan, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return false, workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	source, target := plan.SourceShard, plan.TargetShard
	after := plan.Tail.LastEventID
	tenants := append([]string(nil), plan.TenantIDs...)
	o.mu.Unlock()

	var page *shardclient.EventPage
	execErr := o.coord.Execute(ctx, source, func(ctx context.Context, client *shardclient.Client) error {
		p, err := client.Events(ctx, after, o.cfg.TailPageSize, tenants)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if execErr != nil {
		return false, execErr
	}

	lastID := after
	var lastTS uint64
	for _, ev := range page.Events {
		if ev.ID <= after {
			continue // already applied watermark
		}
		if !containsTenant(tenants, ev.TenantID) {
			lastID, lastTS = ev.ID, ev.TS
			continue
		}
		// The log only distinguishes QUERY from DDL, so SELECTs share the
		// QUERY type with mutations; classify the SQL to skip reads.
		if ev.Type != "DDL" {
			if kind, err := sqlclassify.Classify(ev.SQL); err == nil && kind == types.KindSelect {
				lastID, lastTS = ev.ID, ev.TS
				continue
			}
		}

		spec := shardclient.QuerySpec{SQL: ev.SQL, Params: ev.Params}
		dispatchErr := o.coord.Execute(ctx, target, func(ctx context.Context, client *shardclient.Client) error {
			if ev.Type == "DDL" {
				return client.DDL(ctx, ev.TenantID, spec)
			}
			_, err := client.Mutation(ctx, ev.TenantID, spec, "")
			return err
		})
		if dispatchErr != nil {
			return false, dispatchErr
		}
		lastID, lastTS = ev.ID, ev.TS
	}

	caughtUp = len(page.Events) < o.cfg.TailPageSize

	o.mu.Lock()
	defer o.mu.Unlock()
	plan, ok = o.plans[splitID]
	if !ok {
		return false, workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	plan.Tail.LastEventID = lastID
	plan.Tail.LastEventTS = lastTS
	plan.Tail.CaughtUp = caughtUp
	if err := o.persist(plan); err != nil {
		return false, err
	}
	return caughtUp, nil
}

func containsTenant(tenants []string, tenant string) bool {
	for _, t := range tenants {
		if t == tenant {
			return true
		}
	}
	return false
}

func (o *Orchestrator) failTail(splitID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return
	}
	p.Tail.Status = types.TailFailed
	p.Tail.Error = err.Error()
	p.ErrorMessage = err.Error()
	_ = o.persist(p)
	o.logger.Warn().Str("split_id", splitID).Err(err).Msg("tail replay failed")
}

// markCutoverPending moves a fully caught-up plan into CutoverPending
// and awaits operator
// approval.
func (o *Orchestrator) markCutoverPending(splitID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return
	}
	p.Phase = types.PhaseCutoverPending
	_ = o.persist(p)
	o.logger.Info().Str("split_id", splitID).Msg("tail replay caught up, awaiting cutover")
}
