package splitplan

import (
	"context"
	"runtime"

	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// cursorKey scopes a per-table cursor to one (tenant, table) pair; the
// spec's per_table_cursor map is generalized here to every migrating
// tenant's copy of that table.
func cursorKey(tenant, table string) string { return tenant + "/" + table }

// RunBackfill schedules the bulk row copy as a detached goroutine and
// returns immediately; the orchestrator API endpoints themselves return
// immediately after scheduling. Calling it again after a Failed backfill
// resumes from the persisted cursors.
func (o *Orchestrator) RunBackfill(splitID string) error {
	o.mu.Lock()
	plan, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	if plan.Phase != types.PhaseDualWrite && plan.Phase != types.PhaseBackfill {
		o.mu.Unlock()
		return workerr.New(workerr.InvalidPlan, "split plan is not ready for backfill: "+splitID)
	}

	plan.Phase = types.PhaseBackfill
	plan.Backfill.Status = types.BackfillRunning
	plan.Backfill.Error = ""
	if plan.Backfill.StartedAtMS == 0 {
		plan.Backfill.StartedAtMS = o.clock.NowMS()
	}
	if plan.Backfill.PerTableCursor == nil {
		plan.Backfill.PerTableCursor = map[string]string{}
	}
	ctx := o.backgroundContext(splitID)
	err := o.persist(plan)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	go o.runBackfill(ctx, splitID)
	return nil
}

const cursorDone = "done"

func (o *Orchestrator) runBackfill(ctx context.Context, splitID string) {
	for _, tenant := range o.planTenants(splitID) {
		for _, table := range o.cfg.Tables {
			if err := o.backfillTable(ctx, splitID, tenant, table); err != nil {
				o.failBackfill(splitID, err)
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
	o.completeBackfill(ctx, splitID)
}

func (o *Orchestrator) planTenants(splitID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return nil
	}
	return append([]string(nil), p.TenantIDs...)
}

// backfillTable streams one (tenant, table) pair from source to target in
// pages, persisting the cursor after each acknowledged page so a crash
// between pages re-exports at worst one page, idempotent via upsert
// import.
func (o *Orchestrator) backfillTable(ctx context.Context, splitID, tenant, table string) error {
	key := cursorKey(tenant, table)

	cursor := o.planCursor(splitID, key)
	if cursor == cursorDone {
		return nil
	}
	var cursorPtr *string
	if cursor != "" {
		c := cursor
		cursorPtr = &c
	}

	source, target := o.planShards(splitID)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var page *shardclient.ExportPage
		err := o.coord.Execute(ctx, source, func(ctx context.Context, client *shardclient.Client) error {
			p, err := client.Export(ctx, tenant, table, cursorPtr, o.cfg.BackfillPageSize)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return err
		}

		if len(page.Rows) > 0 {
			err := o.coord.Execute(ctx, target, func(ctx context.Context, client *shardclient.Client) error {
				return client.Import(ctx, tenant, table, page.Rows)
			})
			if err != nil {
				return err
			}
		}

		next := cursorDone
		if page.NextCursor != nil {
			next = *page.NextCursor
		}
		o.recordCursor(splitID, key, next, len(page.Rows))

		if page.NextCursor == nil {
			return nil
		}
		cursorPtr = page.NextCursor
		runtime.Gosched()
	}
}

func (o *Orchestrator) planCursor(splitID, key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.plans[splitID]
	if p == nil {
		return ""
	}
	return p.Backfill.PerTableCursor[key]
}

func (o *Orchestrator) planShards(splitID string) (source, target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.plans[splitID]
	if p == nil {
		return "", ""
	}
	return p.SourceShard, p.TargetShard
}

func (o *Orchestrator) recordCursor(splitID, key, cursor string, rowsCopied int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return
	}
	p.Backfill.PerTableCursor[key] = cursor
	p.Backfill.RowsCopied += uint64(rowsCopied)
	_ = o.persist(p)
}

func (o *Orchestrator) failBackfill(splitID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return
	}
	p.Backfill.Status = types.BackfillFailed
	p.Backfill.Error = err.Error()
	p.ErrorMessage = err.Error()
	_ = o.persist(p)
	o.logger.Warn().Str("split_id", splitID).Err(err).Msg("backfill failed")
}

// completeBackfill marks the backfill done and advances the plan straight
// into Tailing, then starts tail replay under the same
// cancellation scope.
func (o *Orchestrator) completeBackfill(ctx context.Context, splitID string) {
	o.mu.Lock()
	p, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return
	}
	p.Backfill.Status = types.BackfillCompleted
	p.Backfill.CompletedAtMS = o.clock.NowMS()
	p.Phase = types.PhaseTailing
	p.Tail.Status = types.TailRunning
	_ = o.persist(p)
	o.mu.Unlock()

	o.logger.Info().Str("split_id", splitID).Uint64("rows_copied", p.Backfill.RowsCopied).Msg("backfill complete, entering tailing")
	o.runTailLoop(ctx, splitID)
}
