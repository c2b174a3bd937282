package splitplan

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthfees-org/workersql-sub002/pkg/policystore"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// PlanSplit validates and persists a new split plan. All four validations must hold or the call is rejected
// with InvalidPlan; no partial plan is ever persisted.
func (o *Orchestrator) PlanSplit(sourceShard, targetShard string, tenantIDs []string) (*types.SplitPlan, error) {
	if len(tenantIDs) == 0 {
		return nil, workerr.New(workerr.InvalidPlan, "tenant_ids must be non-empty")
	}
	if sourceShard == targetShard {
		return nil, workerr.New(workerr.InvalidPlan, "source and target shard must differ")
	}

	policy := o.policy.Current()
	for _, t := range tenantIDs {
		if policy == nil || policy.Tenants[t] != sourceShard {
			return nil, workerr.New(workerr.InvalidPlan, "tenant "+t+" does not currently route to source shard "+sourceShard)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range o.plans {
		if p.SourceShard == sourceShard && !p.Phase.IsTerminal() {
			return nil, workerr.New(workerr.InvalidPlan, "an active split already exists for source shard "+sourceShard)
		}
	}

	now := o.clock.NowMS()
	plan := &types.SplitPlan{
		SplitID:               uuid.NewString(),
		SourceShard:           sourceShard,
		TargetShard:           targetShard,
		TenantIDs:             append([]string(nil), tenantIDs...),
		Phase:                 types.PhasePlanning,
		RoutingVersionAtStart: policy.Version,
		Backfill:              types.Backfill{Status: types.BackfillPending, PerTableCursor: map[string]string{}},
		Tail:                  types.Tail{Status: types.TailPending},
		CreatedAtMS:           now,
		UpdatedAtMS:           now,
	}

	if err := o.store.Save(plan); err != nil {
		return nil, workerr.Wrap(workerr.Internal, "persist new split plan", err)
	}
	o.plans[plan.SplitID] = plan
	o.setMetrics(plan)

	o.logger.Info().Str("split_id", plan.SplitID).Str("source", sourceShard).Str("target", targetShard).Msg("split plan created")
	return clonePlan(plan), nil
}

// StartDualWrite transitions a Planning plan into DualWrite, exposing it to
// the Router overlay so writes immediately begin fanning out to the target
// shard.
func (o *Orchestrator) StartDualWrite(splitID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	plan, ok := o.plans[splitID]
	if !ok {
		return workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	if plan.Phase != types.PhasePlanning {
		return workerr.New(workerr.InvalidPlan, "split plan is not in Planning phase: "+splitID)
	}

	plan.Phase = types.PhaseDualWrite
	plan.DualWriteStartedAtMS = o.clock.NowMS()
	plan.ErrorMessage = ""
	return o.persist(plan)
}

// Cutover performs the terminal policy swap into Completed: clone the
// current policy, reassign every migrating tenant to the target
// shard, and submit it as the next version. A VersionConflict leaves the
// plan in CutoverPending for the operator to retry.
func (o *Orchestrator) Cutover(splitID string) error {
	o.mu.Lock()
	plan, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	if plan.Phase != types.PhaseCutoverPending {
		o.mu.Unlock()
		return workerr.New(workerr.InvalidPlan, "split plan is not awaiting cutover: "+splitID)
	}
	o.mu.Unlock()

	current := o.policy.Current()
	next := current.Clone()
	next.Version = current.Version + 1
	next.Timestamp = uint64(o.clock.NowMS())
	for _, t := range plan.TenantIDs {
		next.Tenants[t] = plan.TargetShard
	}
	next.Checksum = policystore.Checksum(next)

	if err := o.policy.Propose(next); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	plan.Phase = types.PhaseCompleted
	plan.RoutingVersionCutover = next.Version
	plan.ErrorMessage = ""
	if err := o.persist(plan); err != nil {
		return err
	}
	o.cancelBackground(splitID)
	o.logger.Info().Str("split_id", splitID).Uint64("cutover_version", next.Version).Msg("split cutover complete")
	return nil
}

// Rollback may be entered from any pre-cutover phase. It proposes a policy version whose content equals
// the plan's starting version, reinstating the pre-split routing, and
// cancels any in-flight background work.
func (o *Orchestrator) Rollback(splitID string) error {
	o.mu.Lock()
	plan, ok := o.plans[splitID]
	if !ok {
		o.mu.Unlock()
		return workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	if plan.Phase.IsTerminal() {
		o.mu.Unlock()
		return workerr.New(workerr.InvalidPlan, "split plan is already terminal: "+splitID)
	}
	o.mu.Unlock()

	original, ok := o.policy.AtVersion(plan.RoutingVersionAtStart)
	if !ok {
		return workerr.New(workerr.NotFound, "original routing policy version not retained")
	}

	current := o.policy.Current()
	next := original.Clone()
	next.Version = current.Version + 1
	next.Timestamp = uint64(o.clock.NowMS())
	next.Checksum = policystore.Checksum(next)

	if err := o.policy.Propose(next); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelBackground(splitID)
	plan.Phase = types.PhaseRolledBack
	plan.ErrorMessage = ""
	plan.Backfill.Status = types.BackfillPending
	plan.Tail.Status = types.TailPending
	plan.Tail.CaughtUp = false
	if err := o.persist(plan); err != nil {
		return err
	}
	o.logger.Info().Str("split_id", splitID).Msg("split rolled back")
	return nil
}

// cancelBackground cancels any running background task for splitID. Caller
// must hold o.mu.
func (o *Orchestrator) cancelBackground(splitID string) {
	if cancel, ok := o.cancels[splitID]; ok {
		cancel()
		delete(o.cancels, splitID)
	}
}

// backgroundContext creates (replacing any prior) cancellable context for
// splitID's background work. Caller must hold o.mu.
func (o *Orchestrator) backgroundContext(splitID string) context.Context {
	o.cancelBackground(splitID)
	ctx, cancel := context.WithCancel(context.Background())
	o.cancels[splitID] = cancel
	return ctx
}

func clonePlan(p *types.SplitPlan) *types.SplitPlan {
	cp := *p
	cp.TenantIDs = append([]string(nil), p.TenantIDs...)
	cp.Backfill.PerTableCursor = make(map[string]string, len(p.Backfill.PerTableCursor))
	for k, v := range p.Backfill.PerTableCursor {
		cp.Backfill.PerTableCursor[k] = v
	}
	return &cp
}
