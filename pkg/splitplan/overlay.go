package splitplan

import "github.com/healthfees-org/workersql-sub002/pkg/types"

// ResolveReadShard implements router.Overlay: pre-cutover reads always stay on the source (the default);
// a plan that has reached Completed but whose tenant still resolves to the
// pre-cutover primary here (the window before policy refresh propagates)
// is redirected to the target.
func (o *Orchestrator) ResolveReadShard(tenant, primary string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range o.plans {
		if p.Phase == types.PhaseCompleted && p.HasTenant(tenant) && p.SourceShard == primary {
			return p.TargetShard
		}
	}
	return primary
}

// ResolveWriteShards implements router.Overlay: writes fan out to both
// source and target for the duration of DualWrite/Backfill/Tailing/
// CutoverPending; post-cutover the policy itself already points at the
// target, so the overlay returns the default unchanged.
func (o *Orchestrator) ResolveWriteShards(tenant, primary string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range o.plans {
		if p.Phase.IsPreCutover() && p.HasTenant(tenant) && p.SourceShard == primary {
			return []string{primary, p.TargetShard}
		}
	}
	return []string{primary}
}
