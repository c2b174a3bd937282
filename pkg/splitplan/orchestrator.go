package splitplan

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// PolicyStore is the slice of pkg/policystore's Store contract the
// orchestrator needs: read the current/historical policy and propose a
// cutover or rollback version.
type PolicyStore interface {
	Current() *types.Policy
	AtVersion(v uint64) (*types.Policy, bool)
	Propose(next *types.Policy) error
}

// Config tunes the orchestrator's background work.
type Config struct {
	// Tables lists every table name backfill/tail replay consider. In
	// production this is the key set of config.Config.Tables; tests pass
	// an explicit list.
	Tables []string

	BackfillPageSize int
	TailPageSize     int
}

// DefaultConfig returns the orchestrator's built-in page-size defaults.
func DefaultConfig() Config {
	return Config{BackfillPageSize: 200, TailPageSize: 200}
}

// Orchestrator drives the split-plan state machine. It reads
// and writes the Policy Store and invokes shard admin endpoints directly
// through the same Coordinator the query pipeline uses, so split admin
// calls share the circuit breaker and stub cache.
type Orchestrator struct {
	mu      sync.Mutex
	store   *Store
	plans   map[string]*types.SplitPlan
	cancels map[string]context.CancelFunc

	coord  *coordinator.Coordinator
	policy PolicyStore
	cfg    Config
	clock  cachestore.Clock
	logger zerolog.Logger
}

// New constructs an Orchestrator, warm-starting its in-memory plan index
// from store.
func New(store *Store, coord *coordinator.Coordinator, policy PolicyStore, cfg Config, clock cachestore.Clock) (*Orchestrator, error) {
	if clock == nil {
		clock = cachestore.SystemClock{}
	}
	if cfg.BackfillPageSize <= 0 {
		cfg.BackfillPageSize = 200
	}
	if cfg.TailPageSize <= 0 {
		cfg.TailPageSize = 200
	}

	o := &Orchestrator{
		store:   store,
		plans:   make(map[string]*types.SplitPlan),
		cancels: make(map[string]context.CancelFunc),
		coord:   coord,
		policy:  policy,
		cfg:     cfg,
		clock:   clock,
		logger:  log.WithComponent("splitplan"),
	}

	existing, err := store.All()
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		o.plans[p.SplitID] = p
		o.setMetrics(p)
	}
	return o, nil
}

func (o *Orchestrator) setMetrics(p *types.SplitPlan) {
	metrics.SplitPhase.WithLabelValues(p.SplitID).Set(metrics.SplitPhaseValue(string(p.Phase)))
	metrics.SplitRowsCopied.WithLabelValues(p.SplitID).Set(float64(p.Backfill.RowsCopied))
}

func (o *Orchestrator) persist(p *types.SplitPlan) error {
	p.UpdatedAtMS = o.clock.NowMS()
	if err := o.store.Save(p); err != nil {
		return workerr.Wrap(workerr.Internal, "persist split plan", err)
	}
	o.setMetrics(p)
	return nil
}

// GetPlan returns the in-memory copy of a plan, or nil if unknown.
func (o *Orchestrator) GetPlan(splitID string) *types.SplitPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.plans[splitID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// ListPlans returns every known plan.
func (o *Orchestrator) ListPlans() []*types.SplitPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*types.SplitPlan, 0, len(o.plans))
	for _, p := range o.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Snapshot is the admin-facing metrics shape of a split plan.
type Snapshot struct {
	SplitID        string               `json:"split_id"`
	Source         string               `json:"source"`
	Target         string               `json:"target"`
	Phase          types.SplitPhase     `json:"phase"`
	RowsCopied     uint64               `json:"rows_copied"`
	BackfillStatus types.BackfillStatus `json:"backfill_status"`
	TailStatus     types.TailStatus     `json:"tail_status"`
	Tenants        []string             `json:"tenants"`
	StartedAtMS    uint64               `json:"started_at"`
	UpdatedAtMS    uint64               `json:"updated_at"`
}

// SweepStale flags plans that are neither terminal nor making progress:
// any plan whose last persisted update is older than staleAfterMS. Flagged
// plans are logged for operator attention and their ids returned; the
// sweep never mutates phase, since only an operator can decide between
// retrying the stuck phase and rolling back.
func (o *Orchestrator) SweepStale(staleAfterMS uint64) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.NowMS()
	var stale []string
	for _, p := range o.plans {
		if p.Phase.IsTerminal() {
			continue
		}
		if now-p.UpdatedAtMS > staleAfterMS {
			stale = append(stale, p.SplitID)
			o.logger.Warn().
				Str("split_id", p.SplitID).
				Str("phase", string(p.Phase)).
				Uint64("idle_ms", now-p.UpdatedAtMS).
				Msg("split plan has stalled")
		}
	}
	return stale
}

// Metrics returns the admin-facing snapshot of a plan.
func (o *Orchestrator) Metrics(splitID string) (*Snapshot, error) {
	p := o.GetPlan(splitID)
	if p == nil {
		return nil, workerr.New(workerr.NotFound, "split plan not found: "+splitID)
	}
	return &Snapshot{
		SplitID: p.SplitID, Source: p.SourceShard, Target: p.TargetShard,
		Phase: p.Phase, RowsCopied: p.Backfill.RowsCopied,
		BackfillStatus: p.Backfill.Status, TailStatus: p.Tail.Status,
		Tenants: p.TenantIDs, StartedAtMS: p.CreatedAtMS, UpdatedAtMS: p.UpdatedAtMS,
	}, nil
}
