package splitplan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/policystore"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// fakePolicy is an in-memory, non-replicated stand-in for pkg/policystore
// that still enforces the version+checksum invariants, so
// orchestrator tests exercise real Propose/rollback semantics.
type fakePolicy struct {
	mu       sync.Mutex
	versions map[uint64]*types.Policy
	current  uint64
}

func newFakePolicy(initial *types.Policy) *fakePolicy {
	initial.Checksum = policystore.Checksum(initial)
	return &fakePolicy{versions: map[uint64]*types.Policy{initial.Version: initial}, current: initial.Version}
}

func (f *fakePolicy) Current() *types.Policy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[f.current].Clone()
}

func (f *fakePolicy) AtVersion(v uint64) (*types.Policy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.versions[v]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (f *fakePolicy) Propose(next *types.Policy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if next.Version != f.current+1 {
		return workerr.New(workerr.VersionConflict, "version conflict")
	}
	if !policystore.VerifyChecksum(next) {
		return workerr.New(workerr.VersionConflict, "checksum mismatch")
	}
	f.versions[next.Version] = next.Clone()
	f.current = next.Version
	return nil
}

// fakeShard serves the admin/query protocol subset the orchestrator
// exercises: export (single page, all rows), import (always succeeds),
// events (always an empty page, so tail replay catches up immediately).
func newFakeShard(t *testing.T, exportRows []shardRow) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/admin/export":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"rows": exportRows})
		case "/admin/import":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
		case "/admin/events":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"events": []interface{}{}})
		case "/ddl", "/mutation":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]interface{}{"rowsAffected": 1}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type shardRow map[string]interface{}

func newTestOrchestrator(t *testing.T, sourceURL, targetURL string) (*Orchestrator, *fakePolicy) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	policy := newFakePolicy(&types.Policy{Version: 1, Timestamp: 1, Tenants: map[string]string{"t1": "shard_0", "t2": "shard_0"}})

	resolve := func(shardID string) (string, bool) {
		switch shardID {
		case "shard_0":
			return sourceURL, true
		case "shard_1":
			return targetURL, true
		default:
			return "", false
		}
	}
	coord := coordinator.New(resolve, coordinator.DefaultConfig())

	orch, err := New(store, coord, policy, Config{Tables: []string{"users"}, BackfillPageSize: 200, TailPageSize: 200}, nil)
	require.NoError(t, err)
	return orch, policy
}

func waitForPhase(t *testing.T, orch *Orchestrator, splitID string, phase types.SplitPhase, timeout time.Duration) *types.SplitPlan {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p := orch.GetPlan(splitID)
		if p != nil && (p.Phase == phase || p.Phase.IsTerminal()) {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("split plan %s did not reach phase %s in time (last: %+v)", splitID, phase, orch.GetPlan(splitID))
	return nil
}

func TestPlanSplitRejectsEmptyTenants(t *testing.T) {
	source := newFakeShard(t, nil)
	target := newFakeShard(t, nil)
	orch, _ := newTestOrchestrator(t, source.URL, target.URL)

	_, err := orch.PlanSplit("shard_0", "shard_1", nil)
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}

func TestPlanSplitRejectsSameShard(t *testing.T) {
	source := newFakeShard(t, nil)
	target := newFakeShard(t, nil)
	orch, _ := newTestOrchestrator(t, source.URL, target.URL)

	_, err := orch.PlanSplit("shard_0", "shard_0", []string{"t1"})
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}

func TestPlanSplitRejectsTenantNotOnSource(t *testing.T) {
	source := newFakeShard(t, nil)
	target := newFakeShard(t, nil)
	orch, _ := newTestOrchestrator(t, source.URL, target.URL)

	// t3 is not in the fake policy at all, so it does not route to shard_0.
	_, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1", "t3"})
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}

func TestPlanSplitRejectsSecondActivePlanOnSameSource(t *testing.T) {
	source := newFakeShard(t, nil)
	target := newFakeShard(t, nil)
	orch, _ := newTestOrchestrator(t, source.URL, target.URL)

	_, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1"})
	require.NoError(t, err)

	_, err = orch.PlanSplit("shard_0", "shard_1", []string{"t2"})
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}

func TestHappyPathSplit(t *testing.T) {
	source := newFakeShard(t, []shardRow{{"id": 1, "name": "A"}})
	target := newFakeShard(t, nil)
	orch, policy := newTestOrchestrator(t, source.URL, target.URL)

	plan, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1", "t2"})
	require.NoError(t, err)

	require.NoError(t, orch.StartDualWrite(plan.SplitID))

	// While DualWrite is active, writes for the migrating tenants fan out
	// to both shards.
	writes := orch.ResolveWriteShards("t1", "shard_0")
	assert.Equal(t, []string{"shard_0", "shard_1"}, writes)
	assert.Equal(t, "shard_0", orch.ResolveReadShard("t1", "shard_0"))

	require.NoError(t, orch.RunBackfill(plan.SplitID))
	waitForPhase(t, orch, plan.SplitID, types.PhaseCutoverPending, 2*time.Second)

	require.NoError(t, orch.Cutover(plan.SplitID))

	final := orch.GetPlan(plan.SplitID)
	require.Equal(t, types.PhaseCompleted, final.Phase)
	assert.Equal(t, uint64(2), final.RoutingVersionCutover)
	assert.True(t, final.Backfill.RowsCopied >= 1)

	cur := policy.Current()
	assert.Equal(t, uint64(2), cur.Version)
	assert.Equal(t, "shard_1", cur.Tenants["t1"])
	assert.Equal(t, "shard_1", cur.Tenants["t2"])

	// Post-cutover the overlay is a pass-through; the policy itself now
	// routes to the target.
	assert.Equal(t, "shard_1", orch.ResolveReadShard("t1", "shard_1"))
}

func TestRollbackFromDualWrite(t *testing.T) {
	source := newFakeShard(t, []shardRow{{"id": 1, "name": "A"}})
	target := newFakeShard(t, nil)
	orch, policy := newTestOrchestrator(t, source.URL, target.URL)

	plan, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1"})
	require.NoError(t, err)
	require.NoError(t, orch.StartDualWrite(plan.SplitID))

	require.NoError(t, orch.Rollback(plan.SplitID))

	final := orch.GetPlan(plan.SplitID)
	assert.Equal(t, types.PhaseRolledBack, final.Phase)

	cur := policy.Current()
	assert.Equal(t, uint64(2), cur.Version)
	assert.Equal(t, "shard_0", cur.Tenants["t1"]) // content reverted to v1

	// A second rollback is rejected: the plan is already terminal.
	err = orch.Rollback(plan.SplitID)
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}

type fakeClock struct{ ms uint64 }

func (c *fakeClock) NowMS() uint64 { return c.ms }

func TestSweepStaleFlagsIdleNonTerminalPlans(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	policy := newFakePolicy(&types.Policy{Version: 1, Timestamp: 1, Tenants: map[string]string{"t1": "shard_0"}})
	coord := coordinator.New(func(string) (string, bool) { return "", false }, coordinator.DefaultConfig())
	clock := &fakeClock{ms: 1000}

	orch, err := New(store, coord, policy, Config{Tables: []string{"users"}}, clock)
	require.NoError(t, err)

	plan, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1"})
	require.NoError(t, err)

	// Fresh plan: nothing to flag.
	assert.Empty(t, orch.SweepStale(600_000))

	clock.ms = 1000 + 600_001
	stale := orch.SweepStale(600_000)
	require.Len(t, stale, 1)
	assert.Equal(t, plan.SplitID, stale[0])

	// Terminal plans are never flagged, however old.
	require.NoError(t, orch.Rollback(plan.SplitID))
	clock.ms += 700_000
	assert.Empty(t, orch.SweepStale(600_000))
}

func TestTailBatchSkipsAppliedAndSelectEvents(t *testing.T) {
	events := []map[string]interface{}{
		{"id": 1, "ts": 10, "tenant_id": "t1", "type": "QUERY", "sql": "UPDATE users SET x = 1"},
		{"id": 2, "ts": 20, "tenant_id": "t1", "type": "QUERY", "sql": "SELECT * FROM users"},
		{"id": 3, "ts": 30, "tenant_id": "t1", "type": "QUERY", "sql": "UPDATE users SET x = 2"},
		{"id": 4, "ts": 40, "tenant_id": "t9", "type": "QUERY", "sql": "UPDATE users SET x = 3"},
	}
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"events": events})
	}))
	t.Cleanup(source.Close)

	var mu sync.Mutex
	var mutations []string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mutation" {
			var body struct {
				Query struct {
					SQL string `json:"sql"`
				} `json:"query"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			mutations = append(mutations, body.Query.SQL)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]interface{}{"rowsAffected": 1}})
	}))
	t.Cleanup(target.Close)

	orch, _ := newTestOrchestrator(t, source.URL, target.URL)
	plan, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1"})
	require.NoError(t, err)

	// Event 1 is already behind the watermark; event 2 is a read; event 4
	// belongs to a tenant outside the plan. Only event 3 replays.
	orch.mu.Lock()
	p := orch.plans[plan.SplitID]
	p.Phase = types.PhaseTailing
	p.Tail.Status = types.TailRunning
	p.Tail.LastEventID = 1
	orch.mu.Unlock()

	caughtUp, err := orch.tailBatch(context.Background(), plan.SplitID)
	require.NoError(t, err)
	assert.True(t, caughtUp)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, mutations, 1)
	assert.Equal(t, "UPDATE users SET x = 2", mutations[0])

	final := orch.GetPlan(plan.SplitID)
	assert.Equal(t, uint64(4), final.Tail.LastEventID)
	assert.True(t, final.Tail.CaughtUp)
}

func TestCutoverRejectedBeforeCutoverPending(t *testing.T) {
	source := newFakeShard(t, nil)
	target := newFakeShard(t, nil)
	orch, _ := newTestOrchestrator(t, source.URL, target.URL)

	plan, err := orch.PlanSplit("shard_0", "shard_1", []string{"t1"})
	require.NoError(t, err)

	err = orch.Cutover(plan.SplitID)
	require.Error(t, err)
	assert.Equal(t, workerr.InvalidPlan, workerr.KindOf(err))
}
