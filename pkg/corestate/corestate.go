// Package corestate composes WorkerSQL's components into a single typed
// container created once at startup and passed by reference, so there is
// no free-floating global state and teardown order is well defined.
package corestate

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/config"
	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/events"
	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/pipeline"
	"github.com/healthfees-org/workersql-sub002/pkg/policystore"
	"github.com/healthfees-org/workersql-sub002/pkg/router"
	"github.com/healthfees-org/workersql-sub002/pkg/session"
	"github.com/healthfees-org/workersql-sub002/pkg/splitplan"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// CoreState holds every long-lived component `cmd/workersqld` wires
// together at startup.
type CoreState struct {
	Config   *config.Config
	Policy   *policystore.Manager
	Cache    cachestore.Store
	Events   *events.Broker
	Router   *router.Router
	Coord    *coordinator.Coordinator
	Pipeline *pipeline.Pipeline
	Sessions *session.Manager
	Splits   *splitplan.Orchestrator

	splitStore *splitplan.Store
	logger     zerolog.Logger
	stopReaper chan struct{}
	reaperWG   sync.WaitGroup
}

// New wires every WorkerSQL component into a CoreState. The Policy
// Store's Raft node must already be started and have a leader
// (callers should call policy.Start() and policy.WaitForLeader() first, or
// pass a Policy Store built some other way for tests).
func New(cfg *config.Config, policy *policystore.Manager) (*CoreState, error) {
	splitStore, err := splitplan.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	clock := cachestore.SystemClock{}
	cache := cachestore.NewMemStore(clock)
	bus := events.NewBroker()

	resolve := func(shardID string) (string, bool) {
		url, ok := cfg.ShardEndpoints[shardID]
		return url, ok
	}
	coord := coordinator.New(resolve, coordinator.Config{
		FailureThreshold:       cfg.CircuitFailureThreshold,
		RecoveryMS:             cfg.CircuitRecoveryMS,
		ShardTimeoutMS:         cfg.ShardTimeoutMS,
		ConnectionTTLMS:        cfg.ConnectionTTLMS,
		MaxConnectionsPerShard: cfg.MaxConnectionsPerShard,
	})

	splitCfg := splitplan.DefaultConfig()
	splitCfg.Tables = tableNames(cfg)
	splits, err := splitplan.New(splitStore, coord, policy, splitCfg, clock)
	if err != nil {
		splitStore.Close()
		return nil, err
	}

	r := router.New(policy, splits, cfg.Shards)
	pipe := pipeline.New(r, coord, cache, cfg, bus, clock)
	sessions := session.New(clock, session.Config{SessionTTLMS: cfg.SessionTTLMS, MaxTxLifetimeMS: cfg.MaxTxLifetimeMS})

	cs := &CoreState{
		Config:     cfg,
		Policy:     policy,
		Cache:      cache,
		Events:     bus,
		Router:     r,
		Coord:      coord,
		Pipeline:   pipe,
		Sessions:   sessions,
		Splits:     splits,
		splitStore: splitStore,
		logger:     log.WithComponent("corestate"),
		stopReaper: make(chan struct{}),
	}

	bus.Start()
	return cs, nil
}

func tableNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Tables))
	for name := range cfg.Tables {
		names = append(names, name)
	}
	return names
}

// StartReaper launches the session staleness sweep as a background
// ticker loop; Shutdown drains it.
func (cs *CoreState) StartReaper(interval time.Duration) {
	cs.reaperWG.Add(1)
	go cs.runReaper(interval)
}

func (cs *CoreState) runReaper(interval time.Duration) {
	defer cs.reaperWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cs.logger.Info().Msg("session/split reaper started")
	for {
		select {
		case <-ticker.C:
			if n := cs.Sessions.Cleanup(); n > 0 {
				cs.logger.Info().Int("reaped", n).Msg("reaped stale sessions")
			}
			if stale := cs.Splits.SweepStale(cs.Config.SplitStaleAfterMS); len(stale) > 0 {
				cs.logger.Warn().Strs("split_ids", stale).Msg("stalled split plans need operator attention")
			}
		case <-cs.stopReaper:
			cs.logger.Info().Msg("session/split reaper stopped")
			return
		}
	}
}

// Shutdown stops the reaper and the event broker, and closes durable
// stores. Background split tasks are cancelled via their own plan-scoped
// contexts when Rollback is called; Shutdown does not forcibly cancel an
// in-flight backfill/tail so it can finish draining where possible.
func (cs *CoreState) Shutdown() {
	close(cs.stopReaper)
	cs.reaperWG.Wait()
	cs.Events.Stop()
	if err := cs.splitStore.Close(); err != nil {
		cs.logger.Warn().Err(err).Msg("error closing split plan store")
	}
	if err := cs.Policy.Close(); err != nil {
		cs.logger.Warn().Err(err).Msg("error closing policy store")
	}
}

// EnsureInitialPolicy seeds Policy Store version 1 from the configured
// initial policy, if no version has ever been installed.
func EnsureInitialPolicy(policy *policystore.Manager, cfg *config.Config) error {
	if policy.Current() != nil {
		return nil
	}
	p := &types.Policy{
		Version:   1,
		Timestamp: uint64(time.Now().UnixMilli()),
		Tenants:   cfg.InitialPolicy.Tenants,
		Ranges:    cfg.InitialPolicy.Ranges,
	}
	if p.Tenants == nil {
		p.Tenants = map[string]string{}
	}
	p.Checksum = policystore.Checksum(p)
	return policy.Propose(p)
}
