package policystore

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// Store is the Policy Store contract.
type Store interface {
	Current() *types.Policy
	AtVersion(v uint64) (*types.Policy, bool)
	Propose(next *types.Policy) error
	RollbackTo(v uint64) error
}

// Config configures a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Bootstrap, when true, initializes a brand-new single-voter Raft
	// cluster. Subsequent process restarts should pass false and rely on
	// the persisted Raft log/snapshot state.
	Bootstrap bool
}

// Manager is the Raft-replicated Policy Store.
type Manager struct {
	cfg         Config
	raft        *raft.Raft
	fsm         *PolicyFSM
	history     *HistoryStore
	logStore    *raftboltdb.BoltStore
	stableStore *raftboltdb.BoltStore
}

var _ Store = (*Manager)(nil)

// NewManager opens durable storage and constructs (without starting) a
// policy store manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create policy store data dir: %w", err)
	}

	history, err := NewHistoryStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	fsm := NewPolicyFSM(history)

	return &Manager{cfg: cfg, fsm: fsm, history: history}, nil
}

// Start brings up the Raft node, bootstrapping a single-voter cluster when
// configured to do so. Timeouts are tightened well below the library
// defaults for fast failover on an edge instance.
func (m *Manager) Start() error {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(m.cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve policy store bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create raft log store: %w", err)
	}
	m.logStore = logStore

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create raft stable store: %w", err)
	}
	m.stableStore = stableStore

	r, err := raft.NewRaft(raftCfg, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft node: %w", err)
	}
	m.raft = r

	if m.cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		}
		future := r.BootstrapCluster(configuration)
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return fmt.Errorf("failed to bootstrap policy store raft cluster: %w", err)
		}
	}

	return nil
}

// WaitForLeader blocks until this node observes a Raft leader or the
// timeout elapses.
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.raft.Leader() != "" {
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return workerr.New(workerr.Timeout, "timed out waiting for policy store raft leader")
}

// Close releases the durable stores.
func (m *Manager) Close() error {
	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			componentLogger := log.WithComponent("policystore")
			componentLogger.Warn().Err(err).Msg("raft shutdown error")
		}
	}
	if m.logStore != nil {
		_ = m.logStore.Close()
	}
	if m.stableStore != nil {
		_ = m.stableStore.Close()
	}
	return m.history.Close()
}

// apply replicates cmd through Raft and surfaces whatever error the FSM's
// Apply returned as the command's outcome.
func (m *Manager) apply(cmd Command) error {
	if m.raft == nil {
		return workerr.New(workerr.Internal, "policy store raft node not started")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return workerr.Wrap(workerr.Internal, "failed to marshal policy command", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return workerr.Wrap(workerr.Internal, "failed to apply policy command", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// Current returns the current policy, served from the FSM's in-memory
// copy without a Raft round trip.
func (m *Manager) Current() *types.Policy {
	p := m.fsm.Current()
	if p != nil {
		metrics.PolicyCurrentVersion.Set(float64(p.Version))
	}
	return p
}

// AtVersion returns the historical policy at v, if retained.
func (m *Manager) AtVersion(v uint64) (*types.Policy, bool) {
	return m.history.AtVersion(v)
}

// Propose atomically installs next iff next.Version == current.Version+1
// and next.Checksum matches its content hash.
func (m *Manager) Propose(next *types.Policy) error {
	err := m.apply(Command{Op: opPropose, Data: mustMarshal(next)})
	if err != nil {
		if workerr.KindOf(err) == workerr.VersionConflict {
			metrics.PolicyConflictsTotal.Inc()
		}
		return err
	}
	metrics.PolicyCurrentVersion.Set(float64(next.Version))
	return nil
}

// RollbackTo sets current to the policy stored at version v, allocating a
// new version number equal to current+1 whose content equals v: rollback
// is always a new version, preserving monotonicity.
func (m *Manager) RollbackTo(v uint64) error {
	current := m.Current()
	var newVersion uint64 = 1
	if current != nil {
		newVersion = current.Version + 1
	}

	rc := rollbackCommand{
		ToVersion:    v,
		NewVersion:   newVersion,
		NewTimestamp: uint64(time.Now().UnixMilli()),
	}
	data, _ := json.Marshal(rc)

	return m.apply(Command{Op: opRollback, Data: data})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
