package policystore

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// Command is one Raft log entry applied to the PolicyFSM.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opPropose  = "propose"
	opRollback = "rollback"
)

// rollbackCommand carries the target version a rollback reinstalls as a
// new, higher version.
type rollbackCommand struct {
	ToVersion    uint64 `json:"to_version"`
	NewVersion   uint64 `json:"new_version"`
	NewTimestamp uint64 `json:"new_timestamp"`
}

// PolicyFSM implements raft.FSM, applying propose/rollback commands to a
// durable HistoryStore and keeping an in-memory "current" pointer that
// Current() serves without touching disk.
type PolicyFSM struct {
	mu      sync.RWMutex
	history *HistoryStore
	current *types.Policy
}

// NewPolicyFSM creates an FSM over the given durable history store,
// loading whatever "current" was last persisted (if any).
func NewPolicyFSM(history *HistoryStore) *PolicyFSM {
	f := &PolicyFSM{history: history}
	if p, ok := history.Current(); ok {
		f.current = p
	}
	return f
}

// Current returns the in-memory current policy, or nil if none installed.
func (f *PolicyFSM) Current() *types.Policy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Apply applies one committed Raft log entry.
func (f *PolicyFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return workerr.Wrap(workerr.Internal, "failed to unmarshal policy command", err)
	}

	switch cmd.Op {
	case opPropose:
		var next types.Policy
		if err := json.Unmarshal(cmd.Data, &next); err != nil {
			return workerr.Wrap(workerr.Internal, "failed to unmarshal proposed policy", err)
		}
		return f.applyPropose(&next)

	case opRollback:
		var rc rollbackCommand
		if err := json.Unmarshal(cmd.Data, &rc); err != nil {
			return workerr.Wrap(workerr.Internal, "failed to unmarshal rollback command", err)
		}
		return f.applyRollback(rc)

	default:
		return workerr.New(workerr.Internal, fmt.Sprintf("unknown policy command: %s", cmd.Op))
	}
}

func (f *PolicyFSM) applyPropose(next *types.Policy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var currentVersion uint64
	if f.current != nil {
		currentVersion = f.current.Version
	}

	if next.Version != currentVersion+1 {
		return workerr.New(workerr.VersionConflict,
			fmt.Sprintf("expected version %d, got %d", currentVersion+1, next.Version))
	}
	if !VerifyChecksum(next) {
		return workerr.New(workerr.VersionConflict, "checksum does not match policy content")
	}

	if err := f.history.SaveVersion(next); err != nil {
		return workerr.Wrap(workerr.Internal, "failed to persist policy version", err)
	}
	if err := f.history.SetCurrent(next.Version); err != nil {
		return workerr.Wrap(workerr.Internal, "failed to persist current pointer", err)
	}

	f.current = next
	return nil
}

func (f *PolicyFSM) applyRollback(rc rollbackCommand) error {
	f.mu.RLock()
	target, ok := f.historySnapshot(rc.ToVersion)
	f.mu.RUnlock()
	if !ok {
		return workerr.New(workerr.NotFound, fmt.Sprintf("no such policy version: %d", rc.ToVersion))
	}

	reinstalled := target.Clone()
	reinstalled.Version = rc.NewVersion
	reinstalled.Timestamp = rc.NewTimestamp
	reinstalled.Checksum = Checksum(reinstalled)

	return f.applyPropose(reinstalled)
}

func (f *PolicyFSM) historySnapshot(v uint64) (*types.Policy, bool) {
	return f.history.AtVersion(v)
}

// Snapshot creates a point-in-time snapshot for Raft log compaction.
func (f *PolicyFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	versions, err := f.history.AllVersions()
	if err != nil {
		return nil, err
	}
	var currentVersion uint64
	if f.current != nil {
		currentVersion = f.current.Version
	}
	return &policySnapshot{Versions: versions, CurrentVersion: currentVersion}, nil
}

// Restore restores the FSM from a snapshot (node restart or join).
func (f *PolicyFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap policySnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode policy snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range snap.Versions {
		if err := f.history.SaveVersion(p); err != nil {
			return fmt.Errorf("failed to restore policy version %d: %w", p.Version, err)
		}
	}
	if err := f.history.SetCurrent(snap.CurrentVersion); err != nil {
		return fmt.Errorf("failed to restore current pointer: %w", err)
	}
	f.current, _ = f.history.AtVersion(snap.CurrentVersion)

	return nil
}

type policySnapshot struct {
	Versions       []*types.Policy `json:"versions"`
	CurrentVersion uint64          `json:"current_version"`
}

func (s *policySnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *policySnapshot) Release() {}
