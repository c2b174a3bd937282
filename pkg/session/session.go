// Package session implements sticky session binding, transaction affinity,
// and staleness cleanup.
package session

import (
	"sync"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// Config tunes session TTL and max transaction lifetime.
type Config struct {
	SessionTTLMS    uint64
	MaxTxLifetimeMS uint64
}

// DefaultConfig returns the Session Manager's built-in defaults.
func DefaultConfig() Config {
	return Config{SessionTTLMS: 600000, MaxTxLifetimeMS: 300000}
}

// Manager holds every live session under a single lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	clock    cachestore.Clock
	cfg      Config
}

// New constructs a Manager.
func New(clock cachestore.Clock, cfg Config) *Manager {
	if clock == nil {
		clock = cachestore.SystemClock{}
	}
	return &Manager{sessions: make(map[string]*types.Session), clock: clock, cfg: cfg}
}

// Bind is an idempotent upsert. If transactionID is non-empty the session's
// shard is pinned for the transaction's life.
func (m *Manager) Bind(sessionID, tenantID, shardID, transactionID string) *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowMS()
	s, exists := m.sessions[sessionID]
	if !exists {
		s = &types.Session{SessionID: sessionID}
		m.sessions[sessionID] = s
		metrics.SessionsActiveTotal.Set(float64(len(m.sessions)))
	}

	s.TenantID = tenantID
	s.ShardID = shardID
	s.LastSeenMS = now
	s.State = types.SessionActive
	if transactionID != "" {
		s.TransactionID = transactionID
		s.TxStartedMS = now
	}
	return s.Clone()
}

// Get returns a copy of the session, or nil if unbound.
func (m *Manager) Get(sessionID string) *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	return s.Clone()
}

// BeginTransaction pins the session's shard to txID. It fails if the
// session is already in a transaction.
func (m *Manager) BeginTransaction(sessionID, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return workerr.New(workerr.NotFound, "session not bound: "+sessionID)
	}
	if s.TransactionID != "" {
		return workerr.New(workerr.InvalidInput, "session already in transaction: "+sessionID)
	}

	s.TransactionID = txID
	s.TxStartedMS = m.clock.NowMS()
	s.LastSeenMS = s.TxStartedMS
	return nil
}

// EndTransaction clears the session's transaction; the session remains
// bound.
func (m *Manager) EndTransaction(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return workerr.New(workerr.NotFound, "session not bound: "+sessionID)
	}

	s.TransactionID = ""
	s.TxStartedMS = 0
	s.LastSeenMS = m.clock.NowMS()
	return nil
}

// Release removes the session entirely.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	metrics.SessionsActiveTotal.Set(float64(len(m.sessions)))
}

// Cleanup reaps idle sessions past TTL and force-releases in-transaction
// sessions past the max transaction lifetime. It returns the
// count of sessions reaped.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowMS()
	reaped := 0
	for id, s := range m.sessions {
		if s.TransactionID != "" {
			if now-s.TxStartedMS > m.cfg.MaxTxLifetimeMS {
				delete(m.sessions, id)
				reaped++
			}
			continue
		}
		if now-s.LastSeenMS > m.cfg.SessionTTLMS {
			delete(m.sessions, id)
			reaped++
		}
	}

	if reaped > 0 {
		metrics.SessionsReapedTotal.Add(float64(reaped))
		metrics.SessionsActiveTotal.Set(float64(len(m.sessions)))
	}
	return reaped
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
