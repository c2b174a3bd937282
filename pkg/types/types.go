// Package types holds the data model shared across WorkerSQL's components:
// routing policies, cache entries, sessions, and split plans.
package types

import "time"

// Policy is an immutable, versioned routing record. Exactly one Policy is
// ever "current" in the Policy Store; older versions are retained for
// rollback.
type Policy struct {
	Version   uint64            `json:"version"`
	Timestamp uint64            `json:"timestamp"`
	Checksum  []byte            `json:"checksum"`
	Tenants   map[string]string `json:"tenants"` // tenant_id -> shard_id
	Ranges    []RangeRule       `json:"ranges"`
}

// RangeRule is one entry of the ordered range-routing fallback table.
type RangeRule struct {
	Prefix  string `json:"prefix"`
	ShardID string `json:"shard_id"`
}

// Clone returns a deep copy of the policy so callers can mutate a working
// copy before handing it to Propose.
func (p *Policy) Clone() *Policy {
	cp := &Policy{
		Version:   p.Version,
		Timestamp: p.Timestamp,
		Checksum:  append([]byte(nil), p.Checksum...),
		Tenants:   make(map[string]string, len(p.Tenants)),
		Ranges:    append([]RangeRule(nil), p.Ranges...),
	}
	for k, v := range p.Tenants {
		cp.Tenants[k] = v
	}
	return cp
}

// ConsistencyMode is the caller- or table-selected read consistency for a
// SELECT.
type ConsistencyMode string

const (
	ConsistencyStrong  ConsistencyMode = "strong"
	ConsistencyBounded ConsistencyMode = "bounded"
	ConsistencyCached  ConsistencyMode = "cached"
)

// Hints is the parsed form of a /*+ ... */ SQL hint comment.
type Hints struct {
	Consistency ConsistencyMode
	BoundedMS   uint64
}

// StatementKind is the result of classifying a SQL statement.
type StatementKind string

const (
	KindSelect StatementKind = "SELECT"
	KindInsert StatementKind = "INSERT"
	KindUpdate StatementKind = "UPDATE"
	KindDelete StatementKind = "DELETE"
	KindDDL    StatementKind = "DDL"
)

// IsMutation reports whether kind is one of INSERT/UPDATE/DELETE.
func (k StatementKind) IsMutation() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}

// CacheEntry is a materialized-query cache record.
type CacheEntry struct {
	Key          string
	Data         []byte
	Version      uint64
	FreshUntilMS uint64
	SWRUntilMS   uint64
	ShardID      string
}

// SessionState is the lifecycle state of a bound session.
type SessionState string

const (
	SessionActive  SessionState = "Active"
	SessionIdle    SessionState = "Idle"
	SessionClosing SessionState = "Closing"
)

// Session is a sticky client session, optionally pinned to a shard by an
// open transaction.
type Session struct {
	SessionID     string
	TenantID      string
	ShardID       string
	TransactionID string
	LastSeenMS    uint64
	State         SessionState
	TxStartedMS   uint64
}

// InTransaction reports whether the session currently holds an open
// transaction.
func (s *Session) InTransaction() bool {
	return s.TransactionID != ""
}

// Clone returns a copy of s safe to hand to a caller outside the session
// manager's lock.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// SplitPhase is one state of the split-plan state machine.
type SplitPhase string

const (
	PhasePlanning       SplitPhase = "Planning"
	PhaseDualWrite      SplitPhase = "DualWrite"
	PhaseBackfill       SplitPhase = "Backfill"
	PhaseTailing        SplitPhase = "Tailing"
	PhaseCutoverPending SplitPhase = "CutoverPending"
	PhaseCompleted      SplitPhase = "Completed"
	PhaseRolledBack     SplitPhase = "RolledBack"
)

// IsTerminal reports whether phase is a terminal (non-advancing) phase.
func (p SplitPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseRolledBack
}

// IsPreCutover reports whether phase precedes the cutover policy swap —
// used by the router overlay to decide read/write targets.
func (p SplitPhase) IsPreCutover() bool {
	switch p {
	case PhaseDualWrite, PhaseBackfill, PhaseTailing, PhaseCutoverPending:
		return true
	}
	return false
}

// BackfillStatus is the sub-status of a plan's backfill phase.
type BackfillStatus string

const (
	BackfillPending   BackfillStatus = "pending"
	BackfillRunning   BackfillStatus = "running"
	BackfillCompleted BackfillStatus = "completed"
	BackfillFailed    BackfillStatus = "failed"
)

// TailStatus is the sub-status of a plan's tail-replay phase.
type TailStatus string

const (
	TailPending TailStatus = "pending"
	TailRunning TailStatus = "running"
	TailFailed  TailStatus = "failed"
)

// Backfill tracks progress of the bulk row copy from source to target.
type Backfill struct {
	Status         BackfillStatus    `json:"status"`
	StartedAtMS    uint64            `json:"started_at_ms,omitempty"`
	CompletedAtMS  uint64            `json:"completed_at_ms,omitempty"`
	Error          string            `json:"error,omitempty"`
	PerTableCursor map[string]string `json:"per_table_cursor"`
	RowsCopied     uint64            `json:"rows_copied"`
}

// Tail tracks progress of event-log tail replay.
type Tail struct {
	Status      TailStatus `json:"status"`
	LastEventID uint64     `json:"last_event_id,omitempty"`
	LastEventTS uint64     `json:"last_event_ts_ms,omitempty"`
	Error       string     `json:"error,omitempty"`
	CaughtUp    bool       `json:"caught_up"`
}

// SplitPlan is the persistent lifecycle record driving an online shard
// split.
type SplitPlan struct {
	SplitID               string     `json:"split_id"`
	SourceShard           string     `json:"source_shard"`
	TargetShard           string     `json:"target_shard"`
	TenantIDs             []string   `json:"tenant_ids"`
	Phase                 SplitPhase `json:"phase"`
	RoutingVersionAtStart uint64     `json:"routing_version_at_start"`
	RoutingVersionCutover uint64     `json:"routing_version_cutover,omitempty"`
	DualWriteStartedAtMS  uint64     `json:"dual_write_started_at_ms,omitempty"`
	Backfill              Backfill   `json:"backfill"`
	Tail                  Tail       `json:"tail"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	CreatedAtMS           uint64     `json:"created_at_ms"`
	UpdatedAtMS           uint64     `json:"updated_at_ms"`
}

// HasTenant reports whether t is among the plan's migrating tenants.
func (p *SplitPlan) HasTenant(t string) bool {
	for _, id := range p.TenantIDs {
		if id == t {
			return true
		}
	}
	return false
}

// InvalidationEventType enumerates the invalidation events emitted by
// mutating query-pipeline operations.
type InvalidationEventType string

const (
	EventInvalidate InvalidationEventType = "invalidate"
)

// InvalidationEvent is published onto the cache-invalidation event stream
// whenever a mutation or DDL commits on a shard.
type InvalidationEvent struct {
	Type      InvalidationEventType `json:"type"`
	ShardID   string                `json:"shard_id"`
	Version   uint64                `json:"version"`
	Timestamp time.Time             `json:"timestamp"`
	Keys      []string              `json:"keys"`
}

// TablePolicy is the per-table configuration overlay
type TablePolicy struct {
	Cache CachePolicy `json:"cache" yaml:"cache"`
	PK    string      `json:"pk" yaml:"pk"`
}

// CachePolicy is the per-table default consistency/TTL/SWR triple.
type CachePolicy struct {
	Mode   ConsistencyMode `json:"mode" yaml:"mode"`
	TTLMS  uint64          `json:"ttl_ms" yaml:"ttlMs"`
	SWRMS  uint64          `json:"swr_ms" yaml:"swrMs"`
}
