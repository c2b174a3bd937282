package cachestore

import (
	"strings"
	"sync"

	"github.com/healthfees-org/workersql-sub002/pkg/hashutil"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// Store is the Cache Store contract. Implementations must
// degrade open: any internal failure is a miss/no-op, never an error
// returned up to the query pipeline.
type Store interface {
	Get(key string) (*types.CacheEntry, bool)
	Set(key string, data []byte, ttlMS, swrMS uint64, shardID string)
	Delete(key string)
	DeleteByPattern(prefix string)

	GetMaterialized(tenant, table, sqlNormalized string, params []interface{}) (*types.CacheEntry, bool)
	SetMaterialized(tenant, table, sqlNormalized string, params []interface{}, data []byte, ttlMS, swrMS uint64, shardID string)

	IsFresh(e *types.CacheEntry) bool
	IsStaleButRevalidatable(e *types.CacheEntry) bool
	IsExpired(e *types.CacheEntry) bool
}

// MemStore is the baseline in-memory Cache Store: a single edge instance's
// local materialized-query cache. Every mutation is last-writer-wins and
// there is no cross-key consistency.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*types.CacheEntry
	version uint64
	clock   Clock
}

// NewMemStore creates an empty Cache Store.
func NewMemStore(clock Clock) *MemStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemStore{
		entries: make(map[string]*types.CacheEntry),
		clock:   clock,
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Get(key string) (*types.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemStore) Set(key string, data []byte, ttlMS, swrMS uint64, shardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.NowMS()
	s.version++
	s.entries[key] = &types.CacheEntry{
		Key:          key,
		Data:         data,
		Version:      s.version,
		FreshUntilMS: now + ttlMS,
		SWRUntilMS:   now + swrMS,
		ShardID:      shardID,
	}
	metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
}

func (s *MemStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
}

// DeleteByPattern removes every key sharing the given prefix. A trailing
// "*" means "all keys sharing this prefix"; a prefix with no
// trailing "*" is treated as an exact-match delete of that one key plus
// anything literally prefixed by it, matching the same semantics — the
// contract only distinguishes "has a pattern" from "is a single key", and
// the invalidation callers always pass the "*" form.
//
// DeleteByPattern completes synchronously before returning, satisfying the
// "completes before the promise signaling completion resolves" guarantee;
// a production deployment with very large key spaces may want secondary
// indexing by tenant+table, which this in-memory
// baseline does not need.
func (s *MemStore) DeleteByPattern(prefix string) {
	literal := strings.TrimSuffix(prefix, "*")

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		if strings.HasPrefix(k, literal) {
			delete(s.entries, k)
		}
	}
	metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
}

func (s *MemStore) GetMaterialized(tenant, table, sqlNormalized string, params []interface{}) (*types.CacheEntry, bool) {
	return s.Get(QueryKey(tenant, table, sqlNormalized, params))
}

func (s *MemStore) SetMaterialized(tenant, table, sqlNormalized string, params []interface{}, data []byte, ttlMS, swrMS uint64, shardID string) {
	s.Set(QueryKey(tenant, table, sqlNormalized, params), data, ttlMS, swrMS, shardID)
}

func (s *MemStore) IsFresh(e *types.CacheEntry) bool {
	return e != nil && s.clock.NowMS() < e.FreshUntilMS
}

func (s *MemStore) IsStaleButRevalidatable(e *types.CacheEntry) bool {
	if e == nil {
		return false
	}
	now := s.clock.NowMS()
	return now >= e.FreshUntilMS && now < e.SWRUntilMS
}

func (s *MemStore) IsExpired(e *types.CacheEntry) bool {
	return e == nil || s.clock.NowMS() >= e.SWRUntilMS
}

// QueryKey builds the query cache key `<tenant>:q:<table>:<hex-digest>`.
func QueryKey(tenant, table, sqlNormalized string, params []interface{}) string {
	digest := hashutil.QueryDigest(sqlNormalized, params)
	return tenant + ":q:" + table + ":" + digest
}

// EntityKey builds the entity cache key `t:<table>:id:<pk>`.
func EntityKey(table, pk string) string {
	return "t:" + table + ":id:" + pk
}

// IndexKey builds the index cache key `idx:<table>:<column>:<value>`.
func IndexKey(table, column, value string) string {
	return "idx:" + table + ":" + column + ":" + value
}

// TableInvalidationPattern builds the mutation invalidation pattern
// `<tenant>:q:<table>:*`.
func TableInvalidationPattern(tenant, table string) string {
	return tenant + ":q:" + table + ":*"
}

// TenantInvalidationPattern builds the DDL invalidation pattern
// `<tenant>:q:*`.
func TenantInvalidationPattern(tenant string) string {
	return tenant + ":q:*"
}

// IdempotencyKey builds the batch idempotency key
// `idemp:batch:<tenant>:<key>`.
func IdempotencyKey(tenant, key string) string {
	return "idemp:batch:" + tenant + ":" + key
}

// RecordLookup records the outcome of a Cache Store lookup against the
// Prometheus hit-rate counter. Exported so the query pipeline can report
// the classification it derives from a raw Get.
func RecordLookup(store Store, e *types.CacheEntry) {
	switch {
	case e == nil:
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
	case store.IsFresh(e):
		metrics.CacheHitsTotal.WithLabelValues("fresh").Inc()
	case store.IsStaleButRevalidatable(e):
		metrics.CacheHitsTotal.WithLabelValues("stale").Inc()
	default:
		metrics.CacheHitsTotal.WithLabelValues("expired").Inc()
	}
}
