package splitplan

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

var bucketPlans = []byte("split_plans")

// Store durably persists split plans, one JSON record per split_id in a
// bbolt bucket, retained indefinitely for audit.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if absent) the split-plan database under
// dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "splitplan.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open split plan store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPlans)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists plan, overwriting any prior record at the same split_id.
// Every phase transition calls Save before background work for that phase
// begins.
func (s *Store) Save(plan *types.SplitPlan) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(plan)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPlans).Put([]byte(plan.SplitID), data)
	})
}

// Get returns the stored plan for splitID, if any.
func (s *Store) Get(splitID string) (*types.SplitPlan, bool) {
	var plan types.SplitPlan
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPlans).Get([]byte(splitID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &plan)
	})
	if !found {
		return nil, false
	}
	return &plan, true
}

// All returns every stored plan, for orchestrator warm-start and the
// one-active-plan-per-source-shard invariant check.
func (s *Store) All() ([]*types.SplitPlan, error) {
	var out []*types.SplitPlan
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlans).ForEach(func(_, data []byte) error {
			var p types.SplitPlan
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}
