package policystore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

var (
	bucketVersions = []byte("policy_versions")
	bucketMeta     = []byte("policy_meta")
	keyCurrent     = []byte("current")
)

// HistoryStore durably persists every installed policy version plus the
// current-version pointer, one JSON record per version in a bbolt bucket.
type HistoryStore struct {
	db *bolt.DB
}

// NewHistoryStore opens (creating if absent) the policy history database
// under dataDir.
func NewHistoryStore(dataDir string) (*HistoryStore, error) {
	dbPath := filepath.Join(dataDir, "policy.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketVersions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error { return s.db.Close() }

func versionKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// SaveVersion persists one immutable policy version. Versions are never
// mutated in place.
func (s *HistoryStore) SaveVersion(p *types.Policy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVersions).Put(versionKey(p.Version), data)
	})
}

// AtVersion returns the stored policy at version v, if any.
func (s *HistoryStore) AtVersion(v uint64) (*types.Policy, bool) {
	var p types.Policy
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVersions).Get(versionKey(v))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	if !found {
		return nil, false
	}
	return &p, true
}

// SetCurrent records which version is current.
func (s *HistoryStore) SetCurrent(v uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyCurrent, versionKey(v))
	})
}

// CurrentVersion returns the persisted current-version pointer, if any has
// ever been installed.
func (s *HistoryStore) CurrentVersion() (uint64, bool) {
	var v uint64
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrent)
		if data == nil {
			return nil
		}
		found = true
		v = binary.BigEndian.Uint64(data)
		return nil
	})
	return v, found
}

// Current returns the currently-installed policy, if any.
func (s *HistoryStore) Current() (*types.Policy, bool) {
	v, ok := s.CurrentVersion()
	if !ok {
		return nil, false
	}
	return s.AtVersion(v)
}

// AllVersions returns every stored policy, for FSM snapshotting.
func (s *HistoryStore) AllVersions() ([]*types.Policy, error) {
	var out []*types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).ForEach(func(_, data []byte) error {
			var p types.Policy
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}
