// Package config loads WorkerSQL's process-wide configuration from a
// YAML file, with per-table policy overrides merged at request time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// Config is the process-wide configuration, read once at init with
// per-table overrides merged at request time.
type Config struct {
	ShardCount uint32 `yaml:"shardCount"`

	CacheTTLMS uint64 `yaml:"cacheTtlMs"`
	CacheSWRMS uint64 `yaml:"cacheSwrMs"`

	ConnectionTTLMS        uint64 `yaml:"connectionTtlMs"`
	MaxConnectionsPerShard uint32 `yaml:"maxConnectionsPerShard"`
	ShardTimeoutMS         uint64 `yaml:"shardTimeoutMs"`

	CircuitFailureThreshold int    `yaml:"circuitFailureThreshold"`
	CircuitRecoveryMS       uint64 `yaml:"circuitRecoveryMs"`

	BatchMaxOps   int `yaml:"batchMaxOps"`
	BatchMaxBytes int `yaml:"batchMaxBytes"`

	SessionTTLMS    uint64 `yaml:"sessionTtlMs"`
	MaxTxLifetimeMS uint64 `yaml:"maxTxLifetimeMs"`

	// SplitStaleAfterMS is how long a non-terminal split plan may sit with
	// no persisted progress before the reaper flags it as stalled.
	SplitStaleAfterMS uint64 `yaml:"splitStaleAfterMs"`

	IdempotencyTTLMS uint64 `yaml:"idempotencyTtlMs"`

	Tables map[string]types.TablePolicy `yaml:"tables"`

	// Shards lists the known shard ids for stub-cache population and
	// deterministic hash-fallback routing (shard_<H(tenant) mod N>).
	Shards []string `yaml:"shards"`

	// ShardEndpoints maps each shard id to the base URL its admin/query
	// protocol is reachable at.
	ShardEndpoints map[string]string `yaml:"shardEndpoints"`

	// InitialPolicy seeds Policy Store version 1 at bootstrap.
	InitialPolicy InitialPolicy `yaml:"initialPolicy"`

	DataDir string `yaml:"dataDir"`
}

// InitialPolicy is the YAML shape of the bootstrap routing policy.
type InitialPolicy struct {
	Tenants map[string]string `yaml:"tenants"`
	Ranges  []types.RangeRule `yaml:"ranges"`
}

// Default returns a Config populated with WorkerSQL's built-in defaults.
func Default() *Config {
	return &Config{
		ShardCount:              4,
		CacheTTLMS:              30_000,
		CacheSWRMS:              120_000,
		ConnectionTTLMS:         600_000,
		MaxConnectionsPerShard:  10,
		ShardTimeoutMS:          30_000,
		CircuitFailureThreshold: 5,
		CircuitRecoveryMS:       30_000,
		BatchMaxOps:             500,
		BatchMaxBytes:           1_048_576,
		SessionTTLMS:            600_000,
		MaxTxLifetimeMS:         300_000,
		SplitStaleAfterMS:       600_000,
		IdempotencyTTLMS:        300_000,
		Tables:                  map[string]types.TablePolicy{},
		ShardEndpoints:          map[string]string{},
		DataDir:                 "./data",
	}
}

// Load reads and merges a YAML config file on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// TablePolicy returns the configured policy for table, or a sane default
// (Cached mode, the process-wide TTL/SWR) when the table carries no
// explicit override.
func (c *Config) TablePolicy(table string) types.TablePolicy {
	if tp, ok := c.Tables[table]; ok {
		if tp.Cache.TTLMS == 0 {
			tp.Cache.TTLMS = c.CacheTTLMS
		}
		if tp.Cache.SWRMS == 0 {
			tp.Cache.SWRMS = c.CacheSWRMS
		}
		if tp.Cache.Mode == "" {
			tp.Cache.Mode = types.ConsistencyCached
		}
		return tp
	}
	return types.TablePolicy{
		Cache: types.CachePolicy{
			Mode:  types.ConsistencyCached,
			TTLMS: c.CacheTTLMS,
			SWRMS: c.CacheSWRMS,
		},
		PK: "id",
	}
}
