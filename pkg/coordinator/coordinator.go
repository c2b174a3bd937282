// Package coordinator serializes calls to shards through a per-shard
// circuit breaker, memoizes shard RPC stubs, and implements dual-write
// fanout and batch grouping.
package coordinator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/healthfees-org/workersql-sub002/pkg/log"
	"github.com/healthfees-org/workersql-sub002/pkg/metrics"
	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

// Config tunes the circuit breaker and the per-shard HTTP clients.
type Config struct {
	FailureThreshold int
	RecoveryMS       uint64

	// ShardTimeoutMS bounds every shard RPC; a timeout counts as a
	// failure toward the breaker.
	ShardTimeoutMS         uint64
	ConnectionTTLMS        uint64
	MaxConnectionsPerShard uint32
}

// DefaultConfig returns the coordinator's built-in defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:       5,
		RecoveryMS:             30_000,
		ShardTimeoutMS:         30_000,
		ConnectionTTLMS:        600_000,
		MaxConnectionsPerShard: 10,
	}
}

// ShardResolver maps a shard_id to its admin/query base URL.
type ShardResolver func(shardID string) (baseURL string, ok bool)

// Coordinator owns one breaker and one memoized client per shard.
type Coordinator struct {
	mu       sync.Mutex
	clients  map[string]*shardclient.Client
	breakers map[string]*breaker
	resolve  ShardResolver
	cfg      Config
}

// New constructs a Coordinator. resolve supplies the admin/query base URL
// for a shard the first time it is seen; the resulting client and breaker
// are memoized thereafter.
func New(resolve ShardResolver, cfg Config) *Coordinator {
	return &Coordinator{
		clients:  make(map[string]*shardclient.Client),
		breakers: make(map[string]*breaker),
		resolve:  resolve,
		cfg:      cfg,
	}
}

func (c *Coordinator) stub(shardID string) (*shardclient.Client, *breaker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[shardID]; ok {
		return client, c.breakers[shardID], nil
	}

	baseURL, ok := c.resolve(shardID)
	if !ok {
		return nil, nil, workerr.New(workerr.ShardUnavailable, "unknown shard: "+shardID)
	}

	client := shardclient.New(shardID, baseURL, c.httpClient())
	br := newBreaker(c.cfg.FailureThreshold, time.Duration(c.cfg.RecoveryMS)*time.Millisecond)
	c.clients[shardID] = client
	c.breakers[shardID] = br
	return client, br, nil
}

// httpClient builds the tuned HTTP client each memoized shard stub uses.
func (c *Coordinator) httpClient() *http.Client {
	timeout := time.Duration(c.cfg.ShardTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxConnsPerHost:     int(c.cfg.MaxConnectionsPerShard),
		MaxIdleConnsPerHost: int(c.cfg.MaxConnectionsPerShard),
		IdleConnTimeout:     time.Duration(c.cfg.ConnectionTTLMS) * time.Millisecond,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// ShardOp is a single-shard call dispatched through execute; it receives
// the memoized client for the target shard.
type ShardOp func(ctx context.Context, client *shardclient.Client) error

// Execute runs op against shardID, serialized through that shard's circuit
// breaker. It returns ShardUnavailable without calling op when
// the breaker is Open.
func (c *Coordinator) Execute(ctx context.Context, shardID string, op ShardOp) error {
	client, br, err := c.stub(shardID)
	if err != nil {
		return err
	}

	allowed, isProbe := br.admit()
	if !allowed {
		return workerr.New(workerr.ShardUnavailable, "circuit breaker open for shard: "+shardID)
	}

	err = op(ctx, client)
	c.recordOutcome(shardID, br, isProbe, err)
	return err
}

func (c *Coordinator) recordOutcome(shardID string, br *breaker, isProbe bool, err error) {
	if err != nil {
		wasClosed := br.currentState() != open
		br.recordFailure(isProbe)
		if wasClosed && br.currentState() == open {
			metrics.BreakerTripsTotal.WithLabelValues(shardID).Inc()
		}
		metrics.ShardRPCsTotal.WithLabelValues(shardID, "failure").Inc()
		shardLogger := log.WithShard(shardID)
		shardLogger.Warn().Err(err).Msg("shard rpc failed")
	} else {
		br.recordSuccess(isProbe)
		metrics.ShardRPCsTotal.WithLabelValues(shardID, "success").Inc()
	}
	metrics.BreakerState.WithLabelValues(shardID).Set(metrics.BreakerStateValue(stateLabel(br.currentState())))
}

func stateLabel(s breakerState) string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// DualWriteResult carries the primary's authoritative result plus the
// shard IDs any secondary fanout failed against.
type DualWriteResult struct {
	PrimaryErr      error
	SecondaryErrors map[string]error
}

// DualWrite dispatches op to shards[0] (primary, authoritative) then to the
// remaining entries (secondaries, fire-and-forget but awaited for
// completion without their results affecting the caller). A
// secondary failure is recorded but never turns into the caller's error
// unless the primary itself failed.
func (c *Coordinator) DualWrite(ctx context.Context, shards []string, op ShardOp) DualWriteResult {
	if len(shards) == 0 {
		return DualWriteResult{PrimaryErr: workerr.New(workerr.ShardUnavailable, "no shards to dispatch to")}
	}

	primary := shards[0]
	result := DualWriteResult{SecondaryErrors: make(map[string]error)}
	result.PrimaryErr = c.Execute(ctx, primary, op)

	if len(shards) == 1 {
		return result
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, shardID := range shards[1:] {
		shardID := shardID
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Execute(ctx, shardID, op); err != nil {
				mu.Lock()
				result.SecondaryErrors[shardID] = err
				mu.Unlock()
				shardLogger := log.WithShard(shardID)
				shardLogger.Warn().Err(err).Msg("secondary dual-write failed")
			}
		}()
	}
	wg.Wait()

	return result
}
