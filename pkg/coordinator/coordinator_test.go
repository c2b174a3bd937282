package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

func newFakeShard(t *testing.T, fail func(count int) bool) *httptest.Server {
	t.Helper()
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		if fail(count) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"rowsAffected":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func noopOp(ctx context.Context, client *shardclient.Client) error {
	_, err := client.Mutation(ctx, "tenant-1", shardclient.QuerySpec{SQL: "UPDATE t SET x = 1"}, "")
	return err
}

func failOp(_ context.Context, _ *shardclient.Client) error { return errors.New("boom") }

func TestExecuteUnknownShard(t *testing.T) {
	c := New(func(string) (string, bool) { return "", false }, DefaultConfig())
	err := c.Execute(context.Background(), "shard_x", noopOp)
	require.Error(t, err)
	assert.Equal(t, workerr.ShardUnavailable, workerr.KindOf(err))
}

func TestExecuteSucceeds(t *testing.T) {
	srv := newFakeShard(t, func(int) bool { return false })
	c := New(func(string) (string, bool) { return srv.URL, true }, DefaultConfig())

	err := c.Execute(context.Background(), "shard_1", noopOp)
	require.NoError(t, err)
}

func TestExecuteTripsBreakerAfterThreshold(t *testing.T) {
	c := New(func(string) (string, bool) { return "http://127.0.0.1:1", true }, Config{FailureThreshold: 2, RecoveryMS: 50000})

	require.Error(t, c.Execute(context.Background(), "shard_1", failOp))
	require.Error(t, c.Execute(context.Background(), "shard_1", failOp))

	err := c.Execute(context.Background(), "shard_1", noopOp)
	require.Error(t, err)
	assert.Equal(t, workerr.ShardUnavailable, workerr.KindOf(err))
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestDualWritePrimaryFailureIsReported(t *testing.T) {
	c := New(func(string) (string, bool) { return "http://127.0.0.1:1", true }, DefaultConfig())

	result := c.DualWrite(context.Background(), []string{"shard_1", "shard_2"}, failOp)
	require.Error(t, result.PrimaryErr)
}

func TestDualWriteSecondaryFailureDoesNotFailRequest(t *testing.T) {
	primary := newFakeShard(t, func(int) bool { return false })
	secondary := newFakeShard(t, func(int) bool { return true })

	c := New(func(shardID string) (string, bool) {
		if shardID == "shard_1" {
			return primary.URL, true
		}
		return secondary.URL, true
	}, DefaultConfig())

	result := c.DualWrite(context.Background(), []string{"shard_1", "shard_2"}, noopOp)
	require.NoError(t, result.PrimaryErr)
	assert.Contains(t, result.SecondaryErrors, "shard_2")
}

func TestGroupByPrimary(t *testing.T) {
	items := []BatchItem{
		{SQL: "a", WriteShards: []string{"shard_1"}},
		{SQL: "b", WriteShards: []string{"shard_2"}},
		{SQL: "c", WriteShards: []string{"shard_1", "shard_3"}},
	}

	groups := GroupByPrimary(items)
	require.Len(t, groups["shard_1"], 2)
	require.Len(t, groups["shard_2"], 1)
}
