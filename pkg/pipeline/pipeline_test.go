package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/config"
	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/events"
	"github.com/healthfees-org/workersql-sub002/pkg/router"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

type fakePolicy struct{ p *types.Policy }

func (f fakePolicy) Current() *types.Policy { return f.p }

type fakeClock struct{ ms uint64 }

func (c *fakeClock) NowMS() uint64 { return c.ms }

func newTestShard(t *testing.T, queryData string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/query":
			w.Write([]byte(`{"success":true,"data":` + queryData + `}`))
		case "/mutation":
			w.Write([]byte(`{"success":true,"data":{"rowsAffected":1}}`))
		case "/ddl":
			w.Write([]byte(`{"success":true}`))
		case "/mutation/batch":
			var body struct {
				Operations []json.RawMessage `json:"operations"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			w.Write([]byte(`{"success":true,"rowsAffected":` + strconv.Itoa(len(body.Operations)) + `}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPipeline(t *testing.T, shardURL string) (*Pipeline, *events.Broker) {
	t.Helper()
	policy := &types.Policy{Version: 1, Tenants: map[string]string{"acme": "shard_1"}}
	r := router.New(fakePolicy{policy}, router.NoopOverlay{}, []string{"shard_1"})
	co := coordinator.New(func(string) (string, bool) { return shardURL, true }, coordinator.DefaultConfig())
	cache := cachestore.NewMemStore(&fakeClock{ms: 1000})
	cfg := config.Default()
	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)
	return New(r, co, cache, cfg, bus, &fakeClock{ms: 1000}), bus
}

func TestSelectStrongBypassesCache(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, _ := newTestPipeline(t, srv.URL)

	selectSQL := "/*+ strong */ SELECT * FROM orders"
	res, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	again, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	assert.False(t, again.FromCache, "strong consistency must never read from cache")
}

func TestSelectBoundedCachesAfterFetch(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, _ := newTestPipeline(t, srv.URL)

	res1, err := p.Select(context.Background(), "acme", "/*+ bounded */ SELECT * FROM orders", nil)
	require.NoError(t, err)
	assert.False(t, res1.FromCache)

	res2, err := p.Select(context.Background(), "acme", "/*+ bounded */ SELECT * FROM orders", nil)
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
}

func TestMutationInvalidatesCacheAndPublishesEvent(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, bus := newTestPipeline(t, srv.URL)
	sub := bus.Subscribe()

	selectSQL := "/*+ bounded */ SELECT * FROM orders"
	_, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)

	cached, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	require.True(t, cached.FromCache)

	_, err = p.Mutation(context.Background(), "acme", "UPDATE orders SET status = 'shipped' WHERE id = ?", []interface{}{1})
	require.NoError(t, err)

	afterMutation, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	assert.False(t, afterMutation.FromCache)

	select {
	case evt := <-sub:
		assert.Equal(t, types.EventInvalidate, evt.Type)
		assert.Equal(t, "shard_1", evt.ShardID)
	case <-time.After(time.Second):
		t.Fatal("expected an invalidation event")
	}
}

func TestDDLInvalidatesTenantWide(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, _ := newTestPipeline(t, srv.URL)

	selectSQL := "/*+ bounded */ SELECT * FROM orders"
	_, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)

	cached, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	require.True(t, cached.FromCache)

	err = p.DDL(context.Background(), "acme", "ALTER TABLE orders ADD COLUMN x INT")
	require.NoError(t, err)

	afterDDL, err := p.Select(context.Background(), "acme", selectSQL, nil)
	require.NoError(t, err)
	assert.False(t, afterDDL.FromCache)
}

func TestBatchZeroOpsSucceedsWithoutShardCalls(t *testing.T) {
	// No shard at all: an empty batch must never dispatch.
	p, _ := newTestPipeline(t, "http://127.0.0.1:1")

	resp, err := p.Batch(context.Background(), "acme", nil, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(0), resp.RowsAffected)
}

func TestBatchRejectsOversizedBatchBeforeDispatch(t *testing.T) {
	p, _ := newTestPipeline(t, "http://127.0.0.1:1")
	p.Config.BatchMaxOps = 1

	ops := []BatchOp{
		{SQL: "UPDATE orders SET x = 1"},
		{SQL: "UPDATE orders SET x = 2"},
	}
	_, err := p.Batch(context.Background(), "acme", ops, "")
	require.Error(t, err)
}

func TestBatchRejectsNonMutationItem(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, _ := newTestPipeline(t, srv.URL)

	_, err := p.Batch(context.Background(), "acme", []BatchOp{{SQL: "SELECT * FROM orders"}}, "")
	require.Error(t, err)
}

func TestBatchAggregatesAndReplaysIdempotently(t *testing.T) {
	srv := newTestShard(t, `{"rows":[1]}`)
	p, _ := newTestPipeline(t, srv.URL)

	ops := []BatchOp{
		{SQL: "UPDATE orders SET x = 1 WHERE id = ?", Params: []interface{}{1}},
		{SQL: "UPDATE orders SET x = 2 WHERE id = ?", Params: []interface{}{2}},
	}

	resp1, err := p.Batch(context.Background(), "acme", ops, "key-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp1.RowsAffected)

	resp2, err := p.Batch(context.Background(), "acme", ops, "key-1")
	require.NoError(t, err)
	assert.Equal(t, resp1.RowsAffected, resp2.RowsAffected)
}
