// Package pipeline orchestrates the four request shapes the query engine
// serves — SELECT, MUTATION, DDL, and BATCH — wiring together the
// classifier, router, coordinator, cache store, and invalidation event
// stream.
package pipeline

import (
	"context"

	"github.com/healthfees-org/workersql-sub002/pkg/cachestore"
	"github.com/healthfees-org/workersql-sub002/pkg/config"
	"github.com/healthfees-org/workersql-sub002/pkg/coordinator"
	"github.com/healthfees-org/workersql-sub002/pkg/events"
	"github.com/healthfees-org/workersql-sub002/pkg/router"
	"github.com/healthfees-org/workersql-sub002/pkg/shardclient"
)

// Pipeline holds every dependency a request handler needs to execute a
// single SQL operation end to end.
type Pipeline struct {
	Router      *router.Router
	Coordinator *coordinator.Coordinator
	Cache       cachestore.Store
	Config      *config.Config
	Events      *events.Broker
	Clock       cachestore.Clock
}

// New constructs a Pipeline.
func New(r *router.Router, c *coordinator.Coordinator, cache cachestore.Store, cfg *config.Config, bus *events.Broker, clock cachestore.Clock) *Pipeline {
	if clock == nil {
		clock = cachestore.SystemClock{}
	}
	return &Pipeline{Router: r, Coordinator: c, Cache: cache, Config: cfg, Events: bus, Clock: clock}
}

// fetchQuery dispatches a SELECT to the given shard via the coordinator.
func (p *Pipeline) fetchQuery(ctx context.Context, tenant, shardID, sql string, params []interface{}) (*shardclient.QueryResult, error) {
	var result *shardclient.QueryResult
	err := p.Coordinator.Execute(ctx, shardID, func(ctx context.Context, client *shardclient.Client) error {
		r, err := client.Query(ctx, tenant, shardclient.QuerySpec{SQL: sql, Params: params})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
