// Package router resolves a single SQL operation to the shard that should
// serve it. It sits between the classifier and the shard
// coordinator, and the Split Orchestrator overlays its decisions in place
// while a shard split is in flight.
package router
