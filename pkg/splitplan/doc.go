// Package splitplan implements the online shard split state machine.
//
// A SplitPlan advances through Planning -> DualWrite -> Backfill -> Tailing
// -> CutoverPending -> Completed (or RolledBack from any pre-cutover
// phase). Every phase transition is persisted to a bbolt store before work
// for that phase begins, so a crash mid-phase resumes from the last
// acknowledged cursor rather than restarting the phase. Backfill and tail
// replay run as detached goroutines, so the orchestrator's API methods
// return immediately after scheduling work, honoring a per-plan
// cancellation signal on rollback.
//
// Orchestrator also implements router.Overlay: while a plan is in flight it
// redirects the Router's primary-shard decisions so writes dual-target
// source and target, and reads stay pinned to source until cutover
// actually swaps the routing policy.
package splitplan
