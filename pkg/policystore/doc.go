// Package policystore implements the versioned routing Policy Store.
//
// Version installation is modeled as a Raft log command applied to a
// PolicyFSM: propose/rollback become Command{Op, Data} entries, Apply
// enforces the version+checksum invariants atomically against the FSM's
// single in-memory+durable copy of "current", and the durable side is a
// bbolt bucket-per-version history store so every prior policy stays
// available for AtVersion/rollback. A single-voter Raft cluster is the
// default deployment shape (one edge routing instance); the same FSM
// supports additional voters without any change to the Propose/RollbackTo
// call sites.
package policystore
