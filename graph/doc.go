// Package graph implements a stateful workflow engine: named node
// functions wired by static and conditional edges, executed one step at
// a time over a shared ordered state.
//
// A graph is assembled with a Builder, validated and frozen by Compile,
// and executed with Invoke. Each step clones the current state, invokes
// one node, merges the returned update (last write wins unless a per-key
// Reducer is registered), resolves the successor through the edge table,
// and persists a checkpoint when a store is configured. Runs can pause
// on an interrupt marker for human approval and resume after a crash
// from their latest checkpoint without re-invoking completed nodes.
package graph
