/*
Package checkpoint provides durable run-state persistence for the graph
executor.

A Checkpoint is an immutable snapshot of a run's state at a step index,
addressed by (run_id, step_index). Stores are append-only: re-saving an
existing pair fails with CHECKPOINT_CONFLICT on every backend. The
executor writes a checkpoint after each completed step and reports the
step done only once the write is durable, so a crash between steps loses
at most the in-flight node's effect.

# Backends

  - MemoryStore: in-process, for tests and ephemeral runs
  - FileStore:   one fsynced JSON file per step, atomic rename
  - RedisStore:  string payloads plus a sorted-set step index per run
  - GormStore:   SQL table with a composite unique (run_id, step) index

All backends implement Store; pick one and pass it to the executor via
graph.WithCheckpointStore.
*/
package checkpoint
