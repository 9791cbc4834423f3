/*
Package types provides the shared type definitions for the stategraph engine.

types is the lowest-level public package; it depends on nothing else in the
module and supplies the unified error contract used by graph, checkpoint, and
config. Keeping the taxonomy here avoids circular dependencies between the
executor and the storage backends.

# Error taxonomy

  - DUPLICATE_NODE, UNKNOWN_NODE, INVALID_GRAPH: construction errors,
    raised immediately at registration or compile time
  - INVALID_ROUTE, NODE_EXECUTION, MAX_STEPS_EXCEEDED, APPROVAL_DENIED,
    CANCELLED, RUN_NOT_FOUND, INVALID_TRANSITION: execution errors,
    carrying run id, step index, and node name
  - NO_CHECKPOINT, CHECKPOINT_CONFLICT: checkpoint store errors

Use GetErrorCode or IsCode to branch on a code without unwrapping.
*/
package types
