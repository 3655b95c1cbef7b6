// Package core provides the foundational domain types and interfaces shared by
// the eagerctx packages. It defines:
//
//   - Execution modes (eager dispatch vs. deferred graph building)
//   - Execution concurrency modes (SYNC / ASYNC dispatch)
//   - Device placement policies
//   - The Execution Engine boundary (Backend / Handle) the runtime context
//     drives without knowing how operations are actually executed
//   - The error taxonomy surfaced by the runtime context
//
// The package intentionally keeps implementation concerns (lazy
// initialization, thread-scoped state, caches, config derivation) out of
// scope, exposing small interfaces so engines can be swapped without
// introducing dependency cycles.
package core
