// Package backend provides an in-memory Execution Engine implementing the
// core.Backend and core.Handle boundary.
//
// InMemory is the default backend of the runtime context. It enumerates a
// configurable device list, keeps per-thread async flags and placement
// policies, registers functions, accumulates run metadata as protobuf
// structs and runs asynchronously dispatched operations on one ordered
// worker per handle, deferring their first error until AsyncWait.
package backend
