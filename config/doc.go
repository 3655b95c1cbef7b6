// Package config defines the runtime configuration message and derives the
// effective configuration handed to the execution engine.
//
// A Config is the base snapshot (loaded from an HCL file, built in code, or
// empty). An Overlay holds runtime-settable deltas; Overlay.Apply layers the
// explicitly set deltas onto a copy of the base in a fixed order and never
// mutates either input, so it can be called any number of times before the
// engine is initialized.
//
// Configs travel to the engine serialized as protobuf (a structpb.Struct
// encoded deterministically); the engine boundary never sees Go types.
package config
