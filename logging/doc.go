// Package logging defines the Logger the runtime context writes to and the
// slog-backed implementations of it.
//
// Components accept any Logger through their options and default to
// NoOpLogger. RuntimeLogger additionally carries a component name, a thread
// id and fixed attributes, and offers helpers for the events the runtime
// context reports: handle initialization, device placement and scope
// nesting violations. When a RuntimeLogger is injected those helpers are
// used automatically.
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	c := eager.New(eager.WithLogger(logger))
package logging
