package core

import "errors"

var (
	// ErrInvalidArgument is returned for malformed device names, undeclared
	// enum values and missing definitions where one is required.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyInitialized is returned when a startup-only knob is changed
	// after the engine handle has been realized.
	ErrAlreadyInitialized = errors.New("runtime context already initialized")

	// ErrConflictingServerConfig is returned at initialization when both a
	// remote server definition and a collective-ops definition are staged.
	ErrConflictingServerConfig = errors.New("cannot enable remote execution as well as collective ops")

	// ErrUnbalancedScope is returned when a scope exit observes state it did
	// not install, or when a scope switch is popped without a matching push.
	ErrUnbalancedScope = errors.New("scopes are not properly nested")
)
