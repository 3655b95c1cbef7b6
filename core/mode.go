package core

import (
	"fmt"
	"strings"
)

// Mode selects how operations issued by a thread are handled.
type Mode int

const (
	// ModeGraph records operations for later, deferred execution. Graph
	// construction itself belongs to an external collaborator.
	ModeGraph Mode = iota
	// ModeEager runs operations immediately on dispatch.
	ModeEager
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeGraph:
		return "GRAPH"
	case ModeEager:
		return "EAGER"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool { return m == ModeGraph || m == ModeEager }

// ExecutionMode is the execution concurrency mode of dispatched operations.
type ExecutionMode int

const (
	// Sync completes each dispatched operation before the call returns.
	Sync ExecutionMode = iota
	// Async may return before the operation completes. Errors surface later
	// and must be drained with AsyncWait or discarded with AsyncClearError.
	Async
)

// String returns the string representation of the execution mode.
func (m ExecutionMode) String() string {
	switch m {
	case Sync:
		return "SYNC"
	case Async:
		return "ASYNC"
	default:
		return fmt.Sprintf("ExecutionMode(%d)", int(m))
	}
}

// Validate returns an ErrInvalidArgument error for undeclared values.
func (m ExecutionMode) Validate() error {
	if m != Sync && m != Async {
		return fmt.Errorf("%w: execution mode should be SYNC or ASYNC, got %d", ErrInvalidArgument, int(m))
	}
	return nil
}

// ParseExecutionMode parses "sync" or "async" (case-insensitive).
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(s) {
	case "sync":
		return Sync, nil
	case "async":
		return Async, nil
	}
	return Sync, fmt.Errorf("%w: unknown execution mode %q", ErrInvalidArgument, s)
}

// DevicePlacementPolicy governs what happens when an operation's inputs live
// on a different device than the operation itself.
type DevicePlacementPolicy int

const (
	// PlacementExplicit fails when placement is not correct.
	PlacementExplicit DevicePlacementPolicy = iota
	// PlacementWarn copies misplaced inputs and emits a warning.
	PlacementWarn
	// PlacementSilent copies misplaced inputs silently.
	PlacementSilent
	// PlacementSilentForInt32 silently copies int32 inputs and fails on
	// all others.
	PlacementSilentForInt32
)

var placementNames = map[DevicePlacementPolicy]string{
	PlacementExplicit:       "EXPLICIT",
	PlacementWarn:           "WARN",
	PlacementSilent:         "SILENT",
	PlacementSilentForInt32: "SILENT_FOR_INT32",
}

// String returns the string representation of the policy.
func (p DevicePlacementPolicy) String() string {
	if s, ok := placementNames[p]; ok {
		return s
	}
	return fmt.Sprintf("DevicePlacementPolicy(%d)", int(p))
}

// Validate returns an ErrInvalidArgument error for undeclared values.
func (p DevicePlacementPolicy) Validate() error {
	if _, ok := placementNames[p]; !ok {
		return fmt.Errorf("%w: unknown device placement policy %d", ErrInvalidArgument, int(p))
	}
	return nil
}

// ParseDevicePlacementPolicy parses a policy name such as "silent" or
// "SILENT_FOR_INT32".
func ParseDevicePlacementPolicy(s string) (DevicePlacementPolicy, error) {
	for p, name := range placementNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return PlacementSilent, fmt.Errorf("%w: unknown device placement policy %q", ErrInvalidArgument, s)
}
