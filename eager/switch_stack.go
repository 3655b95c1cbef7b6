package eager

import (
	"fmt"

	"github.com/hupe1980/eagerctx/core"
)

// EnterFunc re-enters a recorded scope and returns the function that exits
// it again.
type EnterFunc func() (exit func() error)

// SwitchRecord marks entry into a nested execution scope.
type SwitchRecord struct {
	// IsBuildingFunction is true for scopes that build a function graph.
	IsBuildingFunction bool

	// Enter re-enters the scope this record describes.
	Enter EnterFunc

	// DeviceStack is an optional snapshot of the device placement stack
	// captured by graph-building scopes.
	DeviceStack any
}

// SwitchStack is the per-thread stack of scope switch records. Graph-building
// collaborators push their own records; this package only guarantees the
// push/pop protocol.
//
// A SwitchStack is owned by one thread and is not safe for concurrent use.
type SwitchStack struct {
	records []SwitchRecord
	base    int
}

// NewSwitchStack returns a stack seeded with one eager record when eager is
// true. The seed cannot be popped.
func NewSwitchStack(eager bool, enterEager EnterFunc) *SwitchStack {
	s := &SwitchStack{}
	if eager {
		s.records = append(s.records, SwitchRecord{Enter: enterEager})
		s.base = 1
	}
	return s
}

// Push records entry into a scope.
func (s *SwitchStack) Push(isBuildingFunction bool, enter EnterFunc, deviceStack any) {
	s.records = append(s.records, SwitchRecord{
		IsBuildingFunction: isBuildingFunction,
		Enter:              enter,
		DeviceStack:        deviceStack,
	})
}

// Pop removes the innermost record. Popping without a matching push fails
// with core.ErrUnbalancedScope.
func (s *SwitchStack) Pop() error {
	if len(s.records) <= s.base {
		return fmt.Errorf("pop of scope switch stack without matching push: %w", core.ErrUnbalancedScope)
	}
	s.records[len(s.records)-1] = SwitchRecord{}
	s.records = s.records[:len(s.records)-1]
	return nil
}

// Truncate pops records until at most n remain. The seed is never removed.
func (s *SwitchStack) Truncate(n int) {
	n = max(n, s.base)
	for len(s.records) > n {
		s.records[len(s.records)-1] = SwitchRecord{}
		s.records = s.records[:len(s.records)-1]
	}
}

// Len returns the number of records, seed included.
func (s *SwitchStack) Len() int { return len(s.records) }

// Top returns the innermost record.
func (s *SwitchStack) Top() (SwitchRecord, bool) {
	if len(s.records) == 0 {
		return SwitchRecord{}, false
	}
	return s.records[len(s.records)-1], true
}

// Records returns a copy of the stack, outermost first.
func (s *SwitchStack) Records() []SwitchRecord {
	out := make([]SwitchRecord, len(s.records))
	copy(out, s.records)
	return out
}

// InnermostIsBuildingFunction reports whether the innermost scope builds a
// function. An empty stack reports false.
func (s *SwitchStack) InnermostIsBuildingFunction() bool {
	top, ok := s.Top()
	return ok && top.IsBuildingFunction
}
