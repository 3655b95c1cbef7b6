package eager

import (
	"errors"
	"fmt"

	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/device"
)

type placementLogger interface {
	LogPlacement(old, requested, resolved string)
}

type scopeLogger interface {
	LogScopeViolation(scope string, err error)
}

func (c *Context) logScopeViolation(scope string, err error) {
	if l, ok := c.logger.(scopeLogger); ok {
		l.LogScopeViolation(scope, err)
		return
	}
	c.logger.Error("Scope exited without proper nesting", "scope", scope, "error", err)
}

// DeviceScope is an entered device scope. Exit must be called exactly once,
// in LIFO order with respect to other scopes of the same thread.
type DeviceScope struct {
	th        *Thread
	oldName   string
	oldSpec   *device.Spec
	installed *device.Spec
	exited    bool
}

// EnterDevice resolves name against the active device and installs the
// result. An empty name resets placement to the empty spec.
func (th *Thread) EnterDevice(name string) (*DeviceScope, error) {
	p, err := th.ctx.ResolveDevice(th.deviceName, name)
	if err != nil {
		return nil, err
	}
	if l, ok := th.ctx.logger.(placementLogger); ok {
		l.LogPlacement(th.deviceName, name, p.Name)
	}
	s := &DeviceScope{
		th:        th,
		oldName:   th.deviceName,
		oldSpec:   th.deviceSpec,
		installed: p.Spec,
	}
	th.deviceName, th.deviceSpec = p.Name, p.Spec
	return s, nil
}

// Exit restores the device active before EnterDevice. If the installed spec
// is no longer the one this scope installed, nothing is restored and
// core.ErrUnbalancedScope is returned.
func (s *DeviceScope) Exit() error {
	if s.exited {
		return fmt.Errorf("device scope exited twice: %w", core.ErrUnbalancedScope)
	}
	if s.th.deviceSpec != s.installed {
		err := fmt.Errorf("exiting device scope without proper scope nesting: %w", core.ErrUnbalancedScope)
		s.th.ctx.logScopeViolation("device", err)
		return err
	}
	s.exited = true
	s.th.deviceName, s.th.deviceSpec = s.oldName, s.oldSpec
	return nil
}

// WithDevice runs fn with name as the active device and restores the
// previous device on every exit path.
func (th *Thread) WithDevice(name string, fn func() error) (err error) {
	s, err := th.EnterDevice(name)
	if err != nil {
		return err
	}
	defer func() {
		if exitErr := s.Exit(); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}()
	return fn()
}

// ModeScope is an entered mode scope.
type ModeScope struct {
	th     *Thread
	old    core.Mode
	pushed bool
	depth  int
	exited bool
}

// EnterMode switches the thread to mode. Entering eager mode pushes a
// record on the scope switch stack that Exit pops again.
func (th *Thread) EnterMode(mode core.Mode) *ModeScope {
	s := &ModeScope{th: th, old: th.mode}
	th.mode = mode
	if mode == core.ModeEager {
		th.switches.Push(false, th.enterEager, nil)
		s.pushed = true
		s.depth = th.switches.Len()
	}
	return s
}

// Exit restores the previous mode and pops the record EnterMode pushed.
// A record pushed inside the scope and never popped is reported as
// core.ErrUnbalancedScope; the stack is still unwound to its depth before
// EnterMode.
func (s *ModeScope) Exit() error {
	if s.exited {
		return fmt.Errorf("mode scope exited twice: %w", core.ErrUnbalancedScope)
	}
	s.exited = true
	s.th.mode = s.old
	if !s.pushed {
		return nil
	}
	if n := s.th.switches.Len(); n != s.depth {
		err := fmt.Errorf("scope switch stack has depth %d on mode scope exit, want %d: %w", n, s.depth, core.ErrUnbalancedScope)
		s.th.ctx.logScopeViolation("mode", err)
		// Drop the stray records together with our own so the stack is
		// back at its depth from before EnterMode.
		s.th.switches.Truncate(s.depth - 1)
		return err
	}
	return s.th.switches.Pop()
}

// WithMode runs fn in mode and restores the previous mode on every exit path.
func (th *Thread) WithMode(mode core.Mode, fn func() error) (err error) {
	s := th.EnterMode(mode)
	defer func() {
		if exitErr := s.Exit(); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}()
	return fn()
}

// EagerMode runs fn with eager execution enabled.
func (th *Thread) EagerMode(fn func() error) error {
	return th.WithMode(core.ModeEager, fn)
}

// GraphMode runs fn with eager execution disabled.
func (th *Thread) GraphMode(fn func() error) error {
	return th.WithMode(core.ModeGraph, fn)
}

// WithNameScope runs fn inside a nested name scope: name is appended to the
// active scope with a "/" separator.
func (th *Thread) WithNameScope(name string, fn func() error) error {
	old := th.scopeName
	if old != "" {
		th.scopeName = old + "/" + name
	} else {
		th.scopeName = name
	}
	defer func() { th.scopeName = old }()
	return fn()
}

// WithExecutionMode runs fn in mode and restores the previous execution mode
// on every exit path.
func (th *Thread) WithExecutionMode(mode core.ExecutionMode, fn func() error) (err error) {
	old := th.ExecutionMode()
	if err := th.SetExecutionMode(mode); err != nil {
		return err
	}
	defer func() {
		if exitErr := th.SetExecutionMode(old); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}()
	return fn()
}

// WithDevicePolicy runs fn with policy and restores the previous policy on
// every exit path.
func (th *Thread) WithDevicePolicy(policy core.DevicePlacementPolicy, fn func() error) (err error) {
	old := th.DevicePolicy()
	if err := th.SetDevicePolicy(policy); err != nil {
		return err
	}
	defer func() {
		if exitErr := th.SetDevicePolicy(old); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}()
	return fn()
}

// WithFunctionExecutorType runs fn with the executor of the thread's
// function call options set to executorType. The previous options are
// restored afterwards.
func (th *Thread) WithFunctionExecutorType(executorType string, fn func() error) error {
	current, err := th.FunctionCallOptions()
	if err != nil {
		return err
	}
	old := current.Clone()
	current.SetExecutorType(executorType)
	defer th.SetFunctionCallOptions(old)
	return fn()
}
