// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/modreload/pkg/errutil"
)

// Action is a lifecycle operation.
type Action string

// Lifecycle actions.
const (
	ActionLoad   Action = "load"
	ActionUnload Action = "unload"
	ActionReload Action = "reload"
)

// Actions lists every action in display order.
var Actions = []Action{ActionLoad, ActionUnload, ActionReload}

// ParseAction parses an action keyword case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionLoad, ActionUnload, ActionReload:
		return a, nil
	default:
		return "", ErrUnknownAction(s)
	}
}

// Result is the outcome for one requested plugin name.
type Result struct {
	Name    string
	Action  Action
	Outcome Outcome
	// Err is Outcome.Err, classified. A degraded result keeps the
	// ACCESS_DENIED cause here even though OK reports true.
	Err error
	// Message is a short diagnostic for Err, empty on success.
	Message string
}

// OK reports whether the operation succeeded, possibly degraded.
func (r Result) OK() bool { return r.Err == nil || r.Outcome.Status == StatusDegraded }

// Recorder receives every result the facade produces.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Facade is the entry point command surfaces call.
type Facade struct {
	manager  *Manager
	recorder Recorder
	logger   *slog.Logger
}

// FacadeOption configures a Facade.
type FacadeOption func(*Facade)

// WithRecorder sets a recorder for results. Recorder failures are logged.
func WithRecorder(r Recorder) FacadeOption {
	return func(f *Facade) {
		f.recorder = r
	}
}

// WithFacadeLogger sets the facade's logger.
func WithFacadeLogger(l *slog.Logger) FacadeOption {
	return func(f *Facade) {
		f.logger = l
	}
}

// NewFacade creates a facade over m.
func NewFacade(m *Manager, opts ...FacadeOption) *Facade {
	f := &Facade{manager: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Execute runs action against every name in order and returns one result
// per name. Failures stay with their name and never stop the batch. The
// returned error is non-nil only for an empty name list
// (CodeNoTargetsSpecified) or an unrecognised action (CodeUnknownAction).
func (f *Facade) Execute(ctx context.Context, action string, names []string) ([]Result, error) {
	a, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoTargetsSpecified(string(a))
	}

	results := make([]Result, 0, len(names))
	for _, name := range names {
		r := f.executeOne(ctx, a, name)
		if f.recorder != nil {
			if err := f.recorder.Record(ctx, r); err != nil {
				errutil.LogError(f.logger, "failed to record lifecycle result", err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (f *Facade) executeOne(ctx context.Context, a Action, name string) (r Result) {
	r = Result{Name: name, Action: a}
	defer func() {
		if p := recover(); p != nil {
			err := ErrUnexpectedFailure(name, oops.Errorf("panic: %v", p))
			r.Outcome = Outcome{Name: name, Action: a, Status: StatusFailed, State: StateFailed, Err: err}
			r.Err = err
			r.Message = Diagnostic(err)
			f.logger.ErrorContext(ctx, "plugin lifecycle operation panicked",
				"plugin", name, "action", string(a), "panic", fmt.Sprint(p))
		}
	}()

	switch a {
	case ActionLoad:
		r.Outcome = f.manager.Load(ctx, name)
	case ActionUnload:
		r.Outcome = f.manager.Unload(ctx, name)
	case ActionReload:
		r.Outcome = f.manager.Reload(ctx, name)
	}
	r.Err = classify(name, r.Outcome.Err)
	r.Message = Diagnostic(r.Err)
	return r
}
