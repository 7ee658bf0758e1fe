// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fsm

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/cell-core/pkg/faults"
	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
	"github.com/united-manufacturing-hub/cell-core/pkg/watchdog"
)

// Events shared by both sequencers.
const (
	// EventFault moves any state into the fault state.
	EventFault = "fault"
	// EventReset is the explicit external reset; the only way out of fault
	// and the only event that clears the emergency-stop latch.
	EventReset = "reset"
)

// BaseSequencer implements the shared logic for both cell sequencers.
// Concrete sequencers (feed-and-cut, pick-and-place) embed or wrap this to
// handle their domain logic: the looplab state machine, the per-state
// watchdog, the latched emergency stop and the retained fault reason.
type BaseSequencer struct {
	cfg BaseSequencerConfig

	// machine is the finite state machine that manages sequencer state
	machine *fsm.FSM

	// Registered "enter_state" callbacks, purely for logging or minor side-effects.
	callbacks map[string]fsm.Callback

	// wd tracks elapsed time in the current state against per-state ceilings
	wd *watchdog.Watchdog

	// faultReason is retained until the next reset
	faultReason error

	// estopLatched is the sticky emergency-stop latch
	estopLatched bool

	// logger is the logger for the sequencer
	logger *zap.SugaredLogger
}

// BaseSequencerConfig holds parameters for setting up the base sequencer.
type BaseSequencerConfig struct {
	ID string

	// ResetState is the state entered on construction, on explicit reset
	// and on emergency stop.
	ResetState string

	// FaultState is the terminal within-cycle state entered by Fault.
	FaultState string

	// Transitions are the sequencer's transition table. The table must
	// contain the EventReset and EventFault transitions.
	Transitions []fsm.EventDesc

	// WatchdogCeilings maps states to their elapsed-time ceilings in
	// seconds. States without an entry are unguarded.
	WatchdogCeilings map[string]float64

	// StateIndex maps states to the numeric value reported on the state
	// gauge.
	StateIndex map[string]int

	// MetricsComponent is the component label for metrics.
	MetricsComponent string
}

// NewBaseSequencer sets up a sequencer with the supplied transition table.
func NewBaseSequencer(cfg BaseSequencerConfig, logger *zap.SugaredLogger) *BaseSequencer {
	base := &BaseSequencer{
		cfg:       cfg,
		callbacks: make(map[string]fsm.Callback),
		wd:        watchdog.New(cfg.WatchdogCeilings),
		logger:    logger,
	}

	base.machine = fsm.NewFSM(
		cfg.ResetState,
		fsm.Events(cfg.Transitions),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				base.onEnterState(e)
				if cb, ok := base.callbacks["enter_"+e.Dst]; ok {
					cb(ctx, e)
				}
			},
		},
	)

	metrics.InitErrorCounter(cfg.MetricsComponent, cfg.ID)
	metrics.SetSequencerState(cfg.MetricsComponent, cfg.ID, cfg.StateIndex[cfg.ResetState])

	return base
}

// onEnterState runs on every transition: the watchdog resets to zero on
// state entry, and the state gauge follows.
func (s *BaseSequencer) onEnterState(e *fsm.Event) {
	s.wd.Reset()
	metrics.SetSequencerState(s.cfg.MetricsComponent, s.cfg.ID, s.cfg.StateIndex[e.Dst])
	s.logger.Debugf("Sequencer %s: %s -> %s (%s)", s.cfg.ID, e.Src, e.Dst, e.Event)
}

// AddCallback adds a callback for a given event name, e.g. "enter_"+state.
func (s *BaseSequencer) AddCallback(eventName string, callback fsm.Callback) {
	s.callbacks[eventName] = callback
}

// State returns the current state.
func (s *BaseSequencer) State() string {
	return s.machine.Current()
}

// Is reports whether the sequencer is in the given state.
func (s *BaseSequencer) Is(state string) bool {
	return s.machine.Current() == state
}

// Fire sends an event to the state machine. Transitions are synchronous and
// happen at most once per tick; the tick functions enforce that by firing at
// most one event per call.
func (s *BaseSequencer) Fire(ctx context.Context, event string) error {
	if err := s.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("sequencer %s: event %s from %s: %w", s.cfg.ID, event, s.machine.Current(), err)
	}
	return nil
}

// ForceState moves the sequencer to state without consulting the transition
// table. Used for the emergency-stop abort, which is unconditional and
// independent of the current state, and by tests.
func (s *BaseSequencer) ForceState(state string) {
	s.machine.SetState(state)
	s.wd.Reset()
	metrics.SetSequencerState(s.cfg.MetricsComponent, s.cfg.ID, s.cfg.StateIndex[state])
}

// Watchdog returns the per-state watchdog.
func (s *BaseSequencer) Watchdog() *watchdog.Watchdog {
	return s.wd
}

// AdvanceWatchdog adds one tick period to the elapsed-in-state time and
// returns a timeout fault if the current state's ceiling is now exceeded.
// The caller decides whether a retry policy intercepts the fault.
func (s *BaseSequencer) AdvanceWatchdog(dt float64) error {
	s.wd.Advance(dt)
	state := s.machine.Current()
	if s.wd.Exceeded(state) {
		return faults.Timeoutf("state %s exceeded its %.2fs watchdog ceiling after %.2fs",
			state, s.wd.Ceiling(state), s.wd.Elapsed())
	}
	return nil
}

// Fault records reason as the retained diagnostic and moves the sequencer to
// its fault state. The caller clears unsafe outputs before calling.
func (s *BaseSequencer) Fault(ctx context.Context, reason error) {
	s.faultReason = reason
	metrics.IncFaultCount(s.cfg.MetricsComponent, s.cfg.ID, string(faults.KindOf(reason)))
	s.logger.Errorf("Sequencer %s faulted in state %s: %v", s.cfg.ID, s.machine.Current(), reason)

	if err := s.Fire(ctx, EventFault); err != nil {
		// The table allows fault from every state; a failure here means the
		// table is wrong, which is unrecoverable. Force the state so the
		// actuators stay safe anyway.
		s.logger.Errorf("Sequencer %s: fault transition rejected: %v", s.cfg.ID, err)
		s.ForceState(s.cfg.FaultState)
	}
}

// FaultReason returns the retained fault reason, or nil.
func (s *BaseSequencer) FaultReason() error {
	return s.faultReason
}

// ClearFault drops the retained fault reason. Called on explicit reset.
func (s *BaseSequencer) ClearFault() {
	s.faultReason = nil
}

// LatchEStop sets the sticky emergency-stop latch and records the reason.
func (s *BaseSequencer) LatchEStop() {
	if !s.estopLatched {
		s.faultReason = faults.EmergencyStop()
		metrics.IncFaultCount(s.cfg.MetricsComponent, s.cfg.ID, string(faults.KindEmergencyStop))
		s.logger.Warnf("Sequencer %s: emergency stop latched", s.cfg.ID)
	}
	s.estopLatched = true
}

// EStopLatched reports the sticky emergency-stop latch. It survives signal
// recovery; only ClearEStop (explicit reset) clears it.
func (s *BaseSequencer) EStopLatched() bool {
	return s.estopLatched
}

// ClearEStop clears the emergency-stop latch.
func (s *BaseSequencer) ClearEStop() {
	s.estopLatched = false
}

// ID returns the sequencer ID.
func (s *BaseSequencer) ID() string {
	return s.cfg.ID
}

// Logger returns the sequencer's logger.
func (s *BaseSequencer) Logger() *zap.SugaredLogger {
	return s.logger
}
