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

package pickplace

import (
	"context"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	internal_fsm "github.com/united-manufacturing-hub/cell-core/internal/fsm"
	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/faults"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
)

// NewSequencer creates the pick-and-place sequencer with the standard
// transitions.
func NewSequencer(cfg config.PickPlaceConfig, in Inputs, out Outputs, hs handshake.PickSide) *Sequencer {
	baseCfg := internal_fsm.BaseSequencerConfig{
		ID:         "pickplace",
		ResetState: StateReset,
		FaultState: StateFault,
		Transitions: []fsm.EventDesc{
			{Name: EventArm, Src: []string{StateReset}, Dst: StateIdle},
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateApproachPick},
			{Name: EventAtPick, Src: []string{StateApproachPick}, Dst: StatePickDown},
			{Name: EventAcquired, Src: []string{StatePickDown}, Dst: StateLiftClear},
			{Name: EventRetryAcquire, Src: []string{StatePickDown}, Dst: StateApproachPick},
			{Name: EventLifted, Src: []string{StateLiftClear}, Dst: StateTransitToPlace},
			{Name: EventAtPlace, Src: []string{StateTransitToPlace}, Dst: StatePlaceDown},
			{Name: EventPlaced, Src: []string{StatePlaceDown}, Dst: StateRelease},
			{Name: EventReleased, Src: []string{StateRelease}, Dst: StateRetractClear},
			{Name: EventRetracted, Src: []string{StateRetractClear}, Dst: StateDone},
			{Name: EventCycleDone, Src: []string{StateDone}, Dst: StateIdle},
			{Name: internal_fsm.EventFault, Src: allStates, Dst: StateFault},
			{Name: internal_fsm.EventReset, Src: allStates, Dst: StateReset},
		},
		WatchdogCeilings: map[string]float64{
			StateApproachPick:   cfg.Watchdogs.Motion,
			StatePickDown:       cfg.Watchdogs.Acquire,
			StateLiftClear:      cfg.Watchdogs.Motion,
			StateTransitToPlace: cfg.Watchdogs.Motion,
			StatePlaceDown:      cfg.Watchdogs.Motion,
			StateRelease:        cfg.Watchdogs.Release,
			StateRetractClear:   cfg.Watchdogs.Motion,
		},
		StateIndex:       stateIndex,
		MetricsComponent: metrics.ComponentPickPlaceSequencer,
	}

	s := &Sequencer{
		cfg: cfg,
		in:  in,
		out: out,
		hs:  hs,
	}
	s.base = internal_fsm.NewBaseSequencer(baseCfg, logger.For(logger.ComponentPickPlace))
	s.registerCallbacks()

	return s
}

// registerCallbacks wires the state entry actions. Each motion state
// commands its pose on entry; the per-tick logic only watches feedback.
func (s *Sequencer) registerCallbacks() {
	// Only the explicit reset event reaches this callback; the
	// emergency-stop abort bypasses the transition table and applies the
	// gripper-hold policy itself.
	s.base.AddCallback("enter_"+StateReset, func(ctx context.Context, e *fsm.Event) {
		s.resetInternal(true)
	})

	s.base.AddCallback("enter_"+StateIdle, func(ctx context.Context, e *fsm.Event) {
		s.retriesUsed = 0
		s.retrying = false
		s.moveAxes = nil
	})

	s.base.AddCallback("enter_"+StateApproachPick, func(ctx context.Context, e *fsm.Event) {
		if s.retrying {
			// Acquire retry: only the vertical axis re-approaches.
			s.commandPose(config.PosePickApproach, s.verticalOnly())
			return
		}
		s.cycleID = uuid.NewString()
		s.hs.SetBusy(true)
		s.base.Logger().Infof("Transfer %s started", s.cycleID)
		s.commandPose(config.PosePickApproach, s.cfg.Axes)
	})

	s.base.AddCallback("enter_"+StatePickDown, func(ctx context.Context, e *fsm.Event) {
		s.retrying = false
		s.commandPose(config.PosePickDown, s.verticalOnly())
		s.out.GripperEnable.Set(true)
	})

	s.base.AddCallback("enter_"+StateLiftClear, func(ctx context.Context, e *fsm.Event) {
		s.commandPose(config.PoseLiftClear, s.verticalOnly())
	})

	s.base.AddCallback("enter_"+StateTransitToPlace, func(ctx context.Context, e *fsm.Event) {
		s.commandPose(config.PoseTransit, s.lateralAxes())
	})

	s.base.AddCallback("enter_"+StatePlaceDown, func(ctx context.Context, e *fsm.Event) {
		s.commandPose(config.PosePlaceDown, s.verticalOnly())
	})

	s.base.AddCallback("enter_"+StateRelease, func(ctx context.Context, e *fsm.Event) {
		s.moveAxes = nil
		s.out.GripperEnable.Set(false)
	})

	s.base.AddCallback("enter_"+StateRetractClear, func(ctx context.Context, e *fsm.Event) {
		s.commandPose(config.PoseRetractClear, s.verticalOnly())
	})

	s.base.AddCallback("enter_"+StateDone, func(ctx context.Context, e *fsm.Event) {
		s.moveAxes = nil
		s.transfers++
		s.hs.PulseDone()
		s.hs.SetBusy(false)
		s.base.Logger().Infof("Transfer %s complete", s.cycleID)
	})

	s.base.AddCallback("enter_"+StateFault, func(ctx context.Context, e *fsm.Event) {
		s.clearMoveOutputs()
		if !s.cfg.HoldGripperOnEstop {
			s.out.GripperEnable.Set(false)
		}
	})
}

// commandPose writes destination, speed and a one-tick start pulse for the
// given axis subset of the named pose, and records the subset as the
// in-flight move.
func (s *Sequencer) commandPose(name string, axes []string) {
	pose := s.cfg.Poses[name]
	for _, axis := range axes {
		target, ok := pose[axis]
		if !ok {
			continue
		}
		s.out.AxisDest[axis].Set(float64(target.Index))
		s.out.AxisSpeed[axis].Set(target.Speed)
		s.out.AxisStart[axis].Set(true)
	}
	s.moveAxes = axes
}

// atPose reports whether every axis of the in-flight move is at position.
func (s *Sequencer) atPose() bool {
	for _, axis := range s.moveAxes {
		if !s.in.AxisAtPos[axis].Value() {
			return false
		}
	}
	return true
}

// verticalOnly is the axis subset for vertical approach and retreat legs.
func (s *Sequencer) verticalOnly() []string {
	return []string{AxisVertical}
}

// lateralAxes is every configured axis except the vertical one.
func (s *Sequencer) lateralAxes() []string {
	axes := make([]string, 0, len(s.cfg.Axes))
	for _, axis := range s.cfg.Axes {
		if axis != AxisVertical {
			axes = append(axes, axis)
		}
	}
	return axes
}

// clearMoveOutputs drops every axis start pulse.
func (s *Sequencer) clearMoveOutputs() {
	for _, axis := range s.cfg.Axes {
		s.out.AxisStart[axis].Set(false)
	}
	s.moveAxes = nil
}

// State returns the current state.
func (s *Sequencer) State() string {
	return s.base.State()
}

// FaultReason returns the retained fault reason, or nil.
func (s *Sequencer) FaultReason() error {
	return s.base.FaultReason()
}

// EStopLatched reports the sticky emergency-stop latch.
func (s *Sequencer) EStopLatched() bool {
	return s.base.EStopLatched()
}

// Reset is the explicit external reset: it clears the emergency-stop latch
// and the retained fault reason, releases the gripper and forces the
// sequencer to its reset state.
func (s *Sequencer) Reset(ctx context.Context) {
	s.base.ClearEStop()
	s.base.ClearFault()
	if !s.base.Is(StateReset) {
		if err := s.base.Fire(ctx, internal_fsm.EventReset); err != nil {
			s.base.ForceState(StateReset)
		}
	}
	s.resetInternal(true)
}

// resetInternal puts outputs and handshake bookkeeping into the defined
// reset posture. releaseGripper is false only on an emergency-stop abort
// with the hold-gripper policy enabled.
func (s *Sequencer) resetInternal(releaseGripper bool) {
	s.clearMoveOutputs()
	if releaseGripper {
		s.out.GripperEnable.Set(false)
	}
	s.pendingStart = false
	s.retriesUsed = 0
	s.retrying = false
	s.hs.SetBusy(false)
	s.hs.ClearDone()
}

// Status returns the pick-side slice of the system snapshot.
func (s *Sequencer) Status() Status {
	st := Status{
		State:        s.base.State(),
		CycleID:      s.cycleID,
		EStopLatched: s.base.EStopLatched(),
		Busy:         !s.base.Is(StateIdle) && !s.base.Is(StateReset),
		RetriesUsed:  s.retriesUsed,
		Transfers:    s.transfers,
		GripperHeld:  s.out.GripperEnable.Get(),
	}
	if reason := s.base.FaultReason(); reason != nil {
		st.FaultReason = reason.Error()
		st.FaultKind = string(faults.KindOf(reason))
	}
	return st
}
