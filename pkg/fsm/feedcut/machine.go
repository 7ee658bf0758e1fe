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

package feedcut

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	internal_fsm "github.com/united-manufacturing-hub/cell-core/internal/fsm"
	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/faults"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
)

// NewSequencer creates the feed-and-cut sequencer with the standard
// transitions.
func NewSequencer(cfg config.CellConfig, in Inputs, out Outputs, hs handshake.FeedSide) *Sequencer {
	baseCfg := internal_fsm.BaseSequencerConfig{
		ID:         "feedcut",
		ResetState: StateReset,
		FaultState: StateFault,
		Transitions: []fsm.EventDesc{
			{Name: EventStart, Src: []string{StateReset}, Dst: StateApproach},
			{Name: EventAtEntry, Src: []string{StateApproach}, Dst: StateMeterFeed},
			{Name: EventAtLength, Src: []string{StateMeterFeed}, Dst: StateCutDown},
			{Name: EventBladeDown, Src: []string{StateCutDown}, Dst: StateCutUp},
			{Name: EventBladeUp, Src: []string{StateCutUp}, Dst: StateReleaseToPick},
			{Name: EventRefeed, Src: []string{StateReleaseToPick}, Dst: StateMeterFeed},
			{Name: EventCycleComplete, Src: []string{StateReleaseToPick}, Dst: StateHold},
			{Name: internal_fsm.EventFault, Src: allStates, Dst: StateFault},
			{Name: internal_fsm.EventReset, Src: allStates, Dst: StateReset},
		},
		WatchdogCeilings: map[string]float64{
			StateApproach: cfg.Watchdogs.Approach,
			// The meter_feed ceiling is sized dynamically on entry.
			StateCutDown: cfg.Watchdogs.CutDown,
			StateCutUp:   cfg.Watchdogs.CutUp,
		},
		StateIndex:       stateIndex,
		MetricsComponent: metrics.ComponentFeedCutSequencer,
	}

	s := &Sequencer{
		cfg: cfg,
		in:  in,
		out: out,
		hs:  hs,
	}
	s.base = internal_fsm.NewBaseSequencer(baseCfg, logger.For(logger.ComponentFeedCut))
	s.registerCallbacks()

	return s
}

// registerCallbacks wires the state entry actions.
func (s *Sequencer) registerCallbacks() {
	s.base.AddCallback("enter_"+StateReset, func(ctx context.Context, e *fsm.Event) {
		s.resetInternal()
	})

	s.base.AddCallback("enter_"+StateApproach, func(ctx context.Context, e *fsm.Event) {
		s.cycleID = uuid.NewString()
		s.base.Logger().Infof("Cycle %s started", s.cycleID)
		s.settle.Reset()
		s.out.BladeJogUp.Set(false)
		s.out.BladeJogDown.Set(false)
		s.out.OutfeedEnable.Set(false)
		s.out.OutfeedSpeed.Set(0)
		s.out.InfeedSpeed.Set(s.cfg.InfeedSpeed)
		s.out.InfeedEnable.Set(true)
	})

	s.base.AddCallback("enter_"+StateMeterFeed, func(ctx context.Context, e *fsm.Event) {
		// Snapshot the entry position and size the metering ceiling from
		// measured throughput rather than a static configuration value.
		s.entryPos = s.in.InfeedPos.Value()
		if s.measuredSpeed <= 0 {
			s.measuredSpeed = s.cfg.InfeedSpeed
		}
		ceiling := math.Max(0.2, s.cfg.MeterScale*s.cfg.CutLength/math.Max(1, s.measuredSpeed))
		s.base.Watchdog().SetCeiling(StateMeterFeed, ceiling)

		// Feed-interlock latch: safety posture at the start of metering.
		s.feedInterlock = s.in.RunEnable.Value() && s.in.GuardOK.Value() && s.in.BladeUp.Value()
		s.atLength = false
		s.cutPermission = false

		s.clearTransferFlags()
		s.out.OutfeedEnable.Set(false)
		s.out.OutfeedSpeed.Set(0)
		s.out.InfeedSpeed.Set(s.cfg.InfeedSpeed)
		s.out.InfeedEnable.Set(true)
	})

	s.base.AddCallback("enter_"+StateCutDown, func(ctx context.Context, e *fsm.Event) {
		s.out.InfeedEnable.Set(false)
		s.out.InfeedSpeed.Set(0)
		s.out.BladeJogUp.Set(false)
		s.out.BladeJogDown.Set(true)
	})

	s.base.AddCallback("enter_"+StateCutUp, func(ctx context.Context, e *fsm.Event) {
		s.out.BladeJogDown.Set(false)
		s.out.BladeJogUp.Set(true)
	})

	s.base.AddCallback("enter_"+StateReleaseToPick, func(ctx context.Context, e *fsm.Event) {
		s.cuts++
		metrics.IncCutCount(s.base.ID())
		s.out.BladeJogUp.Set(false)
		s.out.BladeJogDown.Set(false)
		s.out.OutfeedSpeed.Set(s.cfg.OutfeedSpeed)
		s.out.OutfeedEnable.Set(true)

		s.exitCleared = false
		s.refeedArmed = false
		s.exitClearTimer.Reset()
		s.exitClearTimer.Start()
		s.timeToPickTimer.Reset()
		s.timeToPickTimer.Start()
	})

	s.base.AddCallback("enter_"+StateHold, func(ctx context.Context, e *fsm.Event) {
		s.stopAllMotion()
		s.base.Logger().Infof("Cycle %s complete after %d cuts", s.cycleID, s.cuts)
	})

	s.base.AddCallback("enter_"+StateFault, func(ctx context.Context, e *fsm.Event) {
		s.stopAllMotion()
		s.out.Generate.Set(false)
	})
}

// stopAllMotion clears every motion output. Safe to call from any state.
func (s *Sequencer) stopAllMotion() {
	s.out.InfeedEnable.Set(false)
	s.out.InfeedSpeed.Set(0)
	s.out.OutfeedEnable.Set(false)
	s.out.OutfeedSpeed.Set(0)
	s.out.BladeJogUp.Set(false)
	s.out.BladeJogDown.Set(false)
}

// clearTransferFlags resets the per-piece handshake bookkeeping.
func (s *Sequencer) clearTransferFlags() {
	s.startPulsed = false
	s.awaitingDone = false
	s.transferDone = false
	s.exitCleared = false
	s.refeedArmed = false
	s.exitClearTimer.Reset()
	s.timeToPickTimer.Reset()
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
// and the retained fault reason and forces the sequencer to its reset state.
func (s *Sequencer) Reset(ctx context.Context) {
	s.base.ClearEStop()
	s.base.ClearFault()
	if !s.base.Is(StateReset) {
		if err := s.base.Fire(ctx, internal_fsm.EventReset); err != nil {
			s.base.ForceState(StateReset)
		}
	}
	// Re-run the reset entry actions even when already parked in reset, so
	// outputs and latches are in their defined cleared state.
	s.resetInternal()
}

// Status returns the feed-side slice of the system snapshot.
func (s *Sequencer) Status() Status {
	st := Status{
		State:         s.base.State(),
		CycleID:       s.cycleID,
		EStopLatched:  s.base.EStopLatched(),
		FeedInterlock: s.feedInterlock,
		CutPermission: s.cutPermission,
		Cuts:          s.cuts,
		Pieces:        s.pieces,
	}
	if reason := s.base.FaultReason(); reason != nil {
		st.FaultReason = reason.Error()
		st.FaultKind = string(faults.KindOf(reason))
	}
	return st
}
