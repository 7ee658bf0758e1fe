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

	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
)

// Tick evaluates one control step. The sampler has already refreshed every
// input; Tick makes at most one state transition and writes the outputs for
// the current state. dt is the tick period in seconds.
func (s *Sequencer) Tick(ctx context.Context, dt float64) {
	// The done pulse raised on the previous tick has been consumed by the
	// upstream sequencer; drop it so it is exactly one tick wide. Axis
	// start pulses are one tick wide for the same reason.
	s.hs.ClearDone()
	s.clearStartPulses()

	// Emergency stop is checked before any other tick logic: loss of
	// run-enable is an immediate abort to reset, independent of state,
	// sticky until an explicit reset. The gripper hold survives the abort
	// when the hold policy is configured.
	if !s.in.RunEnable.Value() {
		if !s.base.Is(StateReset) {
			s.base.LatchEStop()
			s.abortToReset()
		}
		return
	}

	s.held = false
	stateBefore := s.base.State()

	switch stateBefore {
	case StateReset:
		s.tickReset(ctx)
	case StateIdle:
		s.tickIdle(ctx)
	case StateApproachPick:
		s.tickMotion(ctx, EventAtPick)
	case StatePickDown:
		s.tickPickDown(ctx)
	case StateLiftClear:
		s.tickMotion(ctx, EventLifted)
	case StateTransitToPlace:
		s.tickMotion(ctx, EventAtPlace)
	case StatePlaceDown:
		s.tickMotion(ctx, EventPlaced)
	case StateRelease:
		s.tickRelease(ctx)
	case StateRetractClear:
		s.tickMotion(ctx, EventRetracted)
	case StateDone:
		_ = s.base.Fire(ctx, EventCycleDone)
	case StateFault:
		// Parked; only an external reset leaves fault.
	}

	// Elapsed-in-state advances only on ticks without a transition and
	// only while not parked at a stop-held boundary.
	if s.base.State() == stateBefore && stateBefore != StateFault && !s.held {
		if err := s.base.AdvanceWatchdog(dt); err != nil {
			s.handleTimeout(ctx, err)
		}
	}
}

// tickReset arms the sequencer once run-enable is present and no
// emergency-stop latch is held.
func (s *Sequencer) tickReset(ctx context.Context) {
	if s.base.EStopLatched() {
		return
	}
	_ = s.base.Fire(ctx, EventArm)
}

// tickIdle latches an incoming start pulse and opens the cycle gate once a
// part is present at pick and the downstream area is clear.
func (s *Sequencer) tickIdle(ctx context.Context) {
	if s.hs.Start() {
		s.pendingStart = true
	}
	if !s.pendingStart {
		return
	}
	if !s.in.PartAtPick.Value() || !s.in.DownstreamClear.Value() {
		return
	}
	if s.in.Stop.Value() {
		s.held = true
		return
	}
	s.pendingStart = false
	_ = s.base.Fire(ctx, EventStart)
}

// tickMotion waits for every axis of the in-flight move to report at
// position, then crosses the boundary unless stop holds it.
func (s *Sequencer) tickMotion(ctx context.Context, event string) {
	// Feedback was sampled before the move command reached the drives on
	// the entry tick; skip the stale at-position reading.
	if s.base.Watchdog().Elapsed() <= 0 {
		return
	}
	if !s.atPose() {
		return
	}
	if s.in.Stop.Value() {
		s.held = true
		return
	}
	_ = s.base.Fire(ctx, event)
}

// tickPickDown waits for vacuum confirm at the pick-down pose. The acquire
// watchdog drives the retry policy via handleTimeout.
func (s *Sequencer) tickPickDown(ctx context.Context) {
	if s.base.Watchdog().Elapsed() <= 0 {
		return
	}
	if !s.atPose() || !s.in.GripperConfirm.Value() {
		return
	}
	if s.in.Stop.Value() {
		s.held = true
		return
	}
	_ = s.base.Fire(ctx, EventAcquired)
}

// tickRelease waits for the vacuum confirm to drop after the gripper was
// disabled on entry.
func (s *Sequencer) tickRelease(ctx context.Context) {
	if s.base.Watchdog().Elapsed() <= 0 {
		return
	}
	if s.in.GripperConfirm.Value() {
		return
	}
	if s.in.Stop.Value() {
		s.held = true
		return
	}
	_ = s.base.Fire(ctx, EventReleased)
}

// handleTimeout intercepts the acquire timeout with the bounded retry
// policy; every other watchdog timeout is a hard fault. The retry does not
// re-verify part presence at pick; the acquire watchdog bounds a retry
// against a vanished part.
func (s *Sequencer) handleTimeout(ctx context.Context, err error) {
	if s.base.Is(StatePickDown) && s.retriesUsed < s.cfg.AcquireRetries {
		s.retriesUsed++
		s.retrying = true
		metrics.IncGripperRetryCount(s.base.ID())
		s.base.Logger().Warnf("Vacuum not confirmed, retry %d/%d", s.retriesUsed, s.cfg.AcquireRetries)
		s.out.GripperEnable.Set(false)
		_ = s.base.Fire(ctx, EventRetryAcquire)
		return
	}
	s.base.Fault(ctx, err)
}

// clearStartPulses drops the previous tick's one-tick axis start pulses.
func (s *Sequencer) clearStartPulses() {
	for _, axis := range s.cfg.Axes {
		s.out.AxisStart[axis].Set(false)
	}
}

// abortToReset is the emergency-stop path: an unconditional, immediate
// abort that bypasses the transition table and applies the configured
// gripper-hold policy.
func (s *Sequencer) abortToReset() {
	s.base.ForceState(StateReset)
	s.resetInternal(!s.cfg.HoldGripperOnEstop)
}
