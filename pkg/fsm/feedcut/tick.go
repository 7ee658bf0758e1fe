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

	"github.com/united-manufacturing-hub/cell-core/pkg/faults"
	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
)

// Tick evaluates one control step. The sampler has already refreshed every
// input; Tick makes at most one state transition and writes the outputs for
// the current state. dt is the tick period in seconds.
func (s *Sequencer) Tick(ctx context.Context, dt float64) {
	// The start pulse raised on the previous tick has been consumed by the
	// downstream sequencer; drop it so it is exactly one tick wide.
	s.hs.ClearStart()

	// Emergency stop is checked before any other tick logic: loss of
	// run-enable is an immediate abort to reset, independent of state,
	// sticky until an explicit reset.
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
	case StateApproach:
		s.tickApproach(ctx, dt)
	case StateMeterFeed:
		s.tickMeterFeed(ctx, dt)
	case StateCutDown:
		s.tickCutDown(ctx)
	case StateCutUp:
		s.tickCutUp(ctx)
	case StateReleaseToPick:
		s.tickReleaseToPick(ctx, dt)
	case StateHold, StateFault:
		// Parked; only an external reset leaves these states.
	}

	// Elapsed-in-state advances only on ticks without a transition, so it
	// reads zero on the tick a transition occurs. A tick parked at a
	// stop-held boundary does not advance it either: a graceful pause
	// must not ripen into a watchdog fault.
	if s.base.State() == stateBefore && stateBefore != StateHold && stateBefore != StateFault && !s.held {
		if err := s.base.AdvanceWatchdog(dt); err != nil {
			s.fault(ctx, err)
		}
	}
}

// tickReset waits for the start gate. The emergency-stop latch blocks the
// gate even after run-enable recovers; only an explicit reset clears it.
func (s *Sequencer) tickReset(ctx context.Context) {
	if s.base.EStopLatched() {
		return
	}
	if s.in.BladeUp.Value() && s.in.Start.Rising() {
		_ = s.base.Fire(ctx, EventStart)
	}
}

// tickApproach drives the infeed until material has covered the entry
// photo-eye for the configured settle time.
func (s *Sequencer) tickApproach(ctx context.Context, dt float64) {
	if s.in.EntryEye.Value() {
		s.settle.Start()
		s.settle.Advance(dt)
	} else {
		s.settle.Reset()
	}

	if s.in.EntryEye.Value() && s.settle.Elapsed() >= s.cfg.EntrySettleTime {
		// Boundary: material has settled at the entry. A stop request
		// holds here; the step's motion stops but the state is kept.
		if s.in.Stop.Value() {
			s.held = true
			s.out.InfeedEnable.Set(false)
			s.out.InfeedSpeed.Set(0)
			return
		}
		s.measuredSpeed = s.in.InfeedPos.Rate(dt)
		_ = s.base.Fire(ctx, EventAtEntry)
	}
}

// tickMeterFeed accumulates travel against the cut length and guards the
// interlock and the metering plausibility window.
func (s *Sequencer) tickMeterFeed(ctx context.Context, dt float64) {
	// The entry latch reflects the posture at metering start.
	if !s.feedInterlock {
		s.fault(ctx, faults.Preconditionf("feed interlock not satisfied at metering start"))
		return
	}

	delta := s.in.InfeedPos.Value() - s.entryPos
	if delta < -0.5 {
		s.fault(ctx, faults.Sanityf("metering delta ran backwards: %.3f", delta))
		return
	}
	if delta > 10*s.cfg.CutLength {
		s.fault(ctx, faults.Sanityf("metering delta %.3f exceeds 10x cut length %.3f", delta, s.cfg.CutLength))
		return
	}

	s.measuredSpeed = s.in.InfeedPos.Rate(dt)

	if delta >= s.cfg.CutLength {
		// Cut-permission latch: computed once, at the instant travel
		// reaches the cut length, from the live safety signals, and held
		// through the entire stroke. A safety signal lost exactly at this
		// instant yields a false latch, not a metering fault; the stroke
		// state decides what a false latch means.
		if !s.atLength {
			s.atLength = true
			s.cutPermission = s.in.RunEnable.Value() && s.in.GuardOK.Value() && s.in.BladeUp.Value()
		}
		s.out.InfeedEnable.Set(false)
		s.out.InfeedSpeed.Set(0)

		// Boundary: about to enter cut_down.
		if s.in.Stop.Value() {
			s.held = true
			return
		}
		_ = s.base.Fire(ctx, EventAtLength)
		return
	}

	// Live values are re-checked every tick on top of the entry latch
	// while metering continues. Run-enable is covered by the
	// emergency-stop check before dispatch.
	if !s.in.GuardOK.Value() {
		s.fault(ctx, faults.Preconditionf("guard opened during metering"))
		return
	}
	if !s.in.BladeUp.Value() {
		s.fault(ctx, faults.Preconditionf("blade left top position during metering"))
	}
}

// tickCutDown jogs the blade down and asserts the generate level on the
// blade-down rising edge, permission allowing.
func (s *Sequencer) tickCutDown(ctx context.Context) {
	if s.cfg.RequireCutPermission && !s.cutPermission {
		s.fault(ctx, faults.Preconditionf("Stroke not permitted"))
		return
	}

	if s.in.BladeDown.Rising() && (!s.cfg.RequireCutPermission || s.cutPermission) {
		s.out.Generate.Set(true)
	}

	if s.in.BladeDown.Value() {
		_ = s.base.Fire(ctx, EventBladeDown)
	}
}

// tickCutUp jogs the blade back up to its upper limit switch.
func (s *Sequencer) tickCutUp(ctx context.Context) {
	if s.in.BladeUp.Value() && !s.in.BladeDown.Value() {
		_ = s.base.Fire(ctx, EventBladeUp)
	}
}

// tickReleaseToPick drives the outfeed, runs the exit handoff, emits the
// transfer handshake and decides between refeed and cycle end.
func (s *Sequencer) tickReleaseToPick(ctx context.Context, dt float64) {
	s.exitClearTimer.Advance(dt)
	s.timeToPickTimer.Advance(dt)
	// The refeed timer pauses while stop is asserted: a paused cycle must
	// not fault solely due to elapsed wall-clock time.
	if !s.in.Stop.Value() {
		s.refeedTimer.Advance(dt)
	}

	// Exit handoff: the downstream throat sensor clearing drops the
	// generate level and decides, from whether material remains at the
	// entry, whether a refeed is armed.
	if !s.exitCleared && s.in.ExitEye.Falling() {
		s.exitCleared = true
		s.exitClearTimer.Pause()
		s.out.Generate.Set(false)
		s.refeedArmed = s.in.EntryEye.Value()
	}

	pieceAtPick := s.in.PickEye.Value()
	if pieceAtPick {
		s.timeToPickTimer.Pause()
	}

	// The one-tick start pulse fires the first time the piece is at the
	// pick position and the downstream sequencer reports not busy.
	if pieceAtPick && !s.startPulsed && !s.hs.Busy() {
		s.hs.PulseStart()
		s.startPulsed = true
		s.awaitingDone = true
		s.refeedTimer.Start()
	}

	// Refeed is held until the downstream done pulse is observed.
	if s.awaitingDone && s.hs.Done() {
		s.awaitingDone = false
		s.transferDone = true
		s.refeedTimer.Pause()
		s.pieces++
		metrics.IncTransferCount(s.base.ID())
	}

	if !s.exitCleared && s.exitClearTimer.Elapsed() > s.cfg.Watchdogs.ExitClear {
		s.fault(ctx, faults.Timeoutf("piece did not clear the exit throat within %.2fs", s.cfg.Watchdogs.ExitClear))
		return
	}
	if !s.startPulsed && s.timeToPickTimer.Elapsed() > s.cfg.Watchdogs.TimeToPick {
		s.fault(ctx, faults.Timeoutf("transfer did not start within %.2fs", s.cfg.Watchdogs.TimeToPick))
		return
	}
	if s.startPulsed && !s.transferDone && s.refeedTimer.Elapsed() > s.cfg.Watchdogs.Refeed {
		s.fault(ctx, faults.Timeoutf("transfer did not complete within %.2fs", s.cfg.Watchdogs.Refeed))
		return
	}

	if s.exitCleared && s.transferDone {
		// Boundary: about to refeed or end the cycle.
		if s.in.Stop.Value() {
			s.held = true
			s.out.OutfeedEnable.Set(false)
			s.out.OutfeedSpeed.Set(0)
			return
		}
		if s.refeedArmed {
			_ = s.base.Fire(ctx, EventRefeed)
		} else {
			_ = s.base.Fire(ctx, EventCycleComplete)
		}
	}
}

// fault clears unsafe outputs, records reason and enters the fault state.
func (s *Sequencer) fault(ctx context.Context, reason error) {
	s.stopAllMotion()
	s.out.Generate.Set(false)
	s.base.Fault(ctx, reason)
}

// abortToReset is the emergency-stop path: an unconditional, immediate
// abort that bypasses the transition table.
func (s *Sequencer) abortToReset() {
	s.base.ForceState(StateReset)
	s.resetInternal()
}

// resetInternal puts outputs, latches and handshake bookkeeping into the
// defined reset posture.
func (s *Sequencer) resetInternal() {
	s.stopAllMotion()
	s.out.Generate.Set(false)
	s.feedInterlock = false
	s.cutPermission = false
	s.atLength = false
	s.clearTransferFlags()
	s.refeedTimer.Reset()
	s.settle.Reset()
	s.hs.ClearStart()
}
