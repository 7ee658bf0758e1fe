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
	internal_fsm "github.com/united-manufacturing-hub/cell-core/internal/fsm"
	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

// Pick-and-place sequencer states.
const (
	// StateReset is the initial state: axes idle, gripper released,
	// handshake outputs cleared.
	StateReset = "reset"
	// StateIdle waits for a transfer request with a part present at the
	// pick position and the downstream area clear. Absence of either
	// simply holds here; it is not a fault.
	StateIdle = "idle"
	// StateApproachPick moves all axes to the pick approach pose. On an
	// acquire retry only the vertical axis is re-approached.
	StateApproachPick = "approach_pick"
	// StatePickDown descends the vertical axis and waits for vacuum
	// confirm, with a bounded retry budget.
	StatePickDown = "pick_down"
	// StateLiftClear raises the vertical axis clear of the conveyor.
	StateLiftClear = "lift_clear"
	// StateTransitToPlace moves the lateral axes and rotation to the
	// place position.
	StateTransitToPlace = "transit_to_place"
	// StatePlaceDown descends the vertical axis to the place pose.
	StatePlaceDown = "place_down"
	// StateRelease drops the vacuum and waits for confirm to clear.
	StateRelease = "release"
	// StateRetractClear raises the vertical axis clear of the placed part.
	StateRetractClear = "retract_clear"
	// StateDone emits the one-tick done pulse, then returns to idle.
	StateDone = "done"
	// StateFault is the terminal within-cycle fault state; only an
	// external reset leaves it.
	StateFault = "fault"
)

// Pick-and-place sequencer events, in addition to the shared reset/fault
// events from internal_fsm.
const (
	EventArm          = "armed"
	EventStart        = "transfer_start"
	EventAtPick       = "at_pick_approach"
	EventAcquired     = "part_acquired"
	EventLifted       = "lifted_clear"
	EventAtPlace      = "at_place"
	EventPlaced       = "at_place_down"
	EventReleased     = "part_released"
	EventRetracted    = "retracted_clear"
	EventCycleDone    = "cycle_done"
	EventRetryAcquire = "acquire_retry"
)

// AxisVertical is the axis moved alone for vertical approach and retreat
// legs; the remaining axes form the lateral transit subset.
const AxisVertical = "z"

// stateIndex is the numeric value reported on the state gauge.
var stateIndex = map[string]int{
	StateReset:          0,
	StateIdle:           1,
	StateApproachPick:   2,
	StatePickDown:       3,
	StateLiftClear:      4,
	StateTransitToPlace: 5,
	StatePlaceDown:      6,
	StateRelease:        7,
	StateRetractClear:   8,
	StateDone:           9,
	StateFault:          10,
}

// allStates lists every state, for transitions valid from anywhere.
var allStates = []string{
	StateReset,
	StateIdle,
	StateApproachPick,
	StatePickDown,
	StateLiftClear,
	StateTransitToPlace,
	StatePlaceDown,
	StateRelease,
	StateRetractClear,
	StateDone,
	StateFault,
}

// Inputs are the pick-side sampled signals. The sampler refreshes them once
// per tick before Tick runs.
type Inputs struct {
	Stop      *signal.Bool
	RunEnable *signal.Bool

	// PartAtPick is the pick-position photo-eye.
	PartAtPick *signal.Bool
	// DownstreamClear reports the place area free of an earlier part.
	DownstreamClear *signal.Bool
	// GripperConfirm is the vacuum-confirm feedback.
	GripperConfirm *signal.Bool

	// AxisAtPos holds per-axis "at position" feedback, keyed by axis name.
	AxisAtPos map[string]*signal.Bool
}

// Outputs are the pick-side actuator commands, keyed by axis name where
// per-axis.
type Outputs struct {
	// AxisDest carries the commanded destination index per axis.
	AxisDest map[string]*signal.FloatOut
	// AxisSpeed carries the commanded move speed per axis.
	AxisSpeed map[string]*signal.FloatOut
	// AxisStart carries the one-tick move start pulse per axis.
	AxisStart map[string]*signal.BoolOut

	GripperEnable *signal.BoolOut
}

// Sequencer owns four-axis pose sequencing, gripper control and the
// retry-on-timeout acquire policy.
type Sequencer struct {
	base *internal_fsm.BaseSequencer

	cfg config.PickPlaceConfig
	in  Inputs
	out Outputs
	hs  handshake.PickSide

	// pendingStart latches a start pulse that arrived while the idle gate
	// conditions were not yet met.
	pendingStart bool

	// Acquire retry bookkeeping
	retriesUsed int
	retrying    bool

	// moveAxes is the axis subset of the in-flight move.
	moveAxes []string

	// held marks a tick spent parked at a satisfied exit boundary with
	// stop asserted; the state watchdog does not advance on such ticks.
	held bool

	cycleID   string
	transfers uint64
}

// Status is the pick-side slice of the system snapshot.
type Status struct {
	State        string `json:"state"`
	CycleID      string `json:"cycleId"`
	FaultReason  string `json:"faultReason,omitempty"`
	FaultKind    string `json:"faultKind,omitempty"`
	EStopLatched bool   `json:"estopLatched"`
	Busy         bool   `json:"busy"`
	RetriesUsed  int    `json:"retriesUsed"`
	Transfers    uint64 `json:"transfers"`
	GripperHeld  bool   `json:"gripperHeld"`
}
