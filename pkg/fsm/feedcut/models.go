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
	internal_fsm "github.com/united-manufacturing-hub/cell-core/internal/fsm"
	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
	"github.com/united-manufacturing-hub/cell-core/pkg/watchdog"
)

// Feed-and-cut sequencer states.
const (
	// StateReset is the initial state: all motion stopped, latches and
	// handshake outputs cleared.
	StateReset = "reset"
	// StateApproach drives the infeed forward until material reaches the
	// entry photo-eye and settles.
	StateApproach = "approach"
	// StateMeterFeed meters accumulated travel against the cut length.
	StateMeterFeed = "meter_feed"
	// StateCutDown jogs the blade down to its lower limit switch.
	StateCutDown = "cut_down"
	// StateCutUp jogs the blade back up to its upper limit switch.
	StateCutUp = "cut_up"
	// StateReleaseToPick drives the outfeed until the cut piece reaches
	// the pick position and the transfer handshake completes.
	StateReleaseToPick = "release_to_pick"
	// StateHold is the end-of-cycle rest state; only an external reset
	// leaves it.
	StateHold = "hold"
	// StateFault is the terminal within-cycle fault state; only an
	// external reset leaves it.
	StateFault = "fault"
)

// Feed-and-cut sequencer events, in addition to the shared reset/fault
// events from internal_fsm.
const (
	EventStart         = "start_pressed"
	EventAtEntry       = "material_at_entry"
	EventAtLength      = "at_cut_length"
	EventBladeDown     = "blade_at_bottom"
	EventBladeUp       = "blade_at_top"
	EventRefeed        = "refeed"
	EventCycleComplete = "cycle_complete"
)

// stateIndex is the numeric value reported on the state gauge.
var stateIndex = map[string]int{
	StateReset:         0,
	StateApproach:      1,
	StateMeterFeed:     2,
	StateCutDown:       3,
	StateCutUp:         4,
	StateReleaseToPick: 5,
	StateHold:          6,
	StateFault:         7,
}

// allStates lists every state, for transitions valid from anywhere.
var allStates = []string{
	StateReset,
	StateApproach,
	StateMeterFeed,
	StateCutDown,
	StateCutUp,
	StateReleaseToPick,
	StateHold,
	StateFault,
}

// Inputs are the feed-side sampled signals. The sampler refreshes them once
// per tick before Tick runs.
type Inputs struct {
	// Commands
	Start *signal.Bool
	Stop  *signal.Bool

	// Safety
	RunEnable *signal.Bool
	GuardOK   *signal.Bool

	// Photo-eyes
	EntryEye *signal.Bool
	ExitEye  *signal.Bool
	PickEye  *signal.Bool

	// Blade limit switches
	BladeUp   *signal.Bool
	BladeDown *signal.Bool

	// Infeed position, same units as the configured cut length
	InfeedPos *signal.Float
}

// Outputs are the feed-side actuator commands.
type Outputs struct {
	InfeedEnable *signal.BoolOut
	InfeedSpeed  *signal.FloatOut

	OutfeedEnable *signal.BoolOut
	OutfeedSpeed  *signal.FloatOut

	BladeJogUp   *signal.BoolOut
	BladeJogDown *signal.BoolOut

	// Generate is the "generate next workpiece" level: true from the
	// blade-down rising edge to the exit-clear falling edge. It is the
	// sole interface to the spawning/visualization subsystem.
	Generate *signal.BoolOut
}

// Sequencer owns conveyor metering, the blade stroke, outfeed release and
// the exit-handoff logic.
type Sequencer struct {
	base *internal_fsm.BaseSequencer

	cfg config.CellConfig
	in  Inputs
	out Outputs
	hs  handshake.FeedSide

	// Latches. A latch reflects the safety posture at the moment the
	// latched phase began, not the present instant.
	feedInterlock bool
	cutPermission bool

	// Metering
	entryPos      float64
	measuredSpeed float64
	atLength      bool

	// held marks a tick spent parked at a satisfied exit boundary with
	// stop asserted; the state watchdog does not advance on such ticks.
	held bool

	// Entry settle tracking in the approach state
	settle watchdog.Timer

	// Release-phase guards
	exitClearTimer  watchdog.Timer
	timeToPickTimer watchdog.Timer
	refeedTimer     watchdog.Timer

	// Handshake cycle flags
	startPulsed  bool
	awaitingDone bool
	transferDone bool
	exitCleared  bool
	refeedArmed  bool

	// cycleID correlates one start-to-hold run across log lines and the
	// snapshot.
	cycleID string

	// Production counters
	cuts   uint64
	pieces uint64
}

// Status is the feed-side slice of the system snapshot.
type Status struct {
	State         string `json:"state"`
	CycleID       string `json:"cycleId"`
	FaultReason   string `json:"faultReason,omitempty"`
	FaultKind     string `json:"faultKind,omitempty"`
	EStopLatched  bool   `json:"estopLatched"`
	FeedInterlock bool   `json:"feedInterlock"`
	CutPermission bool   `json:"cutPermission"`
	Cuts          uint64 `json:"cuts"`
	Pieces        uint64 `json:"pieces"`
}
