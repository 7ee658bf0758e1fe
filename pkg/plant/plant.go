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

// Package plant simulates the physical cell I/O behind the signal contract:
// conveyor position integrates commanded speed, the blade travels between
// its limit switches at a fixed stroke time, axes move toward commanded
// destination indexes, photo-eyes derive from piece positions, and a new
// piece appears on the rising edge of the generate output. It exists so the
// binary runs end to end and integration tests can drive full cycles; it
// contains no control logic.
package plant

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
)

const (
	// bladeStrokeTime is the full top-to-bottom travel time in seconds.
	bladeStrokeTime = 0.4
	// bladeUpLimit and bladeDownLimit are the limit-switch thresholds on
	// the normalized blade position.
	bladeUpLimit   = 0.02
	bladeDownLimit = 0.98

	// vacuumDelay is how long the vacuum needs over a piece before the
	// confirm input asserts, in seconds.
	vacuumDelay = 0.15

	// placeClearTime simulates the takeaway conveyor: the downstream area
	// reads occupied for this long after a place, in seconds.
	placeClearTime = 0.6

	// axisArriveEpsilon is the arrival window around a destination index.
	axisArriveEpsilon = 1e-6

	// axisSpeedScale converts commanded pose speed to index units per
	// second.
	axisSpeedScale = 2.0
)

// piece is a cut workpiece on the outfeed, tracked by travel distance from
// the blade.
type piece struct {
	travel float64
	picked bool
}

type axisDrive struct {
	pos    float64
	dest   float64
	speed  float64
	moving bool

	// pendingDest/pendingSpeed buffer the commanded target until the
	// start pulse latches it into a move.
	pendingDest  float64
	pendingSpeed float64
}

// Cell is the simulated plant. All reads and writes go through the signal
// sources and sinks it hands out; Step advances the physics by one tick.
// The operator-panel setters are safe to call from other goroutines.
type Cell struct {
	mu  sync.Mutex
	cfg config.FullConfig
	log *zap.SugaredLogger

	// Operator panel. Buttons are momentary: pressed for exactly one step.
	startPending bool
	resetPending bool
	startButton  bool
	resetButton  bool
	stop         bool
	runEnable    bool
	guardClosed  bool

	// Infeed conveyor
	infeedEnable bool
	infeedSpeed  float64
	infeedPos    float64

	// Raw stock remaining on the infeed side, in length units.
	stockRemaining float64

	// Blade, normalized 0 (top) to 1 (bottom)
	bladeJogUp   bool
	bladeJogDown bool
	bladePos     float64

	// Outfeed conveyor and the piece on it
	outfeedEnable bool
	outfeedSpeed  float64
	generate      bool
	prevGenerate  bool
	piece         *piece

	// Outfeed geometry, derived from the cut length.
	exitClearDistance float64
	pickDistance      float64

	// Pick-and-place axes
	axes map[string]*axisDrive

	// Gripper
	gripperEnable  bool
	gripperConfirm bool
	vacuumTimer    float64
	attached       bool

	// Downstream place area: occupied while the timer runs.
	downstreamTimer float64
}

// NewCell creates a plant with the given stock length on the infeed, full
// safety signals and all axes parked at index zero.
func NewCell(cfg config.FullConfig, stockLength float64) *Cell {
	axes := make(map[string]*axisDrive, len(cfg.PickPlace.Axes))
	for _, name := range cfg.PickPlace.Axes {
		axes[name] = &axisDrive{}
	}
	return &Cell{
		cfg:               cfg,
		log:               logger.For(logger.ComponentPlant),
		runEnable:         true,
		guardClosed:       true,
		stockRemaining:    stockLength,
		exitClearDistance: 1.2 * cfg.Cell.CutLength,
		pickDistance:      2.5 * cfg.Cell.CutLength,
		axes:              axes,
	}
}

// Step advances the physics by dt seconds. Registered as the control
// loop's pre-tick hook, so it runs exactly once per tick, before sampling.
func (c *Cell) Step(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Momentary buttons: one step wide.
	c.startButton = c.startPending
	c.startPending = false
	c.resetButton = c.resetPending
	c.resetPending = false

	// Infeed position integrates commanded speed.
	if c.infeedEnable {
		c.infeedPos += c.infeedSpeed * dt
	}

	// Blade travel between limit switches.
	switch {
	case c.bladeJogDown:
		c.bladePos = math.Min(1, c.bladePos+dt/bladeStrokeTime)
	case c.bladeJogUp:
		c.bladePos = math.Max(0, c.bladePos-dt/bladeStrokeTime)
	}

	// A piece appears on the generate rising edge and consumes stock.
	if c.generate && !c.prevGenerate && c.piece == nil {
		c.piece = &piece{}
		c.stockRemaining = math.Max(0, c.stockRemaining-c.cfg.Cell.CutLength)
		c.log.Debugf("Piece spawned, stock remaining %.1f", c.stockRemaining)
	}
	c.prevGenerate = c.generate

	// Outfeed carries the piece to the pick nest and stops it there.
	if c.piece != nil && !c.piece.picked && c.outfeedEnable {
		c.piece.travel = math.Min(c.pickDistance, c.piece.travel+c.outfeedSpeed*dt)
	}

	// Axis moves.
	for _, a := range c.axes {
		if !a.moving {
			continue
		}
		step := a.speed * axisSpeedScale * dt
		if math.Abs(a.dest-a.pos) <= step+axisArriveEpsilon {
			a.pos = a.dest
			a.moving = false
			continue
		}
		if a.dest > a.pos {
			a.pos += step
		} else {
			a.pos -= step
		}
	}

	c.stepGripper(dt)

	if c.downstreamTimer > 0 {
		c.downstreamTimer = math.Max(0, c.downstreamTimer-dt)
	}
}

func (c *Cell) stepGripper(dt float64) {
	if c.gripperEnable {
		if c.gripperConfirm {
			return
		}
		if c.pieceUnderGripper() {
			c.vacuumTimer += dt
			if c.vacuumTimer >= vacuumDelay {
				c.gripperConfirm = true
				c.attached = true
				c.piece.picked = true
				c.log.Debugf("Piece acquired")
			}
		} else {
			c.vacuumTimer = 0
		}
		return
	}

	c.vacuumTimer = 0
	c.gripperConfirm = false
	if c.attached {
		c.attached = false
		if c.atPose(config.PosePlaceDown) {
			c.downstreamTimer = placeClearTime
			c.log.Debugf("Piece placed")
		} else {
			c.log.Warnf("Piece released away from the place pose")
		}
		c.piece = nil
	}
}

// pieceUnderGripper reports a piece in the pick nest with the head at the
// pick-down pose.
func (c *Cell) pieceUnderGripper() bool {
	if c.piece == nil || c.piece.picked || c.piece.travel < c.pickDistance {
		return false
	}
	return c.atPose(config.PosePickDown)
}

// atPose reports every axis of the named pose settled on its destination.
func (c *Cell) atPose(name string) bool {
	pose := c.cfg.PickPlace.Poses[name]
	for axis, target := range pose {
		a, ok := c.axes[axis]
		if !ok {
			return false
		}
		if a.moving || math.Abs(a.pos-float64(target.Index)) > axisArriveEpsilon {
			return false
		}
	}
	return true
}

// Operator panel.

// PressStart presses the start button for one step.
func (c *Cell) PressStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startPending = true
}

// PressReset presses the reset button for one step.
func (c *Cell) PressReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetPending = true
}

// SetStop sets the stop request level.
func (c *Cell) SetStop(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop = v
}

// SetRunEnable sets the run-enable level. Dropping it triggers the
// emergency-stop path in both sequencers.
func (c *Cell) SetRunEnable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runEnable = v
}

// SetGuardClosed sets the guard-ok level.
func (c *Cell) SetGuardClosed(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guardClosed = v
}

// StockRemaining returns the raw stock left on the infeed side.
func (c *Cell) StockRemaining() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stockRemaining
}
