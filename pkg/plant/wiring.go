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

package plant

import (
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/feedcut"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/pickplace"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

// FeedInputs registers the feed-side sampled inputs against the plant.
func (c *Cell) FeedInputs(s *signal.Sampler) feedcut.Inputs {
	return feedcut.Inputs{
		Start:     s.Bool(c.locked(func() bool { return c.startButton })),
		Stop:      s.Bool(c.locked(func() bool { return c.stop })),
		RunEnable: s.Bool(c.locked(func() bool { return c.runEnable })),
		GuardOK:   s.Bool(c.locked(func() bool { return c.guardClosed })),
		EntryEye:  s.Bool(c.locked(c.entryEye)),
		ExitEye:   s.Bool(c.locked(c.exitEye)),
		PickEye:   s.Bool(c.locked(c.pickEye)),
		BladeUp:   s.Bool(c.locked(func() bool { return c.bladePos <= bladeUpLimit })),
		BladeDown: s.Bool(c.locked(func() bool { return c.bladePos >= bladeDownLimit })),
		InfeedPos: s.Float(c.lockedF(func() float64 { return c.infeedPos })),
	}
}

// FeedOutputs binds the feed-side actuator commands to the plant.
func (c *Cell) FeedOutputs() feedcut.Outputs {
	return feedcut.Outputs{
		InfeedEnable:  signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.infeedEnable = v })),
		InfeedSpeed:   signal.NewFloatOut(c.lockedSinkF(func(v float64) { c.infeedSpeed = v })),
		OutfeedEnable: signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.outfeedEnable = v })),
		OutfeedSpeed:  signal.NewFloatOut(c.lockedSinkF(func(v float64) { c.outfeedSpeed = v })),
		BladeJogUp:    signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.bladeJogUp = v })),
		BladeJogDown:  signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.bladeJogDown = v })),
		Generate:      signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.generate = v })),
	}
}

// PickInputs registers the pick-side sampled inputs against the plant.
func (c *Cell) PickInputs(s *signal.Sampler) pickplace.Inputs {
	atPos := make(map[string]*signal.Bool, len(c.cfg.PickPlace.Axes))
	for _, name := range c.cfg.PickPlace.Axes {
		a := c.axes[name]
		atPos[name] = s.Bool(c.locked(func() bool { return !a.moving }))
	}
	return pickplace.Inputs{
		Stop:            s.Bool(c.locked(func() bool { return c.stop })),
		RunEnable:       s.Bool(c.locked(func() bool { return c.runEnable })),
		PartAtPick:      s.Bool(c.locked(c.pickEye)),
		DownstreamClear: s.Bool(c.locked(func() bool { return c.downstreamTimer <= 0 })),
		GripperConfirm:  s.Bool(c.locked(func() bool { return c.gripperConfirm })),
		AxisAtPos:       atPos,
	}
}

// PickOutputs binds the pick-side actuator commands to the plant. The start
// pulse latches the buffered destination and speed into a move.
func (c *Cell) PickOutputs() pickplace.Outputs {
	dest := make(map[string]*signal.FloatOut, len(c.cfg.PickPlace.Axes))
	speed := make(map[string]*signal.FloatOut, len(c.cfg.PickPlace.Axes))
	start := make(map[string]*signal.BoolOut, len(c.cfg.PickPlace.Axes))
	for _, name := range c.cfg.PickPlace.Axes {
		a := c.axes[name]
		dest[name] = signal.NewFloatOut(c.lockedSinkF(func(v float64) { a.pendingDest = v }))
		speed[name] = signal.NewFloatOut(c.lockedSinkF(func(v float64) { a.pendingSpeed = v }))
		start[name] = signal.NewBoolOut(c.lockedSinkB(func(v bool) {
			if v {
				a.beginMove()
			}
		}))
	}
	return pickplace.Outputs{
		AxisDest:      dest,
		AxisSpeed:     speed,
		AxisStart:     start,
		GripperEnable: signal.NewBoolOut(c.lockedSinkB(func(v bool) { c.gripperEnable = v })),
	}
}

// ResetInput registers the operator reset button.
func (c *Cell) ResetInput(s *signal.Sampler) *signal.Bool {
	return s.Bool(c.locked(func() bool { return c.resetButton }))
}

func (a *axisDrive) beginMove() {
	a.dest = a.pendingDest
	a.speed = a.pendingSpeed
	a.moving = a.dest != a.pos
}

// locked wraps a boolean read with the plant mutex.
func (c *Cell) locked(read func() bool) signal.BoolSource {
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return read()
	}
}

// lockedF wraps a numeric read with the plant mutex.
func (c *Cell) lockedF(read func() float64) signal.FloatSource {
	return func() float64 {
		c.mu.Lock()
		defer c.mu.Unlock()
		return read()
	}
}

func (c *Cell) lockedSinkB(write func(bool)) signal.BoolSink {
	return func(v bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		write(v)
	}
}

func (c *Cell) lockedSinkF(write func(float64)) signal.FloatSink {
	return func(v float64) {
		c.mu.Lock()
		defer c.mu.Unlock()
		write(v)
	}
}

// entryEye reports raw stock butted against the infeed entry: enough stock
// for at least one more piece.
func (c *Cell) entryEye() bool {
	return c.stockRemaining >= c.cfg.Cell.CutLength
}

// exitEye reports a piece still occupying the outfeed throat.
func (c *Cell) exitEye() bool {
	return c.piece != nil && !c.piece.picked && c.piece.travel < c.exitClearDistance
}

// pickEye reports a piece settled in the pick nest.
func (c *Cell) pickEye() bool {
	return c.piece != nil && !c.piece.picked && c.piece.travel >= c.pickDistance
}
