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

// Package control implements the fixed-period control loop driving the cell.
//
// The loop is single-threaded and cooperative: within one tick the sampler
// refreshes every input, the feed sequencer runs, then the pick-and-place
// sequencer, then the tick accounting. No step blocks; suspension is modeled
// entirely through state membership. The explicit reset command is checked
// first, before any sequencer logic, and unconditionally forces both
// sequencers to their reset states.
package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/feedcut"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/pickplace"
	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
	"github.com/united-manufacturing-hub/cell-core/pkg/metrics"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

// Controller owns the tick loop and the fixed execution order of the two
// sequencers. The handshake link is the only channel between them; the
// controller never reads sequencer internals beyond their status slices.
type Controller struct {
	cfg     config.FullConfig
	sampler *signal.Sampler

	// reset is the operator reset command, sampled like every other input.
	reset *signal.Bool

	feed *feedcut.Sequencer
	pick *pickplace.Sequencer

	snapshots   *SnapshotManager
	logger      *zap.SugaredLogger
	currentTick uint64

	// preTick runs before the sampler each tick. The plant simulator
	// registers its physics step here so the whole system stays
	// single-threaded.
	preTick func(dt float64)
}

// NewController wires the sampler, the reset command and the two sequencers
// into a controller ticking at cfg.Cell.TickInterval.
func NewController(cfg config.FullConfig, sampler *signal.Sampler, reset *signal.Bool, feed *feedcut.Sequencer, pick *pickplace.Sequencer) *Controller {
	log := logger.For(logger.ComponentControlLoop)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	metrics.InitErrorCounter(metrics.ComponentControlLoop, "main")

	return &Controller{
		cfg:       cfg,
		sampler:   sampler,
		reset:     reset,
		feed:      feed,
		pick:      pick,
		snapshots: NewSnapshotManager(),
		logger:    log,
	}
}

// SetPreTick registers a hook that runs at the top of every tick, before
// the sampler. Must be called before Execute.
func (c *Controller) SetPreTick(fn func(dt float64)) {
	c.preTick = fn
}

// Snapshots exposes the snapshot manager for external consumers such as the
// HTTP status endpoint.
func (c *Controller) Snapshots() *SnapshotManager {
	return c.snapshots
}

// Execute runs the control loop until the context is cancelled. Every tick
// is budgeted against the configured interval; a cycle overrunning the
// interval is logged, and one overrunning twice the interval is an error,
// since the fixed-period timing assumption no longer holds.
func (c *Controller) Execute(ctx context.Context) error {
	interval := c.cfg.Cell.TickInterval.Duration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.currentTick = 0

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Control loop stopped after %d ticks", c.currentTick)
			return nil
		case <-ticker.C:
			start := time.Now()

			c.Tick(ctx)

			cycleTime := time.Since(start)
			if cycleTime > interval {
				c.logger.Warnf("Control loop cycle time %v exceeds tick interval %v", cycleTime, interval)
				if cycleTime > 2*interval {
					c.logger.Errorf("Control loop cycle time %v exceeds twice the tick interval %v", cycleTime, interval)
				}
			}
			metrics.ObserveTickTime(metrics.ComponentControlLoop, "main", cycleTime)
		}
	}
}

// Tick executes one control step: sample, reset check, feed sequencer,
// pick-and-place sequencer, snapshot. Exported so tests and the plant
// harness can step the loop deterministically without the ticker.
func (c *Controller) Tick(ctx context.Context) {
	dt := c.cfg.Cell.TickInterval.Seconds()
	c.currentTick++

	if c.preTick != nil {
		c.preTick(dt)
	}

	c.sampler.Sample()

	// The explicit reset is checked first and preempts all other tick
	// logic for this step.
	if c.reset != nil && c.reset.Rising() {
		c.logger.Infof("Reset command received, resetting both sequencers")
		c.feed.Reset(ctx)
		c.pick.Reset(ctx)
		c.publishSnapshot()
		return
	}

	c.feed.Tick(ctx, dt)
	c.pick.Tick(ctx, dt)

	c.publishSnapshot()
}

// CurrentTick returns the number of completed control steps.
func (c *Controller) CurrentTick() uint64 {
	return c.currentTick
}

func (c *Controller) publishSnapshot() {
	c.snapshots.Update(SystemSnapshot{
		Tick:         c.currentTick,
		SnapshotTime: time.Now(),
		Feed:         c.feed.Status(),
		Pick:         c.pick.Status(),
	})
}
