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

package control

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/feedcut"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/pickplace"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/plant"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

func TestControl(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Control Suite")
}

// testConfig scales the cell down so a full piece cycle fits in on the
// order of five hundred stepped ticks.
func testConfig() config.FullConfig {
	cfg := config.DefaultConfig()
	cfg.Cell.CutLength = 50
	cfg.Cell.InfeedSpeed = 100
	cfg.Cell.OutfeedSpeed = 200
	cfg.Cell.EntrySettleTime = 0.05
	cfg.Cell.Watchdogs = config.FeedWatchdogConfig{
		Approach:   2,
		CutDown:    1,
		CutUp:      1,
		ExitClear:  2,
		TimeToPick: 3,
		Refeed:     15,
	}
	for _, pose := range cfg.PickPlace.Poses {
		for axis, target := range pose {
			target.Speed = 2.0
			pose[axis] = target
		}
	}
	return cfg
}

// rig is a full cell: simulated plant, sampler, both sequencers and the
// controller, stepped tick by tick without the wall-clock ticker.
type rig struct {
	ctx  context.Context
	cfg  config.FullConfig
	cell *plant.Cell
	ctrl *Controller
}

func newRig(stockLength float64) *rig {
	cfg := testConfig()
	cell := plant.NewCell(cfg, stockLength)
	sampler := signal.NewSampler()
	link := handshake.New()

	feed := feedcut.NewSequencer(cfg.Cell, cell.FeedInputs(sampler), cell.FeedOutputs(), link.FeedSide())
	pick := pickplace.NewSequencer(cfg.PickPlace, cell.PickInputs(sampler), cell.PickOutputs(), link.PickSide())

	ctrl := NewController(cfg, sampler, cell.ResetInput(sampler), feed, pick)
	ctrl.SetPreTick(cell.Step)

	return &rig{
		ctx:  context.Background(),
		cfg:  cfg,
		cell: cell,
		ctrl: ctrl,
	}
}

func (r *rig) tickN(n int) {
	for i := 0; i < n; i++ {
		r.ctrl.Tick(r.ctx)
	}
}

func (r *rig) snap() SystemSnapshot {
	return r.ctrl.Snapshots().GetDeepCopySnapshot()
}

// runUntil steps until the predicate holds on the tick snapshot, failing
// the test if it does not within max ticks.
func (r *rig) runUntil(max int, pred func(SystemSnapshot) bool) {
	for i := 0; i < max; i++ {
		r.ctrl.Tick(r.ctx)
		if pred(r.snap()) {
			return
		}
	}
	Fail("condition not reached within the tick budget; feed="+
		r.snap().Feed.State+" pick="+r.snap().Pick.State, 1)
}

func noFaults(s SystemSnapshot) {
	ExpectWithOffset(1, s.Feed.FaultReason).To(BeEmpty())
	ExpectWithOffset(1, s.Pick.FaultReason).To(BeEmpty())
}

var _ = Describe("Controller", func() {
	It("stays parked until the start button is pressed and publishes snapshots", func() {
		r := newRig(500)
		r.tickN(10)

		s := r.snap()
		Expect(s.Tick).To(Equal(r.ctrl.CurrentTick()))
		Expect(s.Feed.State).To(Equal(feedcut.StateReset))
		Expect(s.Pick.State).To(Equal(pickplace.StateIdle))
		noFaults(s)
	})

	It("cuts and transfers every piece the stock yields, then ends the cycle", func() {
		r := newRig(2.2 * 50) // two full pieces, then a remnant
		r.cell.PressStart()

		r.runUntil(3000, func(s SystemSnapshot) bool {
			return s.Feed.State == feedcut.StateHold
		})

		s := r.snap()
		Expect(s.Feed.Cuts).To(Equal(uint64(2)))
		Expect(s.Feed.Pieces).To(Equal(uint64(2)))
		Expect(s.Pick.Transfers).To(Equal(uint64(2)))
		Expect(s.Pick.State).To(Equal(pickplace.StateIdle))
		noFaults(s)
		Expect(r.cell.StockRemaining()).To(BeNumerically("~", 10, 1e-9))
	})

	It("parks gracefully on stop and resumes to complete the cycle", func() {
		r := newRig(1.2 * 50) // a single piece
		r.cell.PressStart()

		// Stop lands while the blade stroke is in flight; the stroke must
		// complete and the system park at the transfer boundary.
		r.tickN(100)
		r.cell.SetStop(true)
		r.tickN(600)

		s := r.snap()
		Expect(s.Feed.State).To(Equal(feedcut.StateReleaseToPick))
		Expect(s.Pick.State).To(Equal(pickplace.StateIdle))
		noFaults(s)

		r.cell.SetStop(false)
		r.runUntil(3000, func(s SystemSnapshot) bool {
			return s.Feed.State == feedcut.StateHold
		})
		s = r.snap()
		Expect(s.Feed.Pieces).To(Equal(uint64(1)))
		Expect(s.Pick.Transfers).To(Equal(uint64(1)))
		noFaults(s)
	})

	It("aborts both sequencers on run-enable loss and recovers only through reset", func() {
		r := newRig(2.2 * 50)
		r.cell.PressStart()
		r.tickN(30) // mid-metering

		r.cell.SetRunEnable(false)
		r.tickN(1)
		s := r.snap()
		Expect(s.Feed.State).To(Equal(feedcut.StateReset))
		Expect(s.Pick.State).To(Equal(pickplace.StateReset))
		Expect(s.Feed.EStopLatched).To(BeTrue())
		Expect(s.Pick.EStopLatched).To(BeTrue())

		// Signal recovery alone leaves both latched and parked.
		r.cell.SetRunEnable(true)
		r.tickN(5)
		s = r.snap()
		Expect(s.Feed.State).To(Equal(feedcut.StateReset))
		Expect(s.Pick.State).To(Equal(pickplace.StateReset))
		Expect(s.Feed.EStopLatched).To(BeTrue())

		// The operator reset clears the latches; a fresh start then runs
		// the full stock.
		r.cell.PressReset()
		r.tickN(2)
		s = r.snap()
		Expect(s.Feed.EStopLatched).To(BeFalse())
		Expect(s.Pick.EStopLatched).To(BeFalse())

		r.cell.PressStart()
		r.runUntil(3000, func(s SystemSnapshot) bool {
			return s.Feed.State == feedcut.StateHold
		})
		Expect(r.snap().Feed.Pieces).To(Equal(uint64(2)))
	})

	It("is deterministic tick for tick across identical runs", func() {
		trace := func() ([]string, SystemSnapshot) {
			r := newRig(2.2 * 50)
			r.cell.PressStart()
			states := make([]string, 0, 1200)
			for i := 0; i < 1200; i++ {
				r.ctrl.Tick(r.ctx)
				s := r.snap()
				states = append(states, s.Feed.State+"/"+s.Pick.State)
			}
			return states, r.snap()
		}

		statesA, finalA := trace()
		statesB, finalB := trace()

		Expect(statesA).To(Equal(statesB))
		Expect(finalA.Feed.Cuts).To(Equal(finalB.Feed.Cuts))
		Expect(finalA.Feed.Pieces).To(Equal(finalB.Feed.Pieces))
		Expect(finalA.Pick.Transfers).To(Equal(finalB.Pick.Transfers))
	})
})
