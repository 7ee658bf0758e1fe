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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/faults"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

func TestPickPlace(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PickPlace Suite")
}

const tickPeriod = 0.01

// harness drives the sequencer against hand-held signal variables. Axis
// at-position feedback defaults to true, so every motion state completes on
// its first ticked evaluation after the entry tick.
type harness struct {
	ctx     context.Context
	cfg     config.PickPlaceConfig
	sampler *signal.Sampler
	link    *handshake.Link
	seq     *Sequencer
	out     Outputs

	stop, runEnable             bool
	partAtPick, downstreamClear bool
	gripperConfirm              bool
	axisAtPos                   map[string]bool

	// vacuumFollows makes the confirm input track the gripper command, the
	// way a well-behaved vacuum circuit would.
	vacuumFollows bool
}

func testPose(x, z int) config.Pose {
	return config.Pose{
		"x": {Index: x, Speed: 2.0},
		"z": {Index: z, Speed: 2.0},
	}
}

func newHarness(mutate func(*config.PickPlaceConfig)) *harness {
	cfg := config.PickPlaceConfig{
		Axes:           []string{"x", "z"},
		AcquireRetries: 2,
		Watchdogs: config.PickWatchdogConfig{
			Motion:  0.055,
			Acquire: 0.055,
			Release: 0.055,
		},
		Poses: map[string]config.Pose{
			config.PosePickApproach: testPose(1, 2),
			config.PosePickDown:     testPose(1, 0),
			config.PoseLiftClear:    testPose(1, 2),
			config.PoseTransit:      testPose(4, 2),
			config.PosePlaceDown:    testPose(4, 0),
			config.PoseRetractClear: testPose(4, 2),
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		ctx:             context.Background(),
		cfg:             cfg,
		sampler:         signal.NewSampler(),
		link:            handshake.New(),
		runEnable:       true,
		partAtPick:      true,
		downstreamClear: true,
		axisAtPos:       map[string]bool{},
	}

	in := Inputs{
		Stop:            h.sampler.Bool(func() bool { return h.stop }),
		RunEnable:       h.sampler.Bool(func() bool { return h.runEnable }),
		PartAtPick:      h.sampler.Bool(func() bool { return h.partAtPick }),
		DownstreamClear: h.sampler.Bool(func() bool { return h.downstreamClear }),
		GripperConfirm:  h.sampler.Bool(func() bool { return h.gripperConfirm }),
		AxisAtPos:       map[string]*signal.Bool{},
	}
	out := Outputs{
		AxisDest:      map[string]*signal.FloatOut{},
		AxisSpeed:     map[string]*signal.FloatOut{},
		AxisStart:     map[string]*signal.BoolOut{},
		GripperEnable: signal.NewBoolOut(nil),
	}
	for _, axis := range cfg.Axes {
		axis := axis
		h.axisAtPos[axis] = true
		in.AxisAtPos[axis] = h.sampler.Bool(func() bool { return h.axisAtPos[axis] })
		out.AxisDest[axis] = signal.NewFloatOut(nil)
		out.AxisSpeed[axis] = signal.NewFloatOut(nil)
		out.AxisStart[axis] = signal.NewBoolOut(nil)
	}
	h.out = out
	h.seq = NewSequencer(cfg, in, out, h.link.PickSide())
	return h
}

func (h *harness) tick() {
	if h.vacuumFollows {
		h.gripperConfirm = h.out.GripperEnable.Get()
	}
	h.sampler.Sample()
	h.seq.Tick(h.ctx, tickPeriod)
}

func (h *harness) tickN(n int) {
	for i := 0; i < n; i++ {
		h.tick()
	}
}

// runUntil ticks until the sequencer reaches the given state, failing the
// test if it does not get there within max ticks.
func (h *harness) runUntil(state string, max int) {
	for i := 0; i < max; i++ {
		if h.seq.State() == state {
			return
		}
		h.tick()
	}
	ExpectWithOffset(1, h.seq.State()).To(Equal(state))
}

// startTransfer arms the sequencer and delivers the upstream start pulse.
func (h *harness) startTransfer() {
	h.runUntil(StateIdle, 3)
	h.link.FeedSide().PulseStart()
	h.tick()
	h.link.FeedSide().ClearStart()
}

var _ = Describe("PickPlace sequencer", func() {
	It("arms from reset to idle on the first tick", func() {
		h := newHarness(nil)
		Expect(h.seq.State()).To(Equal(StateReset))
		h.tick()
		Expect(h.seq.State()).To(Equal(StateIdle))
		Expect(h.seq.Status().Busy).To(BeFalse())
	})

	It("runs a complete transfer cycle", func() {
		h := newHarness(nil)
		h.vacuumFollows = true
		h.startTransfer()

		Expect(h.seq.State()).To(Equal(StateApproachPick))
		Expect(h.link.FeedSide().Busy()).To(BeTrue())
		Expect(h.out.AxisDest["x"].Get()).To(Equal(1.0))
		Expect(h.out.AxisDest["z"].Get()).To(Equal(2.0))
		Expect(h.out.AxisStart["x"].Get()).To(BeTrue())
		Expect(h.out.AxisStart["z"].Get()).To(BeTrue())

		h.runUntil(StatePickDown, 5)
		Expect(h.out.GripperEnable.Get()).To(BeTrue())
		Expect(h.out.AxisDest["z"].Get()).To(Equal(0.0))
		Expect(h.out.AxisStart["x"].Get()).To(BeFalse(), "vertical leg moves z only")

		h.runUntil(StateLiftClear, 5)
		h.runUntil(StateTransitToPlace, 5)
		Expect(h.out.AxisDest["x"].Get()).To(Equal(4.0))
		Expect(h.out.AxisStart["z"].Get()).To(BeFalse(), "lateral leg leaves z parked")

		h.runUntil(StateRelease, 10)
		Expect(h.out.GripperEnable.Get()).To(BeFalse())

		h.runUntil(StateDone, 10)
		Expect(h.link.FeedSide().Done()).To(BeTrue(), "one-tick done pulse")
		Expect(h.link.FeedSide().Busy()).To(BeFalse())
		Expect(h.seq.Status().Transfers).To(Equal(uint64(1)))

		h.tick()
		Expect(h.seq.State()).To(Equal(StateIdle))
		Expect(h.link.FeedSide().Done()).To(BeFalse(), "pulse cleared after one tick")
		Expect(h.seq.FaultReason()).To(BeNil())
	})

	It("latches a start pulse that arrives while the cycle gate is unmet", func() {
		h := newHarness(nil)
		h.partAtPick = false
		h.startTransfer()
		h.tickN(5)
		Expect(h.seq.State()).To(Equal(StateIdle), "gate unmet, pulse latched")

		h.partAtPick = true
		h.tick()
		Expect(h.seq.State()).To(Equal(StateApproachPick), "latched pulse opens the gate without a re-pulse")
	})

	It("holds the cycle gate while the downstream area is occupied", func() {
		h := newHarness(nil)
		h.downstreamClear = false
		h.startTransfer()
		h.tickN(5)
		Expect(h.seq.State()).To(Equal(StateIdle))

		h.downstreamClear = true
		h.tick()
		Expect(h.seq.State()).To(Equal(StateApproachPick))
	})

	Describe("acquire retry", func() {
		It("re-approaches vertically when vacuum is not confirmed in time", func() {
			h := newHarness(nil)
			h.startTransfer()
			h.runUntil(StatePickDown, 5)

			// No vacuum confirm: the acquire ceiling trips on the sixth
			// accumulated tick.
			h.tickN(6)
			Expect(h.seq.State()).To(Equal(StateApproachPick))
			Expect(h.seq.Status().RetriesUsed).To(Equal(1))
			Expect(h.out.GripperEnable.Get()).To(BeFalse(), "gripper dropped for the retry")
			Expect(h.out.AxisStart["z"].Get()).To(BeTrue())
			Expect(h.out.AxisStart["x"].Get()).To(BeFalse(), "retry re-approaches on z only")

			// Vacuum confirms on the second attempt.
			h.runUntil(StatePickDown, 5)
			Expect(h.out.GripperEnable.Get()).To(BeTrue())
			h.gripperConfirm = true
			h.tickN(2)
			Expect(h.seq.State()).To(Equal(StateLiftClear))
		})

		It("faults after the retry budget is exhausted", func() {
			h := newHarness(nil)
			h.startTransfer()

			// Two retries, then the third acquire timeout is a hard fault.
			h.tickN(40)
			Expect(h.seq.State()).To(Equal(StateFault))
			Expect(h.seq.Status().RetriesUsed).To(Equal(2))
			Expect(faults.IsTimeout(h.seq.FaultReason())).To(BeTrue())
		})
	})

	It("faults when vacuum does not drop after release", func() {
		h := newHarness(nil)
		h.vacuumFollows = true
		h.startTransfer()
		h.runUntil(StateRelease, 30)

		// Piece stays stuck on the gripper.
		h.vacuumFollows = false
		h.gripperConfirm = true
		h.tickN(7)
		Expect(h.seq.State()).To(Equal(StateFault))
		Expect(faults.IsTimeout(h.seq.FaultReason())).To(BeTrue())
	})

	Describe("boundary-gated stop", func() {
		It("holds at a satisfied motion boundary without a watchdog fault", func() {
			h := newHarness(nil)
			h.startTransfer()
			h.stop = true

			// At position, boundary satisfied, stop parked: well past the
			// motion ceiling nothing must fault.
			h.tickN(20)
			Expect(h.seq.State()).To(Equal(StateApproachPick))
			Expect(h.seq.FaultReason()).To(BeNil())

			h.stop = false
			h.tick()
			Expect(h.seq.State()).To(Equal(StatePickDown))
		})
	})

	Describe("emergency stop", func() {
		It("aborts to reset, releases the gripper by default and stays latched", func() {
			h := newHarness(nil)
			h.vacuumFollows = true
			h.startTransfer()
			h.runUntil(StateLiftClear, 10)
			Expect(h.out.GripperEnable.Get()).To(BeTrue())

			h.vacuumFollows = false
			h.runEnable = false
			h.tick()
			Expect(h.seq.State()).To(Equal(StateReset))
			Expect(h.seq.EStopLatched()).To(BeTrue())
			Expect(h.out.GripperEnable.Get()).To(BeFalse())
			Expect(h.link.FeedSide().Busy()).To(BeFalse())

			// Recovery alone does not re-arm.
			h.runEnable = true
			h.tickN(3)
			Expect(h.seq.State()).To(Equal(StateReset))

			h.seq.Reset(h.ctx)
			h.tick()
			Expect(h.seq.State()).To(Equal(StateIdle))
		})

		It("keeps the gripper held on abort when the hold policy is configured", func() {
			h := newHarness(func(c *config.PickPlaceConfig) { c.HoldGripperOnEstop = true })
			h.vacuumFollows = true
			h.startTransfer()
			h.runUntil(StateLiftClear, 10)

			h.vacuumFollows = false
			h.runEnable = false
			h.tick()
			Expect(h.seq.State()).To(Equal(StateReset))
			Expect(h.out.GripperEnable.Get()).To(BeTrue(), "held piece is not dropped on abort")

			// The explicit reset releases it.
			h.seq.Reset(h.ctx)
			Expect(h.out.GripperEnable.Get()).To(BeFalse())
		})
	})
})
