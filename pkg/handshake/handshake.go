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

// Package handshake implements the three-signal link binding the feed
// sequencer to the pick-and-place sequencer: a one-shot start pulse, a busy
// flag, and a one-shot done pulse. It is a signal channel, not a queue; each
// side consumes exactly one pulse per cycle, so no buffering or backpressure
// is needed. The single-threaded tick discipline makes locking unnecessary:
// only the feed side writes start, and only the pick side writes busy/done.
package handshake

// Link holds the shared handshake signals. Obtain the two views with
// FeedSide and PickSide; the views enforce the write partition.
type Link struct {
	start bool
	busy  bool
	done  bool
}

// New creates a cleared link.
func New() *Link {
	return &Link{}
}

// Clear drops all three signals. Called when either sequencer resets.
func (l *Link) Clear() {
	l.start = false
	l.busy = false
	l.done = false
}

// FeedSide returns the upstream view: write start, read busy/done.
func (l *Link) FeedSide() FeedSide {
	return FeedSide{link: l}
}

// PickSide returns the downstream view: write busy/done, read start.
func (l *Link) PickSide() PickSide {
	return PickSide{link: l}
}

// FeedSide is the feed sequencer's view of the link.
type FeedSide struct {
	link *Link
}

// PulseStart raises the start pulse for one tick. The feed sequencer must
// call ClearStart at the top of its next tick.
func (s FeedSide) PulseStart() {
	s.link.start = true
}

// ClearStart drops the start pulse.
func (s FeedSide) ClearStart() {
	s.link.start = false
}

// Busy reports whether the pick sequencer is mid-cycle.
func (s FeedSide) Busy() bool {
	return s.link.busy
}

// Done reports the one-tick done pulse from the pick sequencer.
func (s FeedSide) Done() bool {
	return s.link.done
}

// PickSide is the pick-and-place sequencer's view of the link.
type PickSide struct {
	link *Link
}

// Start reports the one-tick start pulse from the feed sequencer.
func (s PickSide) Start() bool {
	return s.link.start
}

// SetBusy asserts or drops the busy flag.
func (s PickSide) SetBusy(v bool) {
	s.link.busy = v
}

// PulseDone raises the done pulse for one tick. The pick sequencer must
// call ClearDone at the top of its next tick.
func (s PickSide) PulseDone() {
	s.link.done = true
}

// ClearDone drops the done pulse.
func (s PickSide) ClearDone() {
	s.link.done = false
}
