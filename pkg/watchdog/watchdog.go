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

// Package watchdog implements elapsed-time-in-state tracking with
// configurable ceilings, shared by both sequencers.
package watchdog

// Watchdog tracks the seconds spent in the current state and compares them
// against a per-state ceiling. The owning sequencer resets it on every state
// entry and advances it once per tick.
type Watchdog struct {
	ceilings map[string]float64
	elapsed  float64
}

// New creates a watchdog with the given per-state ceilings in seconds.
// A missing or non-positive ceiling disables the check for that state.
func New(ceilings map[string]float64) *Watchdog {
	c := make(map[string]float64, len(ceilings))
	for state, ceiling := range ceilings {
		c[state] = ceiling
	}
	return &Watchdog{ceilings: c}
}

// Reset zeroes the elapsed time. Called on every state entry.
func (w *Watchdog) Reset() {
	w.elapsed = 0
}

// Advance adds one tick period to the elapsed time.
func (w *Watchdog) Advance(dt float64) {
	w.elapsed += dt
}

// Elapsed returns the seconds spent in the current state.
func (w *Watchdog) Elapsed() float64 {
	return w.elapsed
}

// Ceiling returns the configured ceiling for state, or 0 if none is set.
func (w *Watchdog) Ceiling(state string) float64 {
	return w.ceilings[state]
}

// SetCeiling overrides the ceiling for state. The metering ceiling is sized
// dynamically from measured throughput, not configured statically.
func (w *Watchdog) SetCeiling(state string, ceiling float64) {
	w.ceilings[state] = ceiling
}

// Exceeded reports whether the elapsed time in state has passed its ceiling.
func (w *Watchdog) Exceeded(state string) bool {
	ceiling := w.ceilings[state]
	if ceiling <= 0 {
		return false
	}
	return w.elapsed > ceiling
}

// Timer is a free-running elapsed timer for guards that are not tied to a
// single state, such as the refeed timeout. It only accumulates while
// running, so a guard can be paused without losing its elapsed time.
type Timer struct {
	elapsed float64
	running bool
}

// Start begins (or resumes) accumulation.
func (t *Timer) Start() {
	t.running = true
}

// Pause suspends accumulation without clearing the elapsed time.
func (t *Timer) Pause() {
	t.running = false
}

// Reset stops the timer and zeroes the elapsed time.
func (t *Timer) Reset() {
	t.running = false
	t.elapsed = 0
}

// Advance adds one tick period if the timer is running.
func (t *Timer) Advance(dt float64) {
	if t.running {
		t.elapsed += dt
	}
}

// Elapsed returns the accumulated seconds.
func (t *Timer) Elapsed() float64 {
	return t.elapsed
}

// Running reports whether the timer is accumulating.
func (t *Timer) Running() bool {
	return t.running
}
