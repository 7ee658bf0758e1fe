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

// Package signal implements the per-tick sampled input and idempotent output
// values that feed the sequencers. Inputs are refreshed exactly once per tick,
// before any state-machine logic runs; edge predicates are valid until the
// next sample. The package is agnostic to how signals are transported: a
// source is just a function, so the same sequencer code runs against local
// memory, fieldbus adapters, or the plant simulator.
package signal

// rateEpsilon floors the divisor in rate estimation so a zero tick period
// cannot divide by zero.
const rateEpsilon = 1e-9

// BoolSource reads the live value of a boolean input. A nil source reads false.
type BoolSource func() bool

// FloatSource reads the live value of a numeric input. A nil source reads 0.
type FloatSource func() float64

// Bool is a sampled boolean input with memory of its previous sample.
type Bool struct {
	source   BoolSource
	current  bool
	previous bool
}

// NewBool creates a sampled boolean input backed by source.
func NewBool(source BoolSource) *Bool {
	return &Bool{source: source}
}

// Sample refreshes the input. Called exactly once per tick by the sampler.
func (b *Bool) Sample() {
	b.previous = b.current
	if b.source == nil {
		// A disconnected source reads as false so the control loop stays total.
		b.current = false
		return
	}
	b.current = b.source()
}

// Value returns the current sampled value.
func (b *Bool) Value() bool {
	return b.current
}

// Previous returns the value sampled on the previous tick.
func (b *Bool) Previous() bool {
	return b.previous
}

// Rising reports a false-to-true transition between the previous and current sample.
func (b *Bool) Rising() bool {
	return b.current && !b.previous
}

// Falling reports a true-to-false transition between the previous and current sample.
func (b *Bool) Falling() bool {
	return !b.current && b.previous
}

// Float is a sampled numeric input with memory of its previous sample.
type Float struct {
	source   FloatSource
	current  float64
	previous float64
}

// NewFloat creates a sampled numeric input backed by source.
func NewFloat(source FloatSource) *Float {
	return &Float{source: source}
}

// Sample refreshes the input. Called exactly once per tick by the sampler.
func (f *Float) Sample() {
	f.previous = f.current
	if f.source == nil {
		f.current = 0
		return
	}
	f.current = f.source()
}

// Value returns the current sampled value.
func (f *Float) Value() float64 {
	return f.current
}

// Previous returns the value sampled on the previous tick.
func (f *Float) Previous() float64 {
	return f.previous
}

// Rate estimates the derivative between the previous and current sample,
// given the tick period in seconds.
func (f *Float) Rate(period float64) float64 {
	if period < rateEpsilon {
		period = rateEpsilon
	}
	return (f.current - f.previous) / period
}

// BoolSink receives a commanded boolean output value.
type BoolSink func(bool)

// FloatSink receives a commanded numeric output value.
type FloatSink func(float64)

// BoolOut is a write-only boolean actuator command. Setting the same value
// twice has no additional effect; the last commanded value is queryable.
type BoolOut struct {
	sink  BoolSink
	value bool
	set   bool
}

// NewBoolOut creates a boolean output writing through sink.
func NewBoolOut(sink BoolSink) *BoolOut {
	return &BoolOut{sink: sink}
}

// Set commands the output. Idempotent with respect to the sink.
func (o *BoolOut) Set(v bool) {
	if o.set && o.value == v {
		return
	}
	o.value = v
	o.set = true
	if o.sink != nil {
		o.sink(v)
	}
}

// Get returns the last commanded value.
func (o *BoolOut) Get() bool {
	return o.value
}

// FloatOut is a write-only numeric actuator command. Setting the same value
// twice has no additional effect; the last commanded value is queryable.
type FloatOut struct {
	sink  FloatSink
	value float64
	set   bool
}

// NewFloatOut creates a numeric output writing through sink.
func NewFloatOut(sink FloatSink) *FloatOut {
	return &FloatOut{sink: sink}
}

// Set commands the output. Idempotent with respect to the sink.
func (o *FloatOut) Set(v float64) {
	if o.set && o.value == v {
		return
	}
	o.value = v
	o.set = true
	if o.sink != nil {
		o.sink(v)
	}
}

// Get returns the last commanded value.
func (o *FloatOut) Get() float64 {
	return o.value
}

// Sampler refreshes a fixed set of inputs in registration order. Registration
// happens at construction time; the tick loop only calls Sample.
type Sampler struct {
	bools  []*Bool
	floats []*Float
}

// NewSampler creates an empty sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Bool registers and returns a sampled boolean input.
func (s *Sampler) Bool(source BoolSource) *Bool {
	b := NewBool(source)
	s.bools = append(s.bools, b)
	return b
}

// Float registers and returns a sampled numeric input.
func (s *Sampler) Float(source FloatSource) *Float {
	f := NewFloat(source)
	s.floats = append(s.floats, f)
	return f
}

// Sample refreshes every registered input. Called exactly once per tick,
// before any sequencer logic.
func (s *Sampler) Sample() {
	for _, b := range s.bools {
		b.Sample()
	}
	for _, f := range s.floats {
		f.Sample()
	}
}
