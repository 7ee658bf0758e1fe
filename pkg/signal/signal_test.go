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

package signal

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSignal(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Signal Suite")
}

var _ = Describe("Bool", func() {
	var (
		raw bool
		b   *Bool
	)

	BeforeEach(func() {
		raw = false
		b = NewBool(func() bool { return raw })
	})

	It("detects a rising edge for exactly one sample", func() {
		b.Sample()
		Expect(b.Rising()).To(BeFalse())

		raw = true
		b.Sample()
		Expect(b.Rising()).To(BeTrue())
		Expect(b.Falling()).To(BeFalse())

		b.Sample()
		Expect(b.Rising()).To(BeFalse(), "edge must not persist past the next sample")
		Expect(b.Value()).To(BeTrue())
	})

	It("detects a falling edge for exactly one sample", func() {
		raw = true
		b.Sample()
		raw = false
		b.Sample()
		Expect(b.Falling()).To(BeTrue())
		Expect(b.Rising()).To(BeFalse())

		b.Sample()
		Expect(b.Falling()).To(BeFalse())
	})

	It("reads false from a disconnected source", func() {
		nilSource := NewBool(nil)
		nilSource.Sample()
		Expect(nilSource.Value()).To(BeFalse())
		Expect(nilSource.Rising()).To(BeFalse())
	})
})

var _ = Describe("Float", func() {
	It("estimates the rate between samples", func() {
		raw := 0.0
		f := NewFloat(func() float64 { return raw })
		f.Sample()
		raw = 2.0
		f.Sample()
		Expect(f.Rate(0.01)).To(BeNumerically("~", 200.0, 1e-9))
	})

	It("survives a zero tick period", func() {
		raw := 0.0
		f := NewFloat(func() float64 { return raw })
		f.Sample()
		raw = 1.0
		f.Sample()
		Expect(f.Rate(0)).NotTo(BeNumerically("==", 0))
	})

	It("reads zero from a disconnected source", func() {
		f := NewFloat(nil)
		f.Sample()
		Expect(f.Value()).To(BeZero())
	})
})

var _ = Describe("Outputs", func() {
	It("writes through the sink only when the value changes", func() {
		writes := 0
		out := NewBoolOut(func(bool) { writes++ })

		out.Set(true)
		out.Set(true)
		out.Set(true)
		Expect(writes).To(Equal(1))
		Expect(out.Get()).To(BeTrue())

		out.Set(false)
		Expect(writes).To(Equal(2))
	})

	It("writes the initial value even when it matches the zero value", func() {
		writes := 0
		out := NewFloatOut(func(float64) { writes++ })

		out.Set(0)
		Expect(writes).To(Equal(1))
		out.Set(0)
		Expect(writes).To(Equal(1))
	})

	It("tolerates a nil sink", func() {
		out := NewBoolOut(nil)
		out.Set(true)
		Expect(out.Get()).To(BeTrue())
	})
})

var _ = Describe("Sampler", func() {
	It("refreshes every registered input once per call", func() {
		s := NewSampler()
		rawB := false
		rawF := 1.5
		b := s.Bool(func() bool { return rawB })
		f := s.Float(func() float64 { return rawF })

		rawB = true
		rawF = 3.0
		s.Sample()

		Expect(b.Value()).To(BeTrue())
		Expect(f.Value()).To(Equal(3.0))
	})
})
