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

package faults

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFaults(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Faults Suite")
}

var _ = Describe("Fault taxonomy", func() {
	It("classifies constructed faults by kind", func() {
		Expect(IsPrecondition(Preconditionf("guard open"))).To(BeTrue())
		Expect(IsTimeout(Timeoutf("took %v", 3))).To(BeTrue())
		Expect(IsSensorSanity(Sanityf("delta %f", -1.0))).To(BeTrue())
		Expect(IsEmergencyStop(EmergencyStop())).To(BeTrue())
	})

	It("keeps kinds disjoint", func() {
		err := Preconditionf("blade not up")
		Expect(IsTimeout(err)).To(BeFalse())
		Expect(IsSensorSanity(err)).To(BeFalse())
		Expect(IsEmergencyStop(err)).To(BeFalse())
	})

	It("reports the kind of an arbitrary error as empty", func() {
		Expect(KindOf(errors.New("plain"))).To(Equal(Kind("")))
		Expect(IsTimeout(errors.New("plain"))).To(BeFalse())
		Expect(KindOf(nil)).To(Equal(Kind("")))
	})

	It("survives wrapping", func() {
		wrapped := fmt.Errorf("tick failed: %w", Timeoutf("state exceeded ceiling"))
		Expect(IsTimeout(wrapped)).To(BeTrue())
		Expect(KindOf(wrapped)).To(Equal(KindTimeout))
	})

	It("formats the reason into the message", func() {
		err := Preconditionf("Stroke not permitted")
		Expect(err.Error()).To(ContainSubstring("Stroke not permitted"))
	})
})
