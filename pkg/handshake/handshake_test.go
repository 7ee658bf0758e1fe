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

package handshake

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHandshake(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Handshake Suite")
}

var _ = Describe("Link", func() {
	var (
		link *Link
		feed FeedSide
		pick PickSide
	)

	BeforeEach(func() {
		link = New()
		feed = link.FeedSide()
		pick = link.PickSide()
	})

	It("carries the start pulse from feed to pick", func() {
		Expect(pick.Start()).To(BeFalse())
		feed.PulseStart()
		Expect(pick.Start()).To(BeTrue())
		feed.ClearStart()
		Expect(pick.Start()).To(BeFalse())
	})

	It("carries busy and done from pick to feed", func() {
		pick.SetBusy(true)
		Expect(feed.Busy()).To(BeTrue())

		pick.PulseDone()
		pick.SetBusy(false)
		Expect(feed.Done()).To(BeTrue())
		Expect(feed.Busy()).To(BeFalse())

		pick.ClearDone()
		Expect(feed.Done()).To(BeFalse())
	})

	It("clears every signal at once", func() {
		feed.PulseStart()
		pick.SetBusy(true)
		pick.PulseDone()

		link.Clear()

		Expect(pick.Start()).To(BeFalse())
		Expect(feed.Busy()).To(BeFalse())
		Expect(feed.Done()).To(BeFalse())
	})
})
