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

package config

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("DefaultConfig", func() {
	It("validates out of the box", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})

	It("contains every pose the sequence needs", func() {
		cfg := DefaultConfig()
		for _, name := range requiredPoses {
			Expect(cfg.PickPlace.Poses).To(HaveKey(name))
		}
	})
})

var _ = Describe("Parse", func() {
	It("applies defaults under partial YAML", func() {
		cfg, err := Parse([]byte("cell:\n  cutLength: 100\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Cell.CutLength).To(Equal(100.0))
		Expect(cfg.Cell.TickInterval).To(Equal(Duration(10 * time.Millisecond)))
		Expect(cfg.PickPlace.Poses).NotTo(BeEmpty())
	})

	It("parses the tick interval from a duration string", func() {
		cfg, err := Parse([]byte("cell:\n  tickInterval: 20ms\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Cell.TickInterval.Duration()).To(Equal(20 * time.Millisecond))
	})

	It("rejects an unparseable tick interval", func() {
		_, err := Parse([]byte("cell:\n  tickInterval: soon\n"))
		Expect(err).To(MatchError(ContainSubstring("invalid duration")))
	})

	It("rejects a non-positive cut length", func() {
		_, err := Parse([]byte("cell:\n  cutLength: -5\n"))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a pose referencing an unknown axis", func() {
		yaml := `
pickPlace:
  poses:
    pickDown:
      w: {index: 1, speed: 0.5}
`
		_, err := Parse([]byte(yaml))
		Expect(err).To(MatchError(ContainSubstring("unknown axis")))
	})

	It("rejects a zero watchdog ceiling", func() {
		yaml := `
cell:
  watchdogs:
    approach: 0
`
		_, err := Parse([]byte(yaml))
		Expect(err).To(MatchError(ContainSubstring("watchdog ceiling")))
	})

	It("rejects malformed YAML", func() {
		_, err := Parse([]byte("cell: [broken"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LoadOrDefault", func() {
	It("falls back to defaults when the file is missing", func() {
		cfg, err := LoadOrDefault("does-not-exist.yaml")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Cell.CutLength).To(Equal(DefaultConfig().Cell.CutLength))
	})
})
