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
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from Go duration strings in
// YAML, e.g. "10ms".
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Seconds returns the duration in seconds.
func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// FullConfig is the complete cell configuration. It is loaded once at
// startup and handed to the core as plain read-only parameters; the core
// never reloads it.
type FullConfig struct {
	Cell      CellConfig      `yaml:"cell"`
	PickPlace PickPlaceConfig `yaml:"pickPlace"`
	Server    ServerConfig    `yaml:"server"`
}

// CellConfig holds the feed-and-cut setpoints and watchdog ceilings.
type CellConfig struct {
	// TickInterval is the fixed control tick period.
	TickInterval Duration `yaml:"tickInterval"`

	// CutLength is the target piece length, in the same units as the
	// infeed position input.
	CutLength float64 `yaml:"cutLength"`

	// InfeedSpeed and OutfeedSpeed are the conveyor speed setpoints in
	// length units per second.
	InfeedSpeed  float64 `yaml:"infeedSpeed"`
	OutfeedSpeed float64 `yaml:"outfeedSpeed"`

	// EntrySettleTime is how long the entry photo-eye must stay asserted
	// before metering starts, in seconds.
	EntrySettleTime float64 `yaml:"entrySettleTime"`

	// RequireCutPermission withholds the generate output when the
	// cut-permission latch was false at stroke start.
	RequireCutPermission bool `yaml:"requireCutPermission"`

	// MeterScale sizes the dynamic metering watchdog ceiling:
	// max(0.2s, MeterScale * CutLength / max(1, measured speed)).
	MeterScale float64 `yaml:"meterScale"`

	Watchdogs FeedWatchdogConfig `yaml:"watchdogs"`
}

// FeedWatchdogConfig holds the statically configured feed-side watchdog
// ceilings, in seconds. The metering ceiling is computed at runtime.
type FeedWatchdogConfig struct {
	Approach   float64 `yaml:"approach"`
	CutDown    float64 `yaml:"cutDown"`
	CutUp      float64 `yaml:"cutUp"`
	ExitClear  float64 `yaml:"exitClear"`
	TimeToPick float64 `yaml:"timeToPick"`
	Refeed     float64 `yaml:"refeed"`
}

// AxisTarget is one axis entry of a pose: a destination index plus the
// commanded speed for the move.
type AxisTarget struct {
	Index int     `yaml:"index"`
	Speed float64 `yaml:"speed"`
}

// Pose is a named set of per-axis destinations. Immutable configuration
// data, not runtime state.
type Pose map[string]AxisTarget

// PickPlaceConfig holds the pick-and-place axes, poses, retry budget and
// watchdog ceilings.
type PickPlaceConfig struct {
	// Axes lists the axis names, e.g. [x, y, z, rot]. Every pose entry
	// must reference one of these.
	Axes []string `yaml:"axes"`

	// HoldGripperOnEstop preserves the gripper hold on emergency stop
	// instead of releasing it.
	HoldGripperOnEstop bool `yaml:"holdGripperOnEstop"`

	// AcquireRetries is the bounded vacuum-acquire retry budget.
	AcquireRetries int `yaml:"acquireRetries"`

	Watchdogs PickWatchdogConfig `yaml:"watchdogs"`

	// Poses maps pose names to per-axis destinations. The sequence
	// requires the poses named by the Pose* constants.
	Poses map[string]Pose `yaml:"poses"`
}

// PickWatchdogConfig holds the pick-side watchdog ceilings, in seconds.
type PickWatchdogConfig struct {
	// Motion bounds every commanded move.
	Motion float64 `yaml:"motion"`
	// Acquire bounds the wait for vacuum confirm in the pick-down state.
	Acquire float64 `yaml:"acquire"`
	// Release bounds the wait for vacuum to drop in the release state.
	Release float64 `yaml:"release"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Pose names required by the pick-and-place sequence.
const (
	PosePickApproach = "pickApproach"
	PosePickDown     = "pickDown"
	PoseLiftClear    = "liftClear"
	PoseTransit      = "transit"
	PosePlaceDown    = "placeDown"
	PoseRetractClear = "retractClear"
)

// requiredPoses lists the poses the sequencer commands, in cycle order.
var requiredPoses = []string{
	PosePickApproach,
	PosePickDown,
	PoseLiftClear,
	PoseTransit,
	PosePlaceDown,
	PoseRetractClear,
}

// DefaultConfig returns a config with sane defaults for a small cell.
func DefaultConfig() FullConfig {
	return FullConfig{
		Cell: CellConfig{
			TickInterval:         Duration(10 * time.Millisecond),
			CutLength:            250,
			InfeedSpeed:          120,
			OutfeedSpeed:         160,
			EntrySettleTime:      0.15,
			RequireCutPermission: true,
			MeterScale:           1.5,
			Watchdogs: FeedWatchdogConfig{
				Approach:   5,
				CutDown:    2,
				CutUp:      2,
				ExitClear:  4,
				TimeToPick: 6,
				Refeed:     15,
			},
		},
		PickPlace: PickPlaceConfig{
			Axes:           []string{"x", "y", "z", "rot"},
			AcquireRetries: 2,
			Watchdogs: PickWatchdogConfig{
				Motion:  4,
				Acquire: 2.5,
				Release: 1,
			},
			Poses: defaultPoses(),
		},
		Server: ServerConfig{Port: 8090},
	}
}

func defaultPoses() map[string]Pose {
	return map[string]Pose{
		PosePickApproach: {
			"x": {Index: 2, Speed: 1.0}, "y": {Index: 1, Speed: 1.0},
			"z": {Index: 1, Speed: 0.8}, "rot": {Index: 0, Speed: 1.0},
		},
		PosePickDown: {
			"x": {Index: 2, Speed: 1.0}, "y": {Index: 1, Speed: 1.0},
			"z": {Index: 0, Speed: 0.4}, "rot": {Index: 0, Speed: 1.0},
		},
		PoseLiftClear: {
			"x": {Index: 2, Speed: 1.0}, "y": {Index: 1, Speed: 1.0},
			"z": {Index: 2, Speed: 0.8}, "rot": {Index: 0, Speed: 1.0},
		},
		PoseTransit: {
			"x": {Index: 5, Speed: 1.0}, "y": {Index: 3, Speed: 1.0},
			"z": {Index: 2, Speed: 0.8}, "rot": {Index: 1, Speed: 0.6},
		},
		PosePlaceDown: {
			"x": {Index: 5, Speed: 1.0}, "y": {Index: 3, Speed: 1.0},
			"z": {Index: 0, Speed: 0.4}, "rot": {Index: 1, Speed: 0.6},
		},
		PoseRetractClear: {
			"x": {Index: 5, Speed: 1.0}, "y": {Index: 3, Speed: 1.0},
			"z": {Index: 2, Speed: 0.8}, "rot": {Index: 1, Speed: 0.6},
		},
	}
}

// Validate checks the configuration for values the core cannot run with.
func (c FullConfig) Validate() error {
	if c.Cell.TickInterval <= 0 {
		return fmt.Errorf("cell.tickInterval must be positive, got %v", c.Cell.TickInterval.Duration())
	}
	if c.Cell.CutLength <= 0 {
		return fmt.Errorf("cell.cutLength must be positive, got %v", c.Cell.CutLength)
	}
	if c.Cell.InfeedSpeed <= 0 || c.Cell.OutfeedSpeed <= 0 {
		return fmt.Errorf("conveyor speeds must be positive, got infeed %v outfeed %v",
			c.Cell.InfeedSpeed, c.Cell.OutfeedSpeed)
	}
	if c.Cell.EntrySettleTime < 0 {
		return fmt.Errorf("cell.entrySettleTime must not be negative, got %v", c.Cell.EntrySettleTime)
	}
	if c.Cell.MeterScale <= 0 {
		return fmt.Errorf("cell.meterScale must be positive, got %v", c.Cell.MeterScale)
	}
	for name, ceiling := range map[string]float64{
		"approach":   c.Cell.Watchdogs.Approach,
		"cutDown":    c.Cell.Watchdogs.CutDown,
		"cutUp":      c.Cell.Watchdogs.CutUp,
		"exitClear":  c.Cell.Watchdogs.ExitClear,
		"timeToPick": c.Cell.Watchdogs.TimeToPick,
		"refeed":     c.Cell.Watchdogs.Refeed,
		"motion":     c.PickPlace.Watchdogs.Motion,
		"acquire":    c.PickPlace.Watchdogs.Acquire,
		"release":    c.PickPlace.Watchdogs.Release,
	} {
		if ceiling <= 0 {
			return fmt.Errorf("watchdog ceiling %q must be positive, got %v", name, ceiling)
		}
	}
	if c.PickPlace.AcquireRetries < 0 {
		return fmt.Errorf("pickPlace.acquireRetries must not be negative, got %d", c.PickPlace.AcquireRetries)
	}
	if len(c.PickPlace.Axes) == 0 {
		return fmt.Errorf("pickPlace.axes must name at least one axis")
	}

	axes := make(map[string]bool, len(c.PickPlace.Axes))
	for _, axis := range c.PickPlace.Axes {
		if axes[axis] {
			return fmt.Errorf("pickPlace.axes lists %q twice", axis)
		}
		axes[axis] = true
	}

	for _, name := range requiredPoses {
		pose, ok := c.PickPlace.Poses[name]
		if !ok {
			return fmt.Errorf("pickPlace.poses is missing required pose %q", name)
		}
		for axis, target := range pose {
			if !axes[axis] {
				return fmt.Errorf("pose %q references unknown axis %q", name, axis)
			}
			if target.Index < 0 {
				return fmt.Errorf("pose %q axis %q has negative destination index %d", name, axis, target.Index)
			}
			if target.Speed <= 0 {
				return fmt.Errorf("pose %q axis %q has non-positive speed %v", name, axis, target.Speed)
			}
		}
	}

	return nil
}
