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
)

// Kind indicates how a sequencer got into its fault state and therefore how
// an operator should respond to it.
type Kind string

const (
	// KindPrecondition indicates a required safety signal was false when a
	// state demanded it true (guard open, blade not up, run disabled).
	// Always fatal to the cycle.
	KindPrecondition Kind = "precondition"

	// KindTimeout indicates a state exceeded its watchdog ceiling.
	// Fatal except where a bounded retry policy intercepts it.
	KindTimeout Kind = "timeout"

	// KindSensorSanity indicates an implausible sensor reading, such as a
	// metering delta running backwards or past any physical limit. Fatal.
	KindSensorSanity Kind = "sensor_sanity"

	// KindEmergencyStop indicates the latched emergency stop fired. The
	// sequencer is forced to its reset state rather than fault, but the
	// latch is reported through the same taxonomy.
	KindEmergencyStop Kind = "emergency_stop"
)

// Fault is a categorized fault reason. It wraps the underlying error plus a Kind.
type Fault struct {
	Err  error
	Kind Kind
}

// Error returns the original error message.
func (f *Fault) Error() string {
	return f.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// IsKind checks if the Fault has the specified kind.
func (f *Fault) IsKind(kind Kind) bool {
	return f.Kind == kind
}

// Preconditionf builds a precondition-violation fault.
func Preconditionf(format string, args ...any) error {
	return &Fault{Err: fmt.Errorf(format, args...), Kind: KindPrecondition}
}

// Timeoutf builds a watchdog-timeout fault.
func Timeoutf(format string, args ...any) error {
	return &Fault{Err: fmt.Errorf(format, args...), Kind: KindTimeout}
}

// Sanityf builds a sensor-sanity fault.
func Sanityf(format string, args ...any) error {
	return &Fault{Err: fmt.Errorf(format, args...), Kind: KindSensorSanity}
}

// EmergencyStop builds the emergency-stop fault reason.
func EmergencyStop() error {
	return &Fault{Err: errors.New("run-enable lost, emergency stop latched"), Kind: KindEmergencyStop}
}

// KindOf extracts the Kind of err, or an empty Kind if err is not a Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsPrecondition is a convenience checker for KindPrecondition.
func IsPrecondition(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.IsKind(KindPrecondition)
}

// IsTimeout is a convenience checker for KindTimeout.
func IsTimeout(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.IsKind(KindTimeout)
}

// IsSensorSanity is a convenience checker for KindSensorSanity.
func IsSensorSanity(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.IsKind(KindSensorSanity)
}

// IsEmergencyStop is a convenience checker for KindEmergencyStop.
func IsEmergencyStop(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.IsKind(KindEmergencyStop)
}
