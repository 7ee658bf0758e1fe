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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	// Component Labels.
	ComponentControlLoop = "control_loop"
	// Sequencers.
	ComponentFeedCutSequencer   = "feedcut_sequencer"
	ComponentPickPlaceSequencer = "pickplace_sequencer"
	// Supporting components.
	ComponentSignalSampler = "signal_sampler"
	ComponentPlant         = "plant"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "umh"
	subsystem = "cellcore"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Fault counters, labelled with the fault kind from the fault taxonomy.
	faultCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
			Help:      "Total number of sequencer faults by kind",
		},
		[]string{"component", "instance", "kind"},
	)

	// Tick timing.
	tickTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_milliseconds",
			Help:      "Time taken to execute one control tick (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01, // 50th percentile with 1% error
				0.9:  0.01, // 90th percentile with 1% error
				0.95: 0.01, // 95th percentile with 1% error
				0.99: 0.01, // 99th percentile with 1% error
			},
		},
		[]string{"component", "instance"},
	)

	// Sequencer state gauge; value is an index into the sequencer's state list.
	sequencerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sequencer_state",
			Help:      "Current state of the sequencer as reported by the state index registered for it",
		},
		[]string{"component", "instance"},
	)

	// Per-cycle production counters.
	cutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cuts_total",
			Help:      "Total number of completed blade strokes",
		},
		[]string{"instance"},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transfers_total",
			Help:      "Total number of completed pick-and-place transfers",
		},
		[]string{"instance"},
	)

	gripperRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gripper_retries_total",
			Help:      "Total number of vacuum-acquire retries",
		},
		[]string{"instance"},
	)
)

// IncErrorCountAndLog increments the error counter for a component and logs a debug message if a logger is provided.
func IncErrorCountAndLog(component, instance string, err error, logger *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if logger != nil {
		logger.Debugf("Component %s instance %s tick failed: %v", component, instance, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// IncFaultCount increments the fault counter for a sequencer and fault kind.
func IncFaultCount(component, instance, kind string) {
	faultCounter.WithLabelValues(component, instance, kind).Inc()
}

// ObserveTickTime records the time taken for one control tick.
func ObserveTickTime(component, instance string, duration time.Duration) {
	tickTime.WithLabelValues(component, instance).Observe(float64(duration.Milliseconds()))
}

// SetSequencerState updates the state gauge for a sequencer.
func SetSequencerState(component, instance string, stateIndex int) {
	sequencerState.WithLabelValues(component, instance).Set(float64(stateIndex))
}

// IncCutCount increments the completed-stroke counter.
func IncCutCount(instance string) {
	cutsTotal.WithLabelValues(instance).Inc()
}

// IncTransferCount increments the completed-transfer counter.
func IncTransferCount(instance string) {
	transfersTotal.WithLabelValues(instance).Inc()
}

// IncGripperRetryCount increments the vacuum-acquire retry counter.
func IncGripperRetryCount(instance string) {
	gripperRetriesTotal.WithLabelValues(instance).Inc()
}
