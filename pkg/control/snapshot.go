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

package control

import (
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/feedcut"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/pickplace"
)

// SystemSnapshot is the externally visible state of one completed tick.
type SystemSnapshot struct {
	Tick         uint64           `json:"tick"`
	SnapshotTime time.Time        `json:"snapshotTime"`
	Feed         feedcut.Status   `json:"feed"`
	Pick         pickplace.Status `json:"pick"`
}

// SnapshotManager shares the latest tick snapshot with consumers outside
// the control loop, such as the HTTP status endpoint. The loop updates it
// once per tick; readers get a deep copy so they can never observe a
// half-written tick or retain references into loop-owned state.
type SnapshotManager struct {
	mu       sync.RWMutex
	snapshot *SystemSnapshot
}

// NewSnapshotManager creates an empty snapshot manager.
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{}
}

// Update replaces the stored snapshot. Called by the control loop only.
func (m *SnapshotManager) Update(s SystemSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &s
}

// GetDeepCopySnapshot returns a deep copy of the latest snapshot, or the
// zero snapshot if no tick has completed yet.
func (m *SnapshotManager) GetDeepCopySnapshot() SystemSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return SystemSnapshot{}
	}

	var copied SystemSnapshot
	if err := deepcopy.Copy(&copied, m.snapshot); err != nil {
		// Status slices are plain value types; a copy failure means a
		// programming error, not a runtime condition. Fall back to the
		// shallow copy.
		return *m.snapshot
	}
	return copied
}
