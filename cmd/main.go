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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/cell-core/pkg/config"
	"github.com/united-manufacturing-hub/cell-core/pkg/control"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/feedcut"
	"github.com/united-manufacturing-hub/cell-core/pkg/fsm/pickplace"
	"github.com/united-manufacturing-hub/cell-core/pkg/handshake"
	"github.com/united-manufacturing-hub/cell-core/pkg/httpapi"
	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
	"github.com/united-manufacturing-hub/cell-core/pkg/plant"
	sig "github.com/united-manufacturing-hub/cell-core/pkg/signal"
)

// defaultStockLengths is how many cut lengths of raw stock the simulated
// infeed starts with.
const defaultStockLengths = 40

func main() {
	// Initialize the global logger first thing
	logger.Initialize()
	log := logger.For(logger.ComponentCore)

	log.Info("Starting cell-core...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The plant simulates the cell I/O behind the signal contract; swap it
	// out for a fieldbus adapter and nothing in the sequencers changes.
	cell := plant.NewCell(cfg, defaultStockLengths*cfg.Cell.CutLength)

	sampler := sig.NewSampler()
	link := handshake.New()

	feed := feedcut.NewSequencer(cfg.Cell, cell.FeedInputs(sampler), cell.FeedOutputs(), link.FeedSide())
	pick := pickplace.NewSequencer(cfg.PickPlace, cell.PickInputs(sampler), cell.PickOutputs(), link.PickSide())

	ctrl := control.NewController(cfg, sampler, cell.ResetInput(sampler), feed, pick)
	ctrl.SetPreTick(cell.Step)

	api := httpapi.NewServer(cfg.Server, ctrl.Snapshots())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Press start once the loop is running so the simulated cell begins
	// cutting without operator interaction.
	startTimer := time.AfterFunc(500*time.Millisecond, cell.PressStart)
	defer startTimer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Execute(gctx)
	})
	g.Go(func() error {
		return api.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("cell-core exited with error: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	log.Info("cell-core stopped")
	_ = logger.Sync()
}
