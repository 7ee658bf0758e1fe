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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/cell-core/pkg/logger"
)

// Load reads, parses and validates the configuration file at path. Missing
// fields fall back to DefaultConfig values before validation.
func Load(path string) (FullConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration bytes.
func Parse(data []byte) (FullConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FullConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return FullConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config file at path if it exists, otherwise
// returns the defaults. Used at startup so a bare checkout runs without a
// config file.
func LoadOrDefault(path string) (FullConfig, error) {
	log := logger.For(logger.ComponentConfigManager)

	if path == "" {
		log.Info("No config file given, using defaults")
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Infof("Config file %s does not exist, using defaults", path)
		return DefaultConfig(), nil
	}

	cfg, err := Load(path)
	if err != nil {
		return FullConfig{}, err
	}
	log.Infof("Loaded config from %s", path)
	return cfg, nil
}
