// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"os"

	"gopkg.in/yaml.v2"
)

// fileConfig is the on-disk shape accepted by LoadConfigFile: the subset
// of Config that makes sense to externalize into a host-supplied file,
// the same way a CLI's own settings file is laid out (see
// fireflyframework-cli's internal/config/config.go for the pattern this
// mirrors).
type fileConfig struct {
	LogSource        string `yaml:"log_source"`
	EventLogCapacity int    `yaml:"event_log_capacity"`
}

// LoadConfigFile reads a YAML file at path and merges its fields into a
// fresh Config, for host bindings that keep ecosystem tuning alongside
// their own application config rather than wiring it up in Go. Template
// overrides are never expressed in the file format — they require live
// *atom.Template values and so can only be supplied via Config.Overrides
// or a direct call to Overrides.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, err
	}
	return Config{
		LogSource:        fc.LogSource,
		EventLogCapacity: fc.EventLogCapacity,
	}, nil
}
