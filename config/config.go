// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//lint:file-ignore SA5008 duplicated struct tags are ok for config

package config

import (
	"os"
	"path/filepath"

	"code.polarismarkets.io/polaris/admin"
	"code.polarismarkets.io/polaris/admission"
	"code.polarismarkets.io/polaris/broker"
	"code.polarismarkets.io/polaris/checkpoint"
	"code.polarismarkets.io/polaris/collateral"
	"code.polarismarkets.io/polaris/evtmonitor"
	"code.polarismarkets.io/polaris/execution"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/settlement"

	"github.com/BurntSushi/toml"
)

// Config ties together all other application configuration types.
type Config struct {
	Logging    logging.Config    `group:"Logging" namespace:"logging"`
	Admission  admission.Config  `group:"Admission" namespace:"admission"`
	Execution  execution.Config  `group:"Execution" namespace:"execution"`
	Collateral collateral.Config `group:"Collateral" namespace:"collateral"`
	Settlement settlement.Config `group:"Settlement" namespace:"settlement"`
	EvtMonitor evtmonitor.Config `group:"EvtMonitor" namespace:"evtmonitor"`
	Checkpoint checkpoint.Config `group:"Checkpoint" namespace:"checkpoint"`
	Broker     broker.Config     `group:"Broker" namespace:"broker"`
	Metrics    metrics.Config    `group:"Metrics" namespace:"metrics"`
	Admin      admin.Config      `group:"Admin" namespace:"admin"`
}

// NewDefaultConfig returns a set of default configs for all polaris packages,
// as specified at the per package config level.
func NewDefaultConfig(defaultStoreDirPath string) Config {
	cfg := Config{
		Logging:    logging.NewDefaultConfig(),
		Admission:  admission.NewDefaultConfig(),
		Execution:  execution.NewDefaultConfig(),
		Collateral: collateral.NewDefaultConfig(),
		Settlement: settlement.NewDefaultConfig(),
		EvtMonitor: evtmonitor.NewDefaultConfig(),
		Checkpoint: checkpoint.NewDefaultConfig(),
		Broker:     broker.NewDefaultConfig(),
		Metrics:    metrics.NewDefaultConfig(),
		Admin:      admin.NewDefaultConfig(),
	}
	cfg.Checkpoint.Path = filepath.Join(defaultStoreDirPath, cfg.Checkpoint.Path)
	return cfg
}

// Read loads the configuration from the config file found under rootPath,
// layered on top of the defaults.
func Read(rootPath string) (*Config, error) {
	path := filepath.Join(rootPath, configFileName)
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewDefaultConfig(rootPath)
	if _, err := toml.Decode(string(buf), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write serialises the given configuration to the config file under rootPath.
func Write(rootPath string, cfg Config) error {
	if err := os.MkdirAll(rootPath, 0o700); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(rootPath, configFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
