// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads and saves the application settings as YAML. Command line
// flags override the loaded values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hyperlight-cam/hyperlight/internal/accel"
	"github.com/hyperlight-cam/hyperlight/internal/calib"
	"gopkg.in/yaml.v3"
)

// Strategy names
const (
	StrategyHost  = "host"
	StrategyAccel = "accel"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Sensor calibration
	Sensor struct {
		// Calibration is the path of the sensor calibration XML file
		Calibration string `yaml:"calibration"`

		// MatrixName selects the spectral correction matrix in the calibration file
		MatrixName string `yaml:"matrixName"`
	} `yaml:"sensor"`

	// Reference frames, as raw active area dumps
	References struct {
		White     string `yaml:"white"`
		Dark      string `yaml:"dark"`
		DarkWhite string `yaml:"darkWhite"`
	} `yaml:"references"`

	// Exposure times in microseconds
	Exposure struct {
		Object uint32 `yaml:"object"`
		White  uint32 `yaml:"white"`
	} `yaml:"exposure"`

	// Processing parameters
	Processing struct {
		// Strategy is either host or accel
		Strategy string `yaml:"strategy"`

		// MaxThreads bounds the goroutines of the host strategy
		MaxThreads int `yaml:"maxThreads"`

		// Band is the initially rendered band
		Band int32 `yaml:"band"`

		// Device selects the accelerator device
		Device accel.DeviceFilter `yaml:"device"`

		// UnmixWorkGroup is the local work size of the unmixing kernel over the spatial
		// grid, empty for automatic. Each entry must divide the matching spatial dimension,
		// e.g. [3, 2] for a 3x2 grid
		UnmixWorkGroup []int `yaml:"unmixWorkGroup"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SnapshotDir receives raw snapshots
		SnapshotDir string `yaml:"snapshotDir"`

		// LogFile additionally receives all log output, if set
		LogFile string `yaml:"logFile"`
	} `yaml:"output"`

	// HTTP control server
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Sensor.Calibration = "calibration.xml"
	cfg.Sensor.MatrixName = calib.DefaultMatrixName

	cfg.References.White = filepath.Join("resources", "white_reference.raw")
	cfg.References.Dark = filepath.Join("resources", "dark_reference.raw")
	cfg.References.DarkWhite = filepath.Join("resources", "dark_reference_white.raw")

	cfg.Exposure.Object = 12500
	cfg.Exposure.White = 12500

	cfg.Processing.Strategy = StrategyAccel
	cfg.Processing.MaxThreads = runtime.NumCPU()
	cfg.Processing.Band = 0

	cfg.Output.SnapshotDir = "snapshots"

	cfg.Server.Address = "localhost:8080"

	return cfg
}

// Validate checks settings which cannot be checked by the consuming components
func (cfg *Config) Validate() error {
	if cfg.Processing.Strategy != StrategyHost && cfg.Processing.Strategy != StrategyAccel {
		return fmt.Errorf("unknown strategy %q, want %s or %s", cfg.Processing.Strategy, StrategyHost, StrategyAccel)
	}
	if cfg.Exposure.Object == 0 {
		return fmt.Errorf("object exposure must be positive")
	}
	if cfg.Processing.Band < 0 {
		return fmt.Errorf("negative band %d", cfg.Processing.Band)
	}
	if wg := cfg.Processing.UnmixWorkGroup; len(wg) != 0 && (len(wg) != 2 || wg[0] <= 0 || wg[1] <= 0) {
		return fmt.Errorf("unmix work group %v, want two positive sizes or none", wg)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
