// Package config provides configuration loading and management for dcmvolume.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Slice assembly parameters
	Assembly struct {
		// Tolerance is the summed absolute deviation of orientation or pixel
		// spacing above which a slice collection is reported as inconsistent
		Tolerance float64 `yaml:"tolerance"`

		// StrictAxisTies turns an ambiguous through-plane axis into an error
		// instead of picking the first candidate
		StrictAxisTies bool `yaml:"strictAxisTies"`

		// Extensions lists the recognised DICOM file suffixes
		Extensions []string `yaml:"extensions"`
	} `yaml:"assembly"`

	// Volume codec parameters
	Codec struct {
		// NanReplacement, when set, replaces NaN voxels on read
		NanReplacement *float64 `yaml:"nanReplacement,omitempty"`

		// Compress gzips written volumes
		Compress bool `yaml:"compress"`
	} `yaml:"codec"`

	// Multi-file series parameters
	Series struct {
		// FrameMarker precedes the frame index digits in a file name
		FrameMarker string `yaml:"frameMarker"`

		// Extensions lists the recognised volume file suffixes
		Extensions []string `yaml:"extensions"`
	} `yaml:"series"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFile, when set, receives log output with rotation
		LogFile string `yaml:"logFile"`

		// MaxLogSize is the rotation size in megabytes
		MaxLogSize int `yaml:"maxLogSize"`

		// MaxLogAge is the retention of rotated logs in days
		MaxLogAge int `yaml:"maxLogAge"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assembly.Tolerance = 1e-6
	cfg.Assembly.StrictAxisTies = false
	cfg.Assembly.Extensions = []string{"dcm", "DCM", "ima", "IMA"}

	cfg.Codec.Compress = false

	cfg.Series.FrameMarker = "_frm-"
	cfg.Series.Extensions = []string{".nii", ".nii.gz"}

	cfg.Output.Verbose = false
	cfg.Output.MaxLogSize = 100
	cfg.Output.MaxLogAge = 30

	return cfg
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if c.Assembly.Tolerance < 0 {
		return fmt.Errorf("assembly.tolerance must be non-negative, got %g", c.Assembly.Tolerance)
	}
	if len(c.Assembly.Extensions) == 0 {
		return fmt.Errorf("assembly.extensions must not be empty")
	}
	if c.Series.FrameMarker == "" {
		return fmt.Errorf("series.frameMarker must not be empty")
	}
	if len(c.Series.Extensions) == 0 {
		return fmt.Errorf("series.extensions must not be empty")
	}
	return nil
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
