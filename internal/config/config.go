// Package config loads the TOML run configuration for the deid command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"deid-export/internal/override"
)

// Run contains folder run settings.
type Run struct {
	Workers   int    `toml:"workers"`
	OutputDir string `toml:"output_dir"`
	// Salt seeds hash and hashuid. Empty means a fresh salt per run.
	Salt      string `toml:"salt"`
	Recursive bool   `toml:"recursive"`
	// DateIncrement, when set, replaces date-increment in every format block.
	DateIncrement *int `toml:"date_increment"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics contains the Prometheus textfile target.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Overrides configures how the per-subject CSV table is read.
type Overrides struct {
	KeyColumn    string `toml:"key_column"`
	SubjectField string `toml:"subject_field"`
}

// Config encapsulates the run configuration.
type Config struct {
	Run       Run       `toml:"run"`
	Logging   Logging   `toml:"log"`
	Metrics   Metrics   `toml:"metrics"`
	Overrides Overrides `toml:"overrides"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Run: Run{
			Workers:   4,
			Recursive: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		Overrides: Overrides{
			KeyColumn:    override.DefaultKeyColumn,
			SubjectField: override.DefaultSubjectField,
		},
	}
}

// Load parses and validates the configuration file at path. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Run.OutputDir = strings.TrimSpace(c.Run.OutputDir)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
	c.Overrides.KeyColumn = strings.TrimSpace(c.Overrides.KeyColumn)
	if c.Overrides.KeyColumn == "" {
		c.Overrides.KeyColumn = override.DefaultKeyColumn
	}
	c.Overrides.SubjectField = strings.TrimSpace(c.Overrides.SubjectField)
	if c.Overrides.SubjectField == "" {
		c.Overrides.SubjectField = override.DefaultSubjectField
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Run.Workers < 1 {
		return errors.New("run.workers must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("log.format %q must be one of auto, console, json", c.Logging.Format)
	}
	return nil
}
