package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/logging"
)

// Sizing modes for laying out rows.
const (
	SizingWidth     = "width"
	SizingFixed     = "fixed"
	SizingUnbounded = "unbounded"
)

// Default configuration values exported for documentation and validation
const (
	DefaultMaxSupersededBuilds = 3
	DefaultLoopQueueSize       = 128
	DefaultLogLevel            = string(logging.LevelInfo)
	DefaultServiceName         = "componentkit"
	DefaultTableWidth          = 40
	DefaultTableHeight         = 12
)

// Config represents the complete componentkit configuration
type Config struct {
	DataSource DataSourceConfig `yaml:"datasource"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Table      TableConfig      `yaml:"table"`
}

// DataSourceConfig tunes the changeset pipeline.
type DataSourceConfig struct {
	// Workers bounds concurrent component builds. 0 means GOMAXPROCS.
	Workers             int          `yaml:"workers"`
	MaxSupersededBuilds int          `yaml:"max_superseded_builds"`
	LoopQueueSize       int          `yaml:"loop_queue_size"`
	Sizing              SizingConfig `yaml:"sizing"`
}

// SizingConfig describes the constraints rows are laid out against.
type SizingConfig struct {
	// Mode is width (fixed width, free height), fixed, or unbounded.
	Mode string `yaml:"mode"`
	// Width and Height override the table size; 0 means use the table's.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoggingConfig controls the event log.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Dir receives events.jsonl and errors.jsonl. Empty logs to stderr.
	Dir string `yaml:"dir"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Tracing     bool   `yaml:"tracing"`
	ServiceName string `yaml:"service_name"`
	// Metrics dumps the Prometheus registry when the demo exits.
	Metrics bool `yaml:"metrics"`
}

// TableConfig is the size of the rendered table.
type TableConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DataSource: DataSourceConfig{
			Workers:             runtime.GOMAXPROCS(0),
			MaxSupersededBuilds: DefaultMaxSupersededBuilds,
			LoopQueueSize:       DefaultLoopQueueSize,
			Sizing:              SizingConfig{Mode: SizingWidth},
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Table: TableConfig{
			Width:  DefaultTableWidth,
			Height: DefaultTableHeight,
		},
	}
}

// Load loads the user config (~/.componentkit/config.yaml), then the project
// config (./.componentkit/config.yaml), then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".componentkit", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "loading user config").
				WithContext("path", userConfigPath)
		}
	}

	projectConfigPath := filepath.Join(".", ".componentkit", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "loading project config").
			WithContext("path", projectConfigPath)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, path); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeConfigParse) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "loading config").
			WithContext("path", path)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverridesForTest exposes env override logic for tests without file I/O.
func ApplyEnvOverridesForTest(cfg *Config) {
	applyEnvOverrides(cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CK_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CK_LOG_DIR")); v != "" {
		cfg.Logging.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("CK_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DataSource.Workers = n
		}
	}
	if val, ok := envBool("CK_TRACING"); ok {
		cfg.Telemetry.Tracing = val
	}
	cfg.Logging.Dir = expandHomeDir(cfg.Logging.Dir)
}

func envBool(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", c.Logging.Level, "must be debug, info, warn, or error")
	}
	if c.DataSource.Workers < 0 {
		return invalid("datasource.workers", c.DataSource.Workers, "must not be negative")
	}
	if c.DataSource.MaxSupersededBuilds < 0 {
		return invalid("datasource.max_superseded_builds", c.DataSource.MaxSupersededBuilds, "must not be negative")
	}
	if c.DataSource.LoopQueueSize < 0 {
		return invalid("datasource.loop_queue_size", c.DataSource.LoopQueueSize, "must not be negative")
	}
	switch c.DataSource.Sizing.Mode {
	case SizingWidth, SizingFixed, SizingUnbounded:
	default:
		return invalid("datasource.sizing.mode", c.DataSource.Sizing.Mode, "valid: width, fixed, unbounded")
	}
	if c.DataSource.Sizing.Width < 0 || c.DataSource.Sizing.Height < 0 {
		return invalid("datasource.sizing", c.DataSource.Sizing, "dimensions must not be negative")
	}
	if c.Table.Width <= 0 || c.Table.Height <= 0 {
		return invalid("table", c.Table, "width and height must be positive")
	}
	if c.Telemetry.Tracing && strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return invalid("telemetry.service_name", c.Telemetry.ServiceName, "required when tracing is enabled")
	}
	return nil
}

func invalid(field string, value any, msg string) error {
	return apperrors.New(apperrors.ErrCodeConfigInvalid, "invalid "+field+": "+msg).
		WithContext("field", field).
		WithContext("value", value)
}

// Constraints returns the layout constraints for rows of the configured
// table. One column is reserved for the selection gutter.
func (c *Config) Constraints() layout.Constraints {
	s := c.DataSource.Sizing
	width := s.Width
	if width == 0 {
		width = max(c.Table.Width-1, 0)
	}
	height := s.Height
	if height == 0 {
		height = c.Table.Height
	}
	switch s.Mode {
	case SizingFixed:
		return layout.Tight(width, height)
	case SizingUnbounded:
		return layout.Unbounded()
	default:
		return layout.TightWidth(width)
	}
}

// LogLevel returns the parsed log level, falling back to info.
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}
