package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/componentkit/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Numeric and boolean fields only
// override when the file sets them, so an explicit zero wins over a default.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if fieldSet(raw, "datasource", "workers") {
		base.DataSource.Workers = override.DataSource.Workers
	}
	if fieldSet(raw, "datasource", "max_superseded_builds") {
		base.DataSource.MaxSupersededBuilds = override.DataSource.MaxSupersededBuilds
	}
	if fieldSet(raw, "datasource", "loop_queue_size") {
		base.DataSource.LoopQueueSize = override.DataSource.LoopQueueSize
	}
	if strings.TrimSpace(override.DataSource.Sizing.Mode) != "" {
		base.DataSource.Sizing.Mode = strings.ToLower(strings.TrimSpace(override.DataSource.Sizing.Mode))
	}
	if fieldSet(raw, "datasource", "sizing", "width") {
		base.DataSource.Sizing.Width = override.DataSource.Sizing.Width
	}
	if fieldSet(raw, "datasource", "sizing", "height") {
		base.DataSource.Sizing.Height = override.DataSource.Sizing.Height
	}

	if strings.TrimSpace(override.Logging.Level) != "" {
		base.Logging.Level = strings.ToLower(strings.TrimSpace(override.Logging.Level))
	}
	if strings.TrimSpace(override.Logging.Dir) != "" {
		base.Logging.Dir = override.Logging.Dir
	}

	if fieldSet(raw, "telemetry", "tracing") {
		base.Telemetry.Tracing = override.Telemetry.Tracing
	}
	if fieldSet(raw, "telemetry", "metrics") {
		base.Telemetry.Metrics = override.Telemetry.Metrics
	}
	if strings.TrimSpace(override.Telemetry.ServiceName) != "" {
		base.Telemetry.ServiceName = override.Telemetry.ServiceName
	}

	if fieldSet(raw, "table", "width") {
		base.Table.Width = override.Table.Width
	}
	if fieldSet(raw, "table", "height") {
		base.Table.Height = override.Table.Height
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
