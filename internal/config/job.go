// Package config handles configuration structures.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/archivant/lexfetch/internal/core"
)

// ParseJobConfig parses a job configuration from JSON.
func ParseJobConfig(data []byte) (*core.JobConfig, error) {
	var jc core.JobConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("failed to parse job config: %w", err)
	}
	if err := jc.Validate(); err != nil {
		return nil, err
	}
	return &jc, nil
}

// ParseJobConfigAuto detects format (JSON/YAML) based on file extension and
// parses the job configuration accordingly.
func ParseJobConfigAuto(data []byte, filename string) (*core.JobConfig, error) {
	var jc core.JobConfig

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &jc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML job config: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &jc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON job config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &jc); err != nil {
			if err2 := yaml.Unmarshal(data, &jc); err2 != nil {
				return nil, fmt.Errorf("failed to parse job config (tried JSON and YAML): JSON: %v; YAML: %v", err, err2)
			}
		}
	}

	if err := jc.Validate(); err != nil {
		return nil, err
	}

	return &jc, nil
}
