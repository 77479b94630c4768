package wllconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/worldline-vcs/wll/internal/gate"
)

// LoadPipelineConfig reads a YAML-encoded gate.PipelineConfig from path.
// Pipeline configs are hand-authored by operators (unlike the JSON identity
// config above, which tools round-trip), so this uses YAML, matching how
// the rest of the retrieved corpus reaches for YAML whenever a file is
// meant to be hand-edited.
func LoadPipelineConfig(path string) (gate.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gate.PipelineConfig{}, fmt.Errorf("wllconfig: read pipeline config: %w", err)
	}
	var cfg gate.PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return gate.PipelineConfig{}, fmt.Errorf("wllconfig: parse pipeline config: %w", err)
	}
	return cfg, nil
}

// SavePipelineConfig writes cfg to path as YAML.
func SavePipelineConfig(path string, cfg gate.PipelineConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("wllconfig: marshal pipeline config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
