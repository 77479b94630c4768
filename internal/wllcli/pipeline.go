package wllcli

import (
	"fmt"
	"os"

	"github.com/worldline-vcs/wll/internal/gate"
	"github.com/worldline-vcs/wll/internal/wllconfig"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadConfiguredPipeline builds a gate.Pipeline from a hand-authored
// pipeline.yaml, resolving each named rule against a small fixed registry.
// An unrecognized rule name fails loudly rather than silently dropping it
// from the pipeline — a gate that accepts less scrutiny than the operator
// configured is worse than one that refuses to start.
func loadConfiguredPipeline(path string) (*gate.Pipeline, error) {
	config, err := wllconfig.LoadPipelineConfig(path)
	if err != nil {
		return nil, err
	}

	rules := make([]gate.PolicyRule, 0, len(config.Rules))
	for _, rc := range config.Rules {
		rule, err := buildRule(rc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return gate.NewPipeline(rules, config), nil
}

func buildRule(rc gate.RuleConfig) (gate.PolicyRule, error) {
	switch rc.Name {
	case "RequireIntent":
		return gate.RequireIntent{}, nil
	case "MaxSizeLimit":
		bytes, ok := rc.Params["bytes"]
		if !ok {
			return nil, fmt.Errorf("pipeline: MaxSizeLimit requires a \"bytes\" param")
		}
		n, ok := toInt64(bytes)
		if !ok {
			return nil, fmt.Errorf("pipeline: MaxSizeLimit \"bytes\" param must be a number, got %T", bytes)
		}
		return gate.MaxSizeLimit{Bytes: n}, nil
	default:
		return nil, fmt.Errorf("pipeline: unrecognized rule %q", rc.Name)
	}
}

// toInt64 handles the shapes a YAML-decoded number can take (int, int64,
// float64 — yaml.v3 decodes small bare integers as int).
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
