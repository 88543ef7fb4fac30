package agentconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads, env-expands, and validates a Config from a YAML file,
// matching config/config.go's LoadConfig entry point.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: read %s: %w", path, err)
	}
	return LoadConfigFromString(string(data))
}

// LoadConfigFromString parses yamlContent the same way LoadConfig does,
// matching config/config.go's LoadConfigFromString.
func LoadConfigFromString(yamlContent string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, fmt.Errorf("agentconfig: parse yaml: %w", err)
	}
	raw = expandEnvVarsInData(normalizeYAMLMaps(raw))

	expanded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: re-marshal expanded config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("agentconfig: decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agentconfig: validate: %w", err)
	}
	return &cfg, nil
}

// normalizeYAMLMaps recursively converts yaml.v3's map[string]interface{}
// decode result (it already produces string keys, unlike yaml.v2's
// map[interface{}]interface{}) into the map[string]any/[]any shape
// expandEnvVarsInData expects; kept as an explicit pass so this stays
// correct if the YAML library's decode shape ever changes.
func normalizeYAMLMaps(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLMaps(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLMaps(val)
		}
		return out
	default:
		return v
	}
}
