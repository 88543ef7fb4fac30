package main

import (
	"fmt"

	"github.com/kadirpekel/loom/agentconfig"
)

// ValidateCmd parses and validates a configuration file without building
// or running anything, matching the teacher's cmd/hector validate.go
// fail-fast-before-running intent.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(rc *runContext) error {
	if rc.configPath == "" {
		return fmt.Errorf("loom validate: --config is required")
	}
	cfg, err := agentconfig.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}
	fmt.Printf("OK: agent %q (model %s) is valid\n", cfg.Name, cfg.ModelName)
	if len(cfg.MCP) > 0 {
		fmt.Printf("  %d MCP server(s) configured\n", len(cfg.MCP))
	}
	if len(cfg.Tools) > 0 {
		fmt.Printf("  tools allow-list: %v\n", cfg.Tools)
	}
	return nil
}
