// Command loom is the CLI front-end for the agent orchestration runtime.
//
// Usage:
//
//	loom run --config agent.yaml
//	loom serve --config agent.yaml --port 8080
//	loom validate --config agent.yaml
//
// Grounded on the teacher's cmd/hector/main.go kong.CLI skeleton (command
// structure, signal-driven shutdown) rewritten against this module's own
// agentconfig/agentloop/a2aserver API rather than the teacher's pkg/
// runtime/session graph.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI defines loom's top-level command set.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run an agent interactively on the terminal."`
	Serve    ServeCmd    `cmd:"" help:"Expose an agent over the A2A protocol."`
	Validate ValidateCmd `cmd:"" help:"Validate an agent configuration file."`

	Config   string `short:"c" help:"Path to agent configuration YAML." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("loom version %s\n", version)
	return nil
}

func main() {
	var cli CLI
	parser := kong.Parse(&cli,
		kong.Name("loom"),
		kong.Description("Agent orchestration runtime CLI."),
		kong.UsageOnError(),
	)

	configureLogging(cli.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	err := parser.Run(&runContext{ctx: ctx, configPath: cli.Config})
	parser.FatalIfErrorf(err)
}

// runContext carries the values every subcommand's Run(ctx *runContext)
// method needs, kong's convention for passing shared state to commands
// without a package-level global.
type runContext struct {
	ctx        context.Context
	configPath string
}

func configureLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
