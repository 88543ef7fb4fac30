package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/loom/agentconfig"
	"github.com/kadirpekel/loom/agentloop"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/store"
	"github.com/kadirpekel/loom/tool"
)

// RunCmd starts an interactive chat session against one agent, loaded from
// --config, reading lines from stdin until /quit or /exit. Grounded on the
// teacher's cmd/hector/chat_direct.go's read-eval-print loop and command
// set, driven here against agentloop.Loop.StreamEvents instead of the
// teacher's agent.Agent.ExecuteTaskStreaming.
type RunCmd struct {
	Message string `help:"Send a single message non-interactively and exit instead of opening a REPL."`
}

func (c *RunCmd) Run(rc *runContext) error {
	if rc.configPath == "" {
		return fmt.Errorf("loom run: --config is required")
	}
	cfg, err := agentconfig.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry(0)
	built, err := cfg.Build(rc.ctx, agentconfig.BuildOptions{
		Registry: registry,
		Store:    store.NewMemoryThreadStore(),
	})
	if err != nil {
		return fmt.Errorf("loom run: build agent: %w", err)
	}
	defer built.Cleanup()

	thread := message.NewThread()

	if c.Message != "" {
		return sendOne(rc.ctx, built, thread, c.Message)
	}
	return chatLoop(rc.ctx, built, thread, cfg.Name)
}

func sendOne(ctx context.Context, built *agentconfig.Built, thread *message.Thread, input string) error {
	if err := thread.Add(message.Message{
		Role:    message.RoleUser,
		Content: input,
		Source:  message.Source{Kind: message.SourceUser, Name: "cli"},
		Metrics: message.ZeroMetrics(),
	}); err != nil {
		return err
	}
	result, err := built.Loop.Run(ctx, thread, agentloop.Options{Prompt: built.Prompt})
	if err != nil {
		return err
	}
	fmt.Println(result.Output)
	return nil
}

func chatLoop(ctx context.Context, built *agentconfig.Built, thread *message.Thread, agentName string) error {
	reader := bufio.NewReader(os.Stdin)

	// A piped (non-terminal) stdin still works line-by-line but skips the
	// banner, matching the teacher's pkg/cli/approval.go term.IsTerminal
	// check for deciding whether interactive chrome makes sense.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("\nChatting with %s. Commands: /quit, /exit.\n\n", agentName)
	}

	for {
		if interactive {
			fmt.Print("you> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		switch input {
		case "/quit", "/exit":
			return nil
		}

		if err := thread.Add(message.Message{
			Role:    message.RoleUser,
			Content: input,
			Source:  message.Source{Kind: message.SourceUser, Name: "cli"},
			Metrics: message.ZeroMetrics(),
		}); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		fmt.Printf("%s> ", agentName)
		if err := streamToStdout(ctx, built, thread); err != nil {
			fmt.Fprintln(os.Stderr, "\nerror:", err)
		}
		fmt.Println()
	}
}

// streamToStdout drives the run to completion via the events mode,
// printing assistant content deltas as they arrive and a one-line tool
// activity indicator for each dispatched call.
func streamToStdout(ctx context.Context, built *agentconfig.Built, thread *message.Thread) error {
	events, final := built.Loop.StreamEvents(ctx, thread, agentloop.Options{Prompt: built.Prompt})

	for ev := range events {
		switch ev.Type {
		case message.EventLLMStreamChunk:
			if delta, ok := ev.Data["delta"].(string); ok {
				fmt.Print(delta)
			}
		case message.EventToolSelected:
			name, _ := ev.Data["name"].(string)
			fmt.Printf("\n  [using %s]\n", name)
		case message.EventExecutionError:
			msg, _ := ev.Data["message"].(string)
			fmt.Fprintln(os.Stderr, "\n  [error]", msg)
		}
	}

	f := <-final
	return f.Err
}
