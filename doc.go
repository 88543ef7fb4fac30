// Package loom is an agent orchestration runtime: it drives a thread of
// messages through a chat-completion provider, dispatches the tool calls
// the model asks for, appends the results back into the thread, and
// repeats until the model produces a terminal answer or a bounded
// iteration limit is reached.
//
// # Quick start
//
// Build a registry, register a tool, wire a provider, and run a loop:
//
//	registry := tool.NewRegistry(30 * time.Second)
//	registry.Register(tool.Declaration{Name: "calculate", ...}, tool.PlainFunc(calc))
//
//	provider, _ := llm.New(llm.Config{Type: "openai", APIKey: os.Getenv("OPENAI_API_KEY")})
//	loop := agentloop.New(provider, registry, factory.New("assistant", "gpt-4o-mini"))
//	loop.Model = "gpt-4o-mini"
//
//	thread := message.NewThread()
//	thread.Add(message.Message{Role: message.RoleUser, Content: "What is 5+3?"})
//	result, err := loop.Run(context.Background(), thread, agentloop.Options{})
//
// Or load an agent declaratively from YAML via package agentconfig, and run
// it from the command line with cmd/loom.
//
// # Components
//
//   - message: the Thread/Message/ToolCall value types every other package
//     consumes and produces
//   - tool: the tool registry and concurrent dispatcher
//   - mcp: exposes remote Model Context Protocol servers' tools as local
//     tool.Registry entries
//   - llm: the Completion Handler, one call to a chat-completion provider
//   - factory: consistent message construction with source/timing metadata
//   - stream + agentloop: the four streaming surfaces (none, events, raw,
//     vercel) layered over one internal state machine
//   - a2aserver: maps the loop's event stream onto the Agent-to-Agent wire
//     protocol for exposing an agent as an A2A task
//   - agentconfig: YAML ingestion and wiring for all of the above
//   - store: the thread/file persistence interfaces, with in-memory and
//     durable reference implementations
//
// # Scope
//
// This module is the execution core: it does not speak HTTP itself, does
// not implement a UI, and does not own any particular LLM provider's wire
// protocol beyond the adapters in package llm.
package loom
