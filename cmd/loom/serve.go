package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/loom/a2aserver"
	"github.com/kadirpekel/loom/agentconfig"
	"github.com/kadirpekel/loom/agentloop"
	"github.com/kadirpekel/loom/auth"
	"github.com/kadirpekel/loom/message"
	"github.com/kadirpekel/loom/store"
	"github.com/kadirpekel/loom/tool"
)

// ServeCmd exposes one agent over the A2A protocol's JSON-RPC transport,
// mounted with go-chi the way pkg/transport/http_metrics_middleware.go
// mounts Hector's own HTTP surface, but against this module's
// a2aserver.Executor rather than the teacher's multi-agent HTTPServer.
type ServeCmd struct {
	Host  string `help:"Host to listen on." default:"0.0.0.0"`
	Port  int    `help:"Port to listen on." default:"8080"`
	Watch bool   `help:"Rebuild the agent whenever the config file changes, instead of requiring a restart."`

	JWKSURL  string `help:"JWKS URL to validate bearer tokens against. Leave empty to disable auth." name:"jwks-url"`
	Issuer   string `help:"Required JWT issuer, when --jwks-url is set."`
	Audience string `help:"Required JWT audience, when --jwks-url is set."`
}

func (c *ServeCmd) Run(rc *runContext) error {
	if rc.configPath == "" {
		return fmt.Errorf("loom serve: --config is required")
	}

	threads := store.NewMemoryThreadStore()
	live := new(liveAgent)
	cfg, err := live.reload(rc.ctx, rc.configPath, threads)
	if err != nil {
		return fmt.Errorf("loom serve: build agent: %w", err)
	}
	defer live.close()

	if c.Watch {
		watcher, err := agentconfig.WatchConfig(rc.ctx, rc.configPath)
		if err != nil {
			return fmt.Errorf("loom serve: watch config: %w", err)
		}
		defer watcher.Close()
		go func() {
			for range watcher.Changed {
				if newCfg, err := live.reload(rc.ctx, rc.configPath, threads); err != nil {
					slog.Error("config reload failed, keeping previous agent", "error", err)
				} else {
					slog.Info("reloaded agent config", "name", newCfg.Name)
				}
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	baseURL := "http://" + addr

	executor := a2aserver.NewExecutor(live, threadResolver(threads, live))
	handler := a2asrv.NewHandler(executor)
	jsonRPC := a2asrv.NewJSONRPCHandler(handler)
	card := a2asrv.NewStaticAgentCardHandler(buildAgentCard(cfg, baseURL))

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Handle(a2asrv.WellKnownAgentCardPath, card)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	a2aHandler := http.Handler(jsonRPC)
	if c.JWKSURL != "" {
		validator, err := auth.NewJWTValidator(c.JWKSURL, c.Issuer, c.Audience)
		if err != nil {
			return fmt.Errorf("loom serve: %w", err)
		}
		a2aHandler = validator.Middleware(a2aHandler)
		slog.Info("bearer auth enabled", "jwks_url", c.JWKSURL, "issuer", c.Issuer)
	}
	router.Handle("/a2a", a2aHandler)

	slog.Info("serving agent", "name", cfg.Name, "addr", addr)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-rc.ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// liveAgent holds the currently active built agent behind an atomic
// pointer so a config reload (see ServeCmd.Watch) can swap it out without
// racing in-flight requests, which read the pointer once per call via
// current(). It implements a2aserver.Runner by delegating to whichever
// agentloop.Loop is current at call time.
type liveAgent struct {
	ptr atomic.Pointer[agentconfig.Built]
}

func (l *liveAgent) reload(ctx context.Context, path string, threads store.ThreadStore) (*agentconfig.Config, error) {
	cfg, err := agentconfig.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	built, err := cfg.Build(ctx, agentconfig.BuildOptions{
		Registry: tool.NewRegistry(0),
		Store:    threads,
	})
	if err != nil {
		return nil, err
	}
	if old := l.ptr.Swap(built); old != nil {
		old.Cleanup()
	}
	return cfg, nil
}

func (l *liveAgent) current() *agentconfig.Built {
	return l.ptr.Load()
}

func (l *liveAgent) close() {
	if b := l.ptr.Load(); b != nil {
		b.Cleanup()
	}
}

func (l *liveAgent) StreamEvents(ctx context.Context, thread *message.Thread, opts agentloop.Options) (<-chan message.ExecutionEvent, <-chan agentloop.Final) {
	return l.current().Loop.StreamEvents(ctx, thread, opts)
}

func (l *liveAgent) Run(ctx context.Context, thread *message.Thread, opts agentloop.Options) (*message.AgentResult, error) {
	return l.current().Loop.Run(ctx, thread, opts)
}

func buildAgentCard(cfg *agentconfig.Config, baseURL string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               cfg.Name,
		Description:        cfg.Purpose,
		URL:                baseURL + "/a2a",
		Version:            orDefault(cfg.Version, "0.1.0"),
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          cfg.Name,
			Name:        cfg.Name,
			Description: cfg.Purpose,
			Tags:        []string{"general", "assistant"},
		}},
		Capabilities: a2a.AgentCapabilities{
			Streaming: true,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// threadResolver implements a2aserver.ThreadForTask: it reuses the thread
// saved under a continuing task's id, or starts a new one for a first
// message, then appends the caller's text parts as a user message.
func threadResolver(threads store.ThreadStore, live *liveAgent) a2aserver.ThreadForTask {
	return func(ctx context.Context, reqCtx *a2asrv.RequestContext) (*message.Thread, agentloop.Options, error) {
		opts := agentloop.Options{Prompt: live.current().Prompt}

		id := string(reqCtx.TaskID)
		var thread *message.Thread
		if id != "" {
			if existing, err := threads.Get(id); err == nil {
				thread = existing
			}
		}
		if thread == nil {
			if id != "" {
				thread = message.NewThreadWithID(id)
			} else {
				thread = message.NewThread()
			}
		}

		if reqCtx.Message != nil {
			text := extractText(reqCtx.Message)
			if text != "" {
				if err := thread.Add(message.Message{
					Role:    message.RoleUser,
					Content: text,
					Source:  message.Source{Kind: message.SourceUser, Name: "a2a"},
					Metrics: message.ZeroMetrics(),
				}); err != nil {
					return nil, opts, fmt.Errorf("loom serve: append incoming message: %w", err)
				}
			}
		}

		return thread, opts, nil
	}
}

// extractText concatenates every TextPart in an A2A message, the simplest
// faithful rendering of a caller's multi-part message into the plain-text
// user content this runtime's Message type carries.
func extractText(msg *a2a.Message) string {
	var parts []string
	for _, p := range msg.Parts {
		switch tp := p.(type) {
		case a2a.TextPart:
			parts = append(parts, tp.Text)
		case *a2a.TextPart:
			parts = append(parts, tp.Text)
		}
	}
	return strings.Join(parts, "\n")
}
