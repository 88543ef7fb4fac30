package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RegistryError mirrors tools.ToolRegistryError's shape: component/action/
// message/cause, kept because the teacher's error formatting is already
// informative in logs and diagnostics.
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool registry: %s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("tool registry: %s: %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Registry holds every tool an Agent Loop run may call, whether backed by a
// local Go function or proxied from an MCP server (the mcp package
// registers its discovered tools into a Registry the same way a local tool
// would be registered).
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]Entry
	DefaultTimeout time.Duration
}

// NewRegistry returns an empty registry with the given default per-call
// timeout, applied to any Declaration that leaves Timeout unset.
func NewRegistry(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Registry{entries: make(map[string]Entry), DefaultTimeout: defaultTimeout}
}

// Register adds a tool under decl.Name. impl must be a PlainFunc,
// ContextualFunc, or a function value with one of those two signatures.
// Re-registering an existing name replaces it, matching the teacher's
// "last registration wins for local tools, named conflicts skipped for
// discovery" split — Register is the explicit path and always wins.
func (r *Registry) Register(decl Declaration, impl any) error {
	if decl.Name == "" {
		return &RegistryError{Action: "Register", Message: "tool name cannot be empty"}
	}
	// Timeout is optional (nil = absent, defaults to the registry's
	// DefaultTimeout); an explicit zero or negative value is always a
	// caller mistake and rejected outright (spec.md §8 boundary behavior).
	if decl.Timeout != nil && *decl.Timeout <= 0 {
		return &RegistryError{Action: "Register", Message: decl.Name + ": timeout must be positive or absent, got " + decl.Timeout.String()}
	}

	entry, err := newEntry(decl, impl)
	if err != nil {
		return &RegistryError{Action: "Register", Message: decl.Name, Err: err}
	}
	if entry.Timeout == nil {
		d := r.DefaultTimeout
		entry.Timeout = &d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[decl.Name] = entry
	return nil
}

// RegisterBatch registers every declaration/impl pair, in order, returning
// the first error encountered without registering the rest. Pairs
// registered before the failing one stay registered.
func (r *Registry) RegisterBatch(decls []Declaration, impls []any) error {
	if len(decls) != len(impls) {
		return &RegistryError{Action: "RegisterBatch", Message: "declarations and implementations length mismatch"}
	}
	for i := range decls {
		if err := r.Register(decls[i], impls[i]); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a tool by name. Used when an MCP server disconnects.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// RemovePrefixed deletes every tool whose name begins with prefix, used when
// an MCP server's tools were registered with a server-name prefix and that
// server goes away.
func (r *Registry) RemovePrefixed(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.entries {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			delete(r.entries, name)
		}
	}
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Declarations returns every registered tool's Declaration, sorted by name,
// for sending to a provider as the available tool list.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Declaration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many tools are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

