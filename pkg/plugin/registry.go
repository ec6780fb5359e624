package plugin

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

type entry struct {
	tool   Tool
	source string
}

// Registry maps tool names to tools. It is safe for concurrent use; the
// script watcher mutates it while jobs look tools up.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a builtin tool.
func (r *Registry) Register(name string, t Tool) error {
	return r.register(name, t, SourceBuiltin, false)
}

// MustRegister is Register for static wiring; it panics on conflict.
func (r *Registry) MustRegister(name string, t Tool) {
	if err := r.Register(name, t); err != nil {
		panic(err)
	}
}

// Replace registers t under name, overwriting a previous script tool.
// Builtins cannot be replaced.
func (r *Registry) Replace(name string, t Tool, source string) error {
	return r.register(name, t, source, true)
}

func (r *Registry) register(name string, t Tool, source string, replace bool) error {
	name = strings.TrimSpace(name)
	if name == "" || t == nil {
		return fmt.Errorf("plugin: register needs a name and a tool")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.tools[name]; ok {
		if !replace || prev.source == SourceBuiltin {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
	}
	r.tools[name] = entry{tool: t, source: source}
	return nil
}

// Unregister removes name. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// UnregisterSource removes name only if it was registered from source.
func (r *Registry) UnregisterSource(name, source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tools[name]
	if !ok || e.source != source {
		return false
	}
	delete(r.tools, name)
	return true
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Describe lists every tool with its description.
func (r *Registry) Describe() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.tools))
	for name, e := range r.tools {
		info := Info{Name: name, Source: e.source}
		if d, ok := e.tool.(Describer); ok {
			info.Description = d.Description()
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Expand resolves tool selectors into concrete names. Plain names pass
// through untouched, even when unregistered, so the job records them as
// failures. Glob selectors ("dns_*", "*") expand to the sorted registered
// names they match. The result keeps first-seen order without duplicates.
func (r *Registry) Expand(selectors []string) ([]string, error) {
	var names []string
	seen := make(map[string]bool, len(selectors))
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	var registered []string
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if !isPattern(sel) {
			add(sel)
			continue
		}
		g, err := glob.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, sel, err)
		}
		if registered == nil {
			registered = r.Names()
		}
		for _, n := range registered {
			if g.Match(n) {
				add(n)
			}
		}
	}
	return names, nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
