package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the queryable set of workflow templates. Loaded templates
// shadow builtins of the same name.
type Registry struct {
	mu      sync.RWMutex
	builtin map[string]Template
	loaded  map[string]Template
}

// NewRegistry returns a registry whose builtin set is templates.
// Invalid templates are skipped and the first problem is returned.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{
		builtin: make(map[string]Template, len(templates)),
		loaded:  make(map[string]Template),
	}
	var firstErr error
	for i := range templates {
		t := templates[i]
		if err := t.Validate(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("template %s: %w", t.Name, err)
			}
			continue
		}
		t.Builtin = true
		r.builtin[t.Name] = t
	}
	return r, firstErr
}

// Get returns the template registered under name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.loaded[name]; ok {
		return t, true
	}
	t, ok := r.builtin[name]
	return t, ok
}

// List returns the effective templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := make(map[string]Template, len(r.builtin)+len(r.loaded))
	for n, t := range r.builtin {
		merged[n] = t
	}
	for n, t := range r.loaded {
		merged[n] = t
	}
	out := make([]Template, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Put validates and stores a non-builtin template.
func (r *Registry) Put(t Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}
	t.Builtin = false
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[t.Name] = t
	return nil
}

// ReplaceLoaded swaps the whole non-builtin set. Nothing changes if any
// template is invalid.
func (r *Registry) ReplaceLoaded(templates []Template) error {
	next := make(map[string]Template, len(templates))
	for i := range templates {
		t := templates[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %s: %w", t.Name, err)
		}
		t.Builtin = false
		next[t.Name] = t
	}
	r.mu.Lock()
	r.loaded = next
	r.mu.Unlock()
	return nil
}

// TaskTypes returns every task type used by any template.
func (r *Registry) TaskTypes() []string {
	seen := make(map[string]struct{})
	for _, t := range r.List() {
		for _, tt := range t.TaskTypes() {
			seen[tt] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tt := range seen {
		out = append(out, tt)
	}
	sort.Strings(out)
	return out
}
