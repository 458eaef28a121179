package workflow

import (
	"fmt"
	"time"
)

// TaskSpec describes one task of a workflow template.
type TaskSpec struct {
	ID                string         `json:"id" yaml:"id" toml:"id"`
	Type              string         `json:"type" yaml:"type" toml:"type"`
	DependsOn         []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on"`
	DefaultParameters map[string]any `json:"default_parameters,omitempty" yaml:"default_parameters,omitempty" toml:"default_parameters"`
	Retries           *int           `json:"retries,omitempty" yaml:"retries,omitempty" toml:"retries"`
	Priority          *int           `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority"`
	Optional          bool           `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional"`
	TimeoutSeconds    int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds"`
}

// Timeout returns the per-task deadline override, zero when unset.
func (s TaskSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Template maps a workflow type to the tasks it is built from.
type Template struct {
	Name        string     `json:"name" yaml:"name" toml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Builtin     bool       `json:"builtin" yaml:"-" toml:"-"`
	Tasks       []TaskSpec `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Validate checks the template for structural correctness: ids, types,
// dependency references and acyclicity.
func (t *Template) Validate() error {
	if t.Name == "" {
		return ErrTemplateNameRequired
	}
	if len(t.Tasks) == 0 {
		return ErrNoTasks
	}

	ids := make(map[string]struct{}, len(t.Tasks))
	for i, s := range t.Tasks {
		if s.ID == "" {
			return fmt.Errorf("task %d: %w", i, ErrTaskIDRequired)
		}
		if !validIdent(s.ID) {
			return fmt.Errorf("task %q: %w", s.ID, ErrMalformedRef)
		}
		if s.Type == "" {
			return fmt.Errorf("task %s: %w", s.ID, ErrTaskTypeRequired)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("task %s: %w", s.ID, ErrDuplicateTask)
		}
		ids[s.ID] = struct{}{}
	}
	for _, s := range t.Tasks {
		for _, dep := range s.DependsOn {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("task %s -> %s: %w", s.ID, dep, ErrUnknownDependency)
			}
		}
	}
	return detectCycle(t.Tasks)
}

// TaskTypes returns the distinct task types used by the template.
func (t *Template) TaskTypes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range t.Tasks {
		if _, ok := seen[s.Type]; ok {
			continue
		}
		seen[s.Type] = struct{}{}
		out = append(out, s.Type)
	}
	return out
}
