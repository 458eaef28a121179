package alert

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/Strob0t/conductor/internal/domain/event"
)

// Condition is a predicate over an event's type and payload. All clauses
// must hold:
//
//	events: [task_failed]          type is one of these
//	equals: {task_type: create_pr} field equals value
//	above:  {latency_ms: 30000}    numeric field is strictly greater
type Condition struct {
	Events []event.Type       `json:"events" yaml:"events" toml:"events"`
	Equals map[string]any     `json:"equals,omitempty" yaml:"equals,omitempty" toml:"equals"`
	Above  map[string]float64 `json:"above,omitempty" yaml:"above,omitempty" toml:"above"`
}

// Match evaluates the condition against ev. Fields are addressed with the
// dotted paths understood by event.Event.Field.
func (c Condition) Match(ev event.Event) bool {
	if !slices.Contains(c.Events, ev.Type) {
		return false
	}
	for path, want := range c.Equals {
		got, ok := ev.Field(path)
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	for path, min := range c.Above {
		got, ok := ev.Field(path)
		if !ok {
			return false
		}
		f, ok := toFloat(got)
		if !ok || f <= min {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
