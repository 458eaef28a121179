package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// refPrefix marks a parameter value as a reference to another task's output:
//
//	"$task:create_pr.output.number"
const refPrefix = "$task:"

// Ref is a structured reference to a key path in another task's output.
type Ref struct {
	TaskID string
	Path   []string
}

func (r Ref) String() string {
	return refPrefix + r.TaskID + ".output." + strings.Join(r.Path, ".")
}

// ParseRef parses a placeholder string. ok is false for values that are not
// placeholders at all; err is set for values that carry the prefix but are
// not well-formed.
func ParseRef(s string) (ref Ref, ok bool, err error) {
	rest, found := strings.CutPrefix(s, refPrefix)
	if !found {
		return Ref{}, false, nil
	}
	parts := strings.Split(rest, ".")
	if len(parts) < 3 || parts[1] != "output" {
		return Ref{}, true, fmt.Errorf("%w: %q", ErrMalformedRef, s)
	}
	if !validIdent(parts[0]) {
		return Ref{}, true, fmt.Errorf("%w: bad task id in %q", ErrMalformedRef, s)
	}
	for _, p := range parts[2:] {
		if p == "" {
			return Ref{}, true, fmt.Errorf("%w: empty key in %q", ErrMalformedRef, s)
		}
	}
	return Ref{TaskID: parts[0], Path: parts[2:]}, true, nil
}

// Lookup walks the reference path through a task result.
func (r Ref) Lookup(output map[string]any) (any, bool) {
	var cur any = output
	for _, key := range r.Path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// binding ties a reference to the parameter location it fills. Each Param
// element is a map key (string) or a list index (int).
type binding struct {
	Param []any
	Ref   Ref
}

// paramPath renders a parameter location as "pr.number" or "prs[0]".
func paramPath(loc []any) string {
	var b strings.Builder
	for _, el := range loc {
		switch v := el.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}

// scanRefs finds every placeholder in params, descending into nested maps
// and lists. Bindings are returned in a stable order.
func scanRefs(params map[string]any) ([]binding, error) {
	var out []binding
	var walk func(loc []any, v any) error
	walk = func(loc []any, v any) error {
		switch x := v.(type) {
		case string:
			ref, ok, err := ParseRef(x)
			if err != nil {
				return fmt.Errorf("parameter %s: %w", paramPath(loc), err)
			}
			if ok {
				out = append(out, binding{Param: loc, Ref: ref})
			}
		case map[string]any:
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := walk(append(append([]any(nil), loc...), k), x[k]); err != nil {
					return err
				}
			}
		case []any:
			for i, e := range x {
				if err := walk(append(append([]any(nil), loc...), i), e); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(nil, params); err != nil {
		return nil, err
	}
	return out, nil
}

// setParam writes value at a parameter location created by scanRefs.
func setParam(params map[string]any, loc []any, value any) {
	if len(loc) == 0 {
		return
	}
	var cur any = params
	for i, el := range loc {
		last := i == len(loc)-1
		switch c := cur.(type) {
		case map[string]any:
			k, ok := el.(string)
			if !ok {
				return
			}
			if last {
				c[k] = value
				return
			}
			cur = c[k]
		case []any:
			idx, ok := el.(int)
			if !ok || idx < 0 || idx >= len(c) {
				return
			}
			if last {
				c[idx] = value
				return
			}
			cur = c[idx]
		default:
			return
		}
	}
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
