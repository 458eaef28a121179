package workflow

import (
	"fmt"
	"strings"
)

// detectCycle runs a depth-first search over the dependency edges and
// reports the first cycle found, including its path.
func detectCycle(specs []TaskSpec) error {
	const (
		white = iota
		grey
		black
	)
	deps := make(map[string][]string, len(specs))
	for _, s := range specs {
		deps[s.ID] = s.DependsOn
	}

	color := make(map[string]int, len(specs))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append(append([]string(nil), stack[start:]...), dep)
				return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, s := range specs {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ancestors returns the transitive dependencies of every task.
func ancestors(specs []TaskSpec) map[string]map[string]struct{} {
	deps := make(map[string][]string, len(specs))
	for _, s := range specs {
		deps[s.ID] = s.DependsOn
	}
	out := make(map[string]map[string]struct{}, len(specs))
	var collect func(id string) map[string]struct{}
	collect = func(id string) map[string]struct{} {
		if a, ok := out[id]; ok {
			return a
		}
		a := make(map[string]struct{})
		out[id] = a
		for _, dep := range deps[id] {
			a[dep] = struct{}{}
			for up := range collect(dep) {
				a[up] = struct{}{}
			}
		}
		return a
	}
	for _, s := range specs {
		collect(s.ID)
	}
	return out
}
