package engine

import (
	"fmt"
	"sort"
)

// Resolver computes the static wave leveling of a workflow's checks ahead of
// any execution. It never looks at the Journal: it only reasons about the
// declared dependency DAG.
type Resolver struct {
	checks map[string]*Check
	order  []string // declaration order, surfaced by IDs
}

// NewResolver indexes checks by ID, preserving declaration order for
// IDs/reporting; wave leveling itself tie-breaks by id.
func NewResolver(checks []*Check) (*Resolver, error) {
	r := &Resolver{checks: make(map[string]*Check, len(checks)), order: make([]string, 0, len(checks))}
	for _, c := range checks {
		if _, dup := r.checks[c.ID]; dup {
			return nil, &ConfigError{Code: CodeInvalidWorkflow, Message: fmt.Sprintf("duplicate check id %q", c.ID)}
		}
		r.checks[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

// Validate checks that every dependency (including each member of a pipe
// group) refers to a declared check, and that the dependency graph is
// acyclic. It returns the first problem found.
func (r *Resolver) Validate() error {
	for _, id := range r.order {
		c := r.checks[id]
		for _, group := range c.DependencyGroups() {
			for _, dep := range group {
				if _, ok := r.checks[dep]; !ok {
					return &ConfigError{Code: CodeUnknownDep, Message: fmt.Sprintf("check %q depends on unknown check %q", id, dep), Path: []string{id, dep}}
				}
			}
		}
	}
	if cycle := r.findCycle(); cycle != nil {
		return &ConfigError{Code: CodeCycle, Message: "dependency cycle detected", Path: cycle}
	}
	return nil
}

// findCycle runs a DFS coloring search and returns the first cycle path it
// finds, or nil if the graph is acyclic. A pipe group "a|b" is treated as an
// edge from the dependent to every alternative, since a cycle through any
// alternative is still a cycle.
func (r *Resolver) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.order))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		c := r.checks[id]
		for _, group := range c.DependencyGroups() {
			for _, dep := range group {
				switch color[dep] {
				case white:
					if visit(dep) {
						return true
					}
				case gray:
					cycle = append(append([]string{}, path...), dep)
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range r.order {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// Waves computes the default-progression wave leveling: wave 0 holds every
// check with no dependencies, wave N+1 holds every check whose dependency
// groups are fully satisfied by checks in waves 0..N. Within a wave, checks
// are id-sorted for deterministic fan-out.
func (r *Resolver) Waves() [][]string {
	level := make(map[string]int, len(r.order))
	remaining := append([]string{}, r.order...)

	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0:0]
		for _, id := range remaining {
			c := r.checks[id]
			ready := true
			maxDepLevel := -1
			for _, group := range c.DependencyGroups() {
				groupReady := false
				groupLevel := -1
				for _, dep := range group {
					if lv, ok := level[dep]; ok {
						groupReady = true
						if lv > groupLevel {
							groupLevel = lv
						}
					}
				}
				if !groupReady {
					ready = false
					break
				}
				if groupLevel > maxDepLevel {
					maxDepLevel = groupLevel
				}
			}
			if ready {
				level[id] = maxDepLevel + 1
				progressed = true
			} else {
				next = append(next, id)
			}
		}
		if !progressed {
			// Validate should have caught this; defensive stop to avoid an
			// infinite loop if called without validation.
			break
		}
		remaining = next
	}

	maxLevel := -1
	for _, lv := range level {
		if lv > maxLevel {
			maxLevel = lv
		}
	}
	waves := make([][]string, maxLevel+1)
	for _, id := range r.order {
		lv, ok := level[id]
		if !ok {
			continue
		}
		waves[lv] = append(waves[lv], id)
	}
	for _, w := range waves {
		sort.Strings(w) // id-sorted within a wave for determinism
	}
	return waves
}

// Check returns the declared check for id.
func (r *Resolver) Check(id string) (*Check, bool) {
	c, ok := r.checks[id]
	return c, ok
}

// IDs returns every declared check id in declaration order.
func (r *Resolver) IDs() []string {
	return append([]string{}, r.order...)
}

// DependenciesSatisfied reports whether every dependency group of id has at
// least one member visible in the journal at cutoff.
func (r *Resolver) DependenciesSatisfied(j *Journal, id string, cutoff uint64) bool {
	c, ok := r.checks[id]
	if !ok {
		return false
	}
	for _, group := range c.DependencyGroups() {
		satisfied := false
		for _, dep := range group {
			if j.HasVisible(dep, cutoff) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}
