// Package dag provides the directed acyclic graph over derived variable
// codes. It supports cycle detection with path reporting, deterministic
// topological sorting, and downstream closure for selective runs.
package dag

import (
	"fmt"
	"sort"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Graph is a dependency graph keyed by variable code. An edge from A to B
// means B's rule consumes A's output.
type Graph struct {
	rules    map[string]*core.Rule
	children map[string][]string // variable -> dependents
	parents  map[string][]string // variable -> dependencies (rule-produced only)
}

// CycleError reports a dependency cycle in the rule set. The path starts and
// ends at the same variable.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("rule graph contains a cycle: %v", e.Path)
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		rules:    make(map[string]*core.Rule),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddRule registers a rule's output variable as a node.
func (g *Graph) AddRule(rule *core.Rule) error {
	if _, exists := g.rules[rule.Output]; exists {
		return fmt.Errorf("duplicate rule for variable %q", rule.Output)
	}
	g.rules[rule.Output] = rule
	g.children[rule.Output] = []string{}
	g.parents[rule.Output] = []string{}
	return nil
}

// AddEdge records that child's rule consumes parent's output. Both variables
// must be rule outputs; inputs satisfied by source data are not graph nodes.
func (g *Graph) AddEdge(parent, child string) error {
	if _, ok := g.rules[parent]; !ok {
		return fmt.Errorf("unknown variable %q", parent)
	}
	if _, ok := g.rules[child]; !ok {
		return fmt.Errorf("unknown variable %q", child)
	}
	if parent == child {
		return &CycleError{Path: []string{parent, parent}}
	}
	if !contains(g.children[parent], child) {
		g.children[parent] = append(g.children[parent], child)
	}
	if !contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Rule returns the rule producing the given variable.
func (g *Graph) Rule(variable string) (*core.Rule, bool) {
	r, ok := g.rules[variable]
	return r, ok
}

// Variables returns all rule output variables, sorted.
func (g *Graph) Variables() []string {
	vars := make([]string, 0, len(g.rules))
	for v := range g.rules {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Parents returns the rule-produced dependencies of a variable.
func (g *Graph) Parents(variable string) []string {
	return g.parents[variable]
}

// Len returns the number of variables in the graph.
func (g *Graph) Len() int {
	return len(g.rules)
}

// CheckAcyclic returns a CycleError describing the first cycle found, or nil.
func (g *Graph) CheckAcyclic() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cyclePath []string

	var dfs func(v string) bool
	dfs = func(v string) bool {
		visited[v] = true
		recStack[v] = true

		for _, child := range g.children[v] {
			if !visited[child] {
				cameFrom[child] = v
				if dfs(child) {
					return true
				}
			} else if recStack[child] {
				// Reconstruct the cycle from the DFS path.
				cyclePath = []string{child}
				for curr := v; curr != child; curr = cameFrom[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{child}, cyclePath...)
				return true
			}
		}

		recStack[v] = false
		return false
	}

	// Iterate in sorted order so the reported cycle is stable across runs.
	for _, v := range g.Variables() {
		if !visited[v] {
			if dfs(v) {
				return &CycleError{Path: cyclePath}
			}
		}
	}
	return nil
}

// TopologicalSort returns the rules ordered so dependencies come before
// dependents. Independent rules keep their declaration order, which makes
// execution order reproducible across runs. Fails with a CycleError before
// returning any partial order.
func (g *Graph) TopologicalSort() ([]*core.Rule, error) {
	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(g.rules))
	for v := range g.rules {
		indegree[v] = len(g.parents[v])
	}

	var ready []string
	for v, deg := range indegree {
		if deg == 0 {
			ready = append(ready, v)
		}
	}

	result := make([]*core.Rule, 0, len(g.rules))
	for len(ready) > 0 {
		// Pick the ready rule declared earliest.
		sort.Slice(ready, func(i, j int) bool {
			return g.rules[ready[i]].Position < g.rules[ready[j]].Position
		})
		v := ready[0]
		ready = ready[1:]
		result = append(result, g.rules[v])

		for _, child := range g.children[v] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return result, nil
}

// Downstream returns the given variables plus every variable that
// transitively depends on them, sorted.
func (g *Graph) Downstream(variables []string) []string {
	affected := make(map[string]bool)

	var mark func(v string)
	mark = func(v string) {
		if affected[v] {
			return
		}
		affected[v] = true
		for _, child := range g.children[v] {
			mark(child)
		}
	}

	for _, v := range variables {
		if _, ok := g.rules[v]; ok {
			mark(v)
		}
	}

	result := make([]string, 0, len(affected))
	for v := range affected {
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}

// Subgraph returns a new graph containing only the given variables and the
// edges between them.
func (g *Graph) Subgraph(variables []string) *Graph {
	sub := New()
	keep := make(map[string]bool, len(variables))
	for _, v := range variables {
		if rule, ok := g.rules[v]; ok {
			keep[v] = true
			_ = sub.AddRule(rule)
		}
	}
	for _, v := range variables {
		for _, child := range g.children[v] {
			if keep[child] {
				_ = sub.AddEdge(v, child)
			}
		}
	}
	return sub
}

// Levels groups variables by execution level: level 0 rules depend only on
// source data, level N rules depend on at least one level N-1 rule. Each
// level is sorted. Fails on cycles.
func (g *Graph) Levels() ([][]string, error) {
	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}

	assigned := make(map[string]int)
	var level func(v string) int
	level = func(v string) int {
		if l, ok := assigned[v]; ok {
			return l
		}
		max := -1
		for _, parent := range g.parents[v] {
			if pl := level(parent); pl > max {
				max = pl
			}
		}
		assigned[v] = max + 1
		return max + 1
	}

	maxLevel := 0
	for v := range g.rules {
		if l := level(v); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for v, l := range assigned {
		levels[l] = append(levels[l], v)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
