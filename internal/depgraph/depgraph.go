// Package depgraph validates the dependency DAG over Subtask ids:
// self-dependencies, cycles, and (informationally) long chains. It runs
// once at ingestion time rather than being woven into execution, unlike
// the ready-task/deadlock style seen in example DAG executors — those
// detect "stuck" graphs live during a run; this validator rejects a bad
// graph before any execution begins.
package depgraph

import (
	"taskforge/internal/errorsx"
	"taskforge/internal/taskmodel"
)

// LongChain is an informational finding: a dependency chain whose depth
// exceeds the configured threshold. It does not fail validation.
type LongChain struct {
	SubtaskID string
	Depth     int
}

// Report is the non-fatal result of a successful validation run.
type Report struct {
	LongChains []LongChain
}

const defaultLongChainThreshold = 5

// Validate builds the dependency graph over b's Subtasks and checks, in
// order: self-dependencies, cycles of length >= 2 (tri-color iterative
// DFS), then informationally reports chains deeper than threshold.
// Dependencies referencing unknown ids are treated as leaves and never
// crash detection. threshold <= 0 uses the default of 5.
func Validate(b *taskmodel.Backlog, threshold int) (Report, error) {
	if threshold <= 0 {
		threshold = defaultLongChainThreshold
	}

	subtasks := b.Subtasks()
	deps := make(map[string][]string, len(subtasks))
	for _, st := range subtasks {
		deps[st.ID] = st.Dependencies
	}

	for id, ds := range deps {
		for _, d := range ds {
			if d == id {
				return Report{}, errorsx.NewCircularDependency([]string{id, id}, id)
			}
		}
	}

	const (
		white = 0 // unvisited
		gray  = 1 // visiting (on the current DFS stack)
		black = 2 // visited, fully explored
	)
	color := make(map[string]int, len(deps))
	var stack []string

	var dfs func(id string) error
	dfs = func(id string) error {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue // unknown ids are leaves, never crash detection
			}
			switch color[dep] {
			case white:
				if err := dfs(dep); err != nil {
					return err
				}
			case gray:
				cycle := cyclePathFrom(stack, dep)
				return errorsx.NewCircularDependency(cycle, id)
			case black:
				// already fully explored via another path
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for id := range deps {
		if color[id] == white {
			if err := dfs(id); err != nil {
				return Report{}, err
			}
		}
	}

	var longChains []LongChain
	depth := make(map[string]int, len(deps))
	var chainDepth func(id string, visiting map[string]bool) int
	chainDepth = func(id string, visiting map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if visiting[id] {
			return 0 // cycle already rejected above; defensive only
		}
		visiting[id] = true
		max := 0
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			if d := chainDepth(dep, visiting); d+1 > max {
				max = d + 1
			}
		}
		delete(visiting, id)
		depth[id] = max
		return max
	}
	for id := range deps {
		d := chainDepth(id, map[string]bool{})
		if d > threshold {
			longChains = append(longChains, LongChain{SubtaskID: id, Depth: d})
		}
	}

	return Report{LongChains: longChains}, nil
}

// cyclePathFrom reconstructs the cycle ending where it started, given
// the current DFS stack and the node where the back-edge was found.
func cyclePathFrom(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			cycle := append([]string{}, stack[i:]...)
			return append(cycle, start)
		}
	}
	return append(append([]string{}, stack...), start)
}
