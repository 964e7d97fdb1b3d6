// Package scope parses user-supplied scope strings and resolves them
// against a Backlog into an ordered, read-only sequence of items for
// the scheduler to drive.
package scope

import (
	"strings"

	"taskforge/internal/errorsx"
	"taskforge/internal/taskmodel"
)

// Kind discriminates a parsed Scope.
type Kind int

const (
	KindAll Kind = iota
	KindPhase
	KindMilestone
	KindTask
	KindSubtask
)

// Scope is the parsed, tagged form of a scope string.
type Scope struct {
	Kind Kind
	ID   string
}

// Parse validates and tags a scope string: the literal "all" (trimmed,
// case-sensitive) or a well-formed P.M.T.S id, dispatched by depth.
func Parse(raw string) (Scope, error) {
	if strings.TrimSpace(raw) == "all" {
		return Scope{Kind: KindAll}, nil
	}
	kind, err := taskmodel.ParseID(raw)
	if err != nil {
		return Scope{}, errorsx.NewScopeParseError(raw, `"all" or P<n>(.M<n>(.T<n>(.S<n>)?)?)?`)
	}
	switch kind {
	case taskmodel.KindPhase:
		return Scope{Kind: KindPhase, ID: raw}, nil
	case taskmodel.KindMilestone:
		return Scope{Kind: KindMilestone, ID: raw}, nil
	case taskmodel.KindTask:
		return Scope{Kind: KindTask, ID: raw}, nil
	default:
		return Scope{Kind: KindSubtask, ID: raw}, nil
	}
}

// Resolve expands scope against backlog into an ordered sequence of
// items. "all" yields every Subtask in registry order; a specific id
// yields the DFS pre-order of the subtree rooted at that id (the item
// itself, then its descendants, left to right). A non-existent id
// yields an empty sequence. Traversal never mutates backlog.
func Resolve(backlog *taskmodel.Backlog, s Scope) []*taskmodel.Item {
	if s.Kind == KindAll {
		return backlog.Subtasks()
	}
	root := backlog.Find(s.ID)
	if root == nil {
		return nil
	}
	var out []*taskmodel.Item
	var visit func(*taskmodel.Item)
	visit = func(it *taskmodel.Item) {
		out = append(out, it)
		for _, c := range it.Children {
			visit(c)
		}
	}
	visit(root)
	return out
}
