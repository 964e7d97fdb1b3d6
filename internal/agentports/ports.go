// Package agentports defines the narrow, external-collaborator
// interfaces the core calls as opaque capabilities: plan generation,
// subtask execution, PRD validation, and PRD hashing. None of these are
// implemented here beyond in-memory fakes for tests — real
// implementations live in other packages (internal/agentadapters ships
// subprocess- and standard-library-backed ones).
package agentports

import (
	"context"

	"taskforge/internal/taskmodel"
)

// PlanGenerator produces a plan artifact for one subtask. Implementations
// may be network-bound; callers (the Research Queue) treat failures as
// propagating to awaiters without caching.
type PlanGenerator interface {
	Generate(ctx context.Context, subtask *taskmodel.Item, backlog *taskmodel.Backlog) (taskmodel.PRPDocument, error)
}

// ExecutionResult is the outcome of one Subtask Executor invocation.
type ExecutionResult struct {
	Success           bool
	ValidationResults []string
	Artifacts         []string
	Error             string
	FixAttempts       int
}

// SubtaskExecutor performs the actual work described by a subtask. A
// returned error is treated as an unrecoverable failure (Failed); a
// returned ExecutionResult with Success=false but no error is also
// Failed, distinguished only in error reporting (Error may be empty or
// carry the implementation's own message in that case).
type SubtaskExecutor interface {
	Execute(ctx context.Context, subtask *taskmodel.Item, backlog *taskmodel.Backlog) (ExecutionResult, error)
}

// ValidationIssue is one finding from the PRD validator.
type ValidationIssue struct {
	Severity string
	Message  string
}

// ValidationResult is the outcome of validating a PRD.
type ValidationResult struct {
	Valid   bool
	Issues  []ValidationIssue
	Summary string
}

// HasCritical reports whether any issue is severity "critical" — the
// condition that fails session initialization.
func (v ValidationResult) HasCritical() bool {
	for _, issue := range v.Issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}

// PRDValidator performs semantic validation of a PRD document.
type PRDValidator interface {
	Validate(ctx context.Context, path string) (ValidationResult, error)
}

// PRDHasher computes a deterministic hash over a PRD file's contents.
// The Session Store uses the first 12 hex characters of the result as
// the session identity suffix.
type PRDHasher interface {
	HashPRD(ctx context.Context, path string) (string, error)
}
