// Package agentadapters provides default, real (non-fake)
// implementations of the external agent ports for the CLI binary: a
// shell-subprocess-backed Plan Generator and Subtask Executor, a
// sha256 PRD Hasher, and a lightweight structural PRD Validator. Any
// embedder that wants an LLM-backed agent in place of these supplies
// its own agentports implementation instead.
package agentadapters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"taskforge/internal/agentports"
	"taskforge/internal/taskmodel"
)

// ShellCommand spawns a configured command once per invocation, writes
// a JSON envelope describing the subtask to its stdin, and captures
// stdout/stderr, grounded on the teacher's subprocess.Subprocess
// attached-mode lifecycle (CommandContext, piped stdin/stdout/stderr,
// timeout-triggered Stop).
type ShellCommand struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type requestEnvelope struct {
	SubtaskID    string   `json:"subtask_id"`
	Title        string   `json:"title"`
	ContextScope string   `json:"context_scope"`
	Dependencies []string `json:"dependencies"`
}

func (c ShellCommand) run(ctx context.Context, subtask *taskmodel.Item) (stdout, stderr string, err error) {
	if c.Command == "" {
		return "", "", fmt.Errorf("agentadapters: no command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req := requestEnvelope{
		SubtaskID:    subtask.ID,
		Title:        subtask.Title,
		ContextScope: subtask.ContextScope,
		Dependencies: subtask.Dependencies,
	}
	payload, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		return "", "", fmt.Errorf("agentadapters: marshal request: %w", marshalErr)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = os.Environ()

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	return outBuf.String(), errBuf.String(), runErr
}

// ShellSubtaskExecutor implements agentports.SubtaskExecutor by running
// a subprocess per subtask. A nonzero exit is reported as
// ExecutionResult{Success:false} carrying the stderr tail, never as a
// thrown error — only a failure to even launch the command (missing
// binary) is returned as an error, matching the port's "throws on
// unrecoverable failure" contract.
type ShellSubtaskExecutor struct {
	ShellCommand
}

func (e ShellSubtaskExecutor) Execute(ctx context.Context, subtask *taskmodel.Item, _ *taskmodel.Backlog) (agentports.ExecutionResult, error) {
	stdout, stderr, err := e.run(ctx, subtask)
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return agentports.ExecutionResult{Success: false, Error: strings.TrimSpace(stderr)}, nil
		}
		return agentports.ExecutionResult{}, fmt.Errorf("agentadapters: launch subtask executor: %w", err)
	}
	return agentports.ExecutionResult{Success: true, Artifacts: []string{strings.TrimSpace(stdout)}}, nil
}

// ShellPlanGenerator implements agentports.PlanGenerator the same way:
// the subprocess's stdout is treated as the plan objective text.
type ShellPlanGenerator struct {
	ShellCommand
}

func (g ShellPlanGenerator) Generate(ctx context.Context, subtask *taskmodel.Item, _ *taskmodel.Backlog) (taskmodel.PRPDocument, error) {
	stdout, stderr, err := g.run(ctx, subtask)
	if err != nil {
		return taskmodel.PRPDocument{}, fmt.Errorf("agentadapters: plan generation failed for %s: %w (%s)", subtask.ID, err, strings.TrimSpace(stderr))
	}
	return taskmodel.PRPDocument{
		TaskID:    subtask.ID,
		Objective: strings.TrimSpace(stdout),
		Context:   subtask.ContextScope,
	}, nil
}

// Sha256Hasher implements agentports.PRDHasher over file contents.
type Sha256Hasher struct{}

func (Sha256Hasher) HashPRD(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("agentadapters: read PRD: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// StructuralPRDValidator performs a lightweight structural check: a PRD
// shorter than minWords is flagged as a critical issue (too thin to
// plan against); one missing a top-level markdown heading is flagged
// as a warning only.
type StructuralPRDValidator struct {
	MinWords int
}

func (v StructuralPRDValidator) Validate(_ context.Context, path string) (agentports.ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentports.ValidationResult{}, fmt.Errorf("agentadapters: read PRD: %w", err)
	}
	text := string(data)
	minWords := v.MinWords
	if minWords <= 0 {
		minWords = 20
	}

	var issues []agentports.ValidationIssue
	wordCount := len(strings.Fields(text))
	if wordCount < minWords {
		issues = append(issues, agentports.ValidationIssue{
			Severity: "critical",
			Message:  fmt.Sprintf("PRD has only %d word(s), expected at least %d", wordCount, minWords),
		})
	}
	if !strings.Contains(text, "# ") {
		issues = append(issues, agentports.ValidationIssue{
			Severity: "warning",
			Message:  "PRD has no top-level markdown heading",
		})
	}

	result := agentports.ValidationResult{
		Valid:   len(issues) == 0,
		Issues:  issues,
		Summary: fmt.Sprintf("%d word(s), %d issue(s)", wordCount, len(issues)),
	}
	return result, nil
}
