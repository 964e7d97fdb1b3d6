package agentports

import (
	"context"
	"fmt"
	"sync"

	"taskforge/internal/taskmodel"
)

// FakePlanGenerator is an in-memory PlanGenerator for tests. Configure
// per-subtask results or a blanket error via the exported fields; calls
// are recorded for assertions.
type FakePlanGenerator struct {
	mu      sync.Mutex
	Results map[string]taskmodel.PRPDocument
	Err     map[string]error
	Calls   []string
}

func NewFakePlanGenerator() *FakePlanGenerator {
	return &FakePlanGenerator{Results: map[string]taskmodel.PRPDocument{}, Err: map[string]error{}}
}

func (f *FakePlanGenerator) Generate(ctx context.Context, subtask *taskmodel.Item, backlog *taskmodel.Backlog) (taskmodel.PRPDocument, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, subtask.ID)
	f.mu.Unlock()
	if err, ok := f.Err[subtask.ID]; ok {
		return taskmodel.PRPDocument{}, err
	}
	if doc, ok := f.Results[subtask.ID]; ok {
		return doc, nil
	}
	return taskmodel.PRPDocument{TaskID: subtask.ID, Objective: "fake objective"}, nil
}

// FakeSubtaskExecutor is an in-memory SubtaskExecutor for tests.
// FailIDs forces an error return (simulating a thrown exception);
// UnsuccessfulIDs returns Success=false with no error.
type FakeSubtaskExecutor struct {
	mu              sync.Mutex
	FailIDs         map[string]string
	UnsuccessfulIDs map[string]bool
	Calls           []string
}

func NewFakeSubtaskExecutor() *FakeSubtaskExecutor {
	return &FakeSubtaskExecutor{FailIDs: map[string]string{}, UnsuccessfulIDs: map[string]bool{}}
}

func (f *FakeSubtaskExecutor) Execute(ctx context.Context, subtask *taskmodel.Item, backlog *taskmodel.Backlog) (ExecutionResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, subtask.ID)
	f.mu.Unlock()
	if msg, ok := f.FailIDs[subtask.ID]; ok {
		return ExecutionResult{}, fmt.Errorf("%s", msg)
	}
	if f.UnsuccessfulIDs[subtask.ID] {
		return ExecutionResult{Success: false}, nil
	}
	return ExecutionResult{Success: true}, nil
}

// FakePRDValidator is an in-memory PRDValidator for tests.
type FakePRDValidator struct {
	Result ValidationResult
	Err    error
}

func (f *FakePRDValidator) Validate(ctx context.Context, path string) (ValidationResult, error) {
	if f.Err != nil {
		return ValidationResult{}, f.Err
	}
	return f.Result, nil
}

// FakePRDHasher is a deterministic in-memory PRDHasher for tests: it
// returns a fixed 64-hex digest per path, or a default if unconfigured.
type FakePRDHasher struct {
	Hashes map[string]string
}

func NewFakePRDHasher() *FakePRDHasher { return &FakePRDHasher{Hashes: map[string]string{}} }

func (f *FakePRDHasher) HashPRD(ctx context.Context, path string) (string, error) {
	if h, ok := f.Hashes[path]; ok {
		return h, nil
	}
	const zero = "0000000000000000000000000000000000000000000000000000000000000000"
	return zero[:64], nil
}
