// Package executor implements the Concurrent Executor: it drives a
// vector of Subtasks to completion under three constraints —
// dependency-respecting release, bounded parallelism, and per-subtask
// failure isolation — by iteratively forming batches of runnable
// subtasks until none remain.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskforge/internal/agentports"
	"taskforge/internal/errorsx"
	"taskforge/internal/logging"
	"taskforge/internal/metrics"
	"taskforge/internal/orchestrator"
	"taskforge/internal/research"
	"taskforge/internal/sessionstore"
	"taskforge/internal/taskmodel"
)

// Config controls the executor's concurrency and backpressure behavior.
type Config struct {
	Enabled            bool
	MaxConcurrency     int
	PRPGenerationLimit int
	ResourceThreshold  float64 // in (0,1]; 0 disables the backpressure check
	MemoryCeilingBytes uint64
}

// BatchSummary is the per-batch report logged after each barrier.
type BatchSummary struct {
	FailureCount int
	Total        int
}

// Executor runs Subtasks concurrently against a Session Store.
type Executor struct {
	Store    *sessionstore.Store
	Runner   agentports.SubtaskExecutor
	Research *research.Queue
	Logger   logging.Logger
	Config   Config

	// memoryFraction is overridable in tests; defaults to
	// metrics.ProcessMemoryFraction.
	memoryFraction func(ceilingBytes uint64) float64
}

// New constructs an Executor. logger may be nil (discarded).
func New(store *sessionstore.Store, runner agentports.SubtaskExecutor, researchQueue *research.Queue, logger logging.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		Store:          store,
		Runner:         runner,
		Research:       researchQueue,
		Logger:         logger,
		Config:         cfg,
		memoryFraction: metrics.ProcessMemoryFraction,
	}
}

// Cancel is a caller-provided cancellation signal: when Done is closed,
// no further batch formation begins; in-flight subtasks run to
// completion and their results are still recorded.
type Cancel struct {
	Done <-chan struct{}
}

// Run executes subtasks drawn from backlog to completion, forming
// batches of every Planned subtask whose dependencies are all Complete.
// scopeIDs, if non-nil, restricts which subtasks the executor will ever
// select into a batch — subtasks outside the set are left untouched even
// if Planned, though they still count (via backlog.Find) as satisfied or
// unsatisfied dependencies for in-scope subtasks. A nil or empty
// scopeIDs means every subtask in backlog is in scope. Returns a
// DeadlockError if in-scope Planned subtasks remain but no batch can be
// formed.
func (e *Executor) Run(ctx context.Context, backlog *taskmodel.Backlog, cancel Cancel, scopeIDs map[string]bool) ([]BatchSummary, error) {
	if e.Config.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("invalid configuration: maxConcurrency must be >= 1, got %d", e.Config.MaxConcurrency)
	}

	var summaries []BatchSummary
	for {
		select {
		case <-cancel.Done:
			return summaries, nil
		default:
		}

		batch := selectBatch(backlog, scopeIDs)
		if len(batch) == 0 {
			if anyPlanned(backlog, scopeIDs) {
				blocked := orchestrator.BlockingDependenciesMap(backlog)
				for id, blockers := range blocked {
					e.Logger.Warn("blocked subtask %s: missing %v", id, blockers)
				}
				metrics.DeadlocksDetected.Inc()
				_ = e.Store.FlushUpdates(ctx) // persist whatever progress exists before the deadlock failure
				return summaries, errorsx.NewDeadlock(blocked)
			}
			return summaries, nil
		}

		summary := e.runBatch(ctx, backlog, batch)
		summaries = append(summaries, summary)
		metrics.BatchesFormed.Inc()
		if summary.FailureCount > 0 {
			metrics.BatchFailures.Add(float64(summary.FailureCount))
		}

		if err := e.Store.FlushUpdates(ctx); err != nil {
			return summaries, err
		}
		e.Logger.Info("batch complete: failures=%d total=%d", summary.FailureCount, summary.Total)
	}
}

// selectBatch returns every in-scope Planned subtask whose dependencies
// are all Complete, in deterministic registry (DFS pre-order) order.
// Dependency satisfaction is always checked against the full backlog, so
// an out-of-scope dependency that is already Complete still unblocks an
// in-scope subtask.
func selectBatch(backlog *taskmodel.Backlog, scopeIDs map[string]bool) []*taskmodel.Item {
	var batch []*taskmodel.Item
	for _, st := range backlog.Subtasks() {
		if len(scopeIDs) > 0 && !scopeIDs[st.ID] {
			continue
		}
		if st.Status != taskmodel.StatusPlanned {
			continue
		}
		ready := true
		for _, depID := range st.Dependencies {
			dep := backlog.Find(depID)
			if dep == nil || dep.Status != taskmodel.StatusComplete {
				ready = false
				break
			}
		}
		if ready {
			batch = append(batch, st)
		}
	}
	return batch
}

func anyPlanned(backlog *taskmodel.Backlog, scopeIDs map[string]bool) bool {
	for _, st := range backlog.Subtasks() {
		if len(scopeIDs) > 0 && !scopeIDs[st.ID] {
			continue
		}
		if st.Status == taskmodel.StatusPlanned {
			return true
		}
	}
	return false
}

// runBatch launches every subtask in batch onto a semaphore of capacity
// MaxConcurrency, grounded on the teacher's executeDispatches
// (sem := make(chan struct{}, maxConcurrent), sync.WaitGroup, per-task
// mutex for result aggregation). It awaits the full batch before
// returning (the batch barrier).
func (e *Executor) runBatch(ctx context.Context, backlog *taskmodel.Backlog, batch []*taskmodel.Item) BatchSummary {
	sem := make(chan struct{}, e.Config.MaxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := BatchSummary{Total: len(batch)}

	for _, st := range batch {
		wg.Add(1)
		go func(st *taskmodel.Item) {
			defer wg.Done()

			e.waitForResourceBudget(ctx)

			sem <- struct{}{}
			defer func() { <-sem }()

			failed := e.runOne(ctx, backlog, st)

			mu.Lock()
			if failed {
				summary.FailureCount++
			}
			mu.Unlock()
		}(st)
	}

	wg.Wait()
	return summary
}

// runOne executes a single subtask: set Implementing, invoke the
// external Subtask Executor, then set Complete or Failed. Exceptions
// (returned errors) never escape this scope — they are captured as a
// Failed status instead of propagating.
func (e *Executor) runOne(ctx context.Context, backlog *taskmodel.Backlog, st *taskmodel.Item) (failed bool) {
	if err := e.Store.UpdateItemStatus(st.ID, taskmodel.StatusImplementing); err != nil {
		e.Logger.Error("failed to mark %s Implementing: %v", st.ID, err)
		return true
	}

	if e.Research != nil {
		e.Research.Enqueue(ctx, st, backlog)
		if doc, err := e.Research.WaitForPRP(ctx, st.ID); err == nil {
			_ = doc // plan is available to a real Subtask Executor via its own lookup; the core treats it as opaque
		}
	}

	result, err := e.Runner.Execute(ctx, st, backlog)
	switch {
	case err != nil:
		e.Logger.Warn("subtask %s failed: %v", st.ID, err)
		_ = e.Store.UpdateItemStatus(st.ID, taskmodel.StatusFailed)
		return true
	case !result.Success:
		e.Logger.Warn("subtask %s completed unsuccessfully with no error", st.ID)
		_ = e.Store.UpdateItemStatus(st.ID, taskmodel.StatusFailed)
		return true
	default:
		_ = e.Store.UpdateItemStatus(st.ID, taskmodel.StatusComplete)
		return false
	}
}

// waitForResourceBudget polls the process-memory indicator before a
// subtask launches; if usage exceeds ResourceThreshold it sleeps and
// re-polls until below threshold or a soft bound of 60s elapses, after
// which it proceeds regardless. ResourceThreshold<=0 disables the check
// (an always-pass poll), matching the spec's note that an
// implementation without portable process-memory inspection may
// substitute an always-pass poll without changing contracts.
func (e *Executor) waitForResourceBudget(ctx context.Context) {
	if e.Config.ResourceThreshold <= 0 || e.Config.MemoryCeilingBytes == 0 {
		return
	}
	deadline := time.Now().Add(60 * time.Second)
	for {
		fraction := e.memoryFraction(e.Config.MemoryCeilingBytes)
		if fraction <= e.Config.ResourceThreshold || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}
