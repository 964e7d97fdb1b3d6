// Package orchestrator implements the Scheduler: it materializes a scope
// into an execution queue at construction time and drives it one item at
// a time via processNext, promoting parent status as it goes.
//
// Sequential processNext is documented and tested as DFS pre-order only
// — it does not consult the dependency graph. Callers that need
// dependency-respecting execution must use the Concurrent Executor
// (internal/executor). This is a deliberate scope decision, not an
// oversight: see SPEC_FULL.md's Open Question resolutions.
package orchestrator

import (
	"context"

	"taskforge/internal/agentports"
	"taskforge/internal/logging"
	"taskforge/internal/research"
	"taskforge/internal/scope"
	"taskforge/internal/sessionstore"
	"taskforge/internal/taskmodel"
)

// Scheduler drives a materialized execution queue against a Session
// Store, one item at a time.
type Scheduler struct {
	Store    *sessionstore.Store
	Executor agentports.SubtaskExecutor
	Research *research.Queue
	Logger   logging.Logger

	executionQueue []*taskmodel.Item
	currentItemID  *string
}

// New constructs a Scheduler whose executionQueue is the eager DFS
// pre-order resolution of scope against the store's current backlog, at
// construction time — no recursion or re-entrancy happens at runtime;
// DFS pre-order is a property of the queue, not the driver loop.
func New(store *sessionstore.Store, sc scope.Scope, executor agentports.SubtaskExecutor, researchQueue *research.Queue, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	backlog := &taskmodel.Backlog{}
	if state := store.Current(); state != nil {
		backlog = &state.TaskRegistry
	}
	return &Scheduler{
		Store:          store,
		Executor:       executor,
		Research:       researchQueue,
		Logger:         logger,
		executionQueue: scope.Resolve(backlog, sc),
	}
}

// CurrentItemID returns the id of the item most recently popped, or nil
// before the first call to ProcessNext or after the queue is exhausted.
func (s *Scheduler) CurrentItemID() *string { return s.currentItemID }

// Remaining returns the number of items left in the execution queue.
func (s *Scheduler) Remaining() int { return len(s.executionQueue) }

// ProcessNext pops the front item and dispatches on its variant. It
// returns false once the queue is exhausted.
//
// Phase/Milestone/Task: set status Implementing. That is the entire
// effect — children are already in the queue if scope included them.
//
// Subtask: set Researching, obtain the plan via the Research Queue, set
// Implementing, invoke the external Subtask Executor with the subtask
// and full backlog; on success set Complete, on failure set Failed and
// log the error message.
//
// After dispatch, the store's pending status updates are flushed to disk.
func (s *Scheduler) ProcessNext(ctx context.Context) (bool, error) {
	if len(s.executionQueue) == 0 {
		s.currentItemID = nil
		return false, nil
	}
	item := s.executionQueue[0]
	s.executionQueue = s.executionQueue[1:]
	id := item.ID
	s.currentItemID = &id

	s.Logger.Debug("processNext: dispatching %s (%s)", item.ID, item.Kind)

	if item.Kind != taskmodel.KindSubtask {
		if err := s.Store.UpdateItemStatus(item.ID, taskmodel.StatusImplementing); err != nil {
			return true, err
		}
		return true, s.Store.FlushUpdates(ctx)
	}

	if err := s.runSubtask(ctx, item); err != nil {
		return true, err
	}
	return true, s.Store.FlushUpdates(ctx)
}

func (s *Scheduler) runSubtask(ctx context.Context, item *taskmodel.Item) error {
	if err := s.Store.UpdateItemStatus(item.ID, taskmodel.StatusResearching); err != nil {
		return err
	}

	backlog := &taskmodel.Backlog{}
	if state := s.Store.Current(); state != nil {
		backlog = &state.TaskRegistry
	}

	if s.Research != nil {
		s.Research.Enqueue(ctx, item, backlog)
		if _, err := s.Research.WaitForPRP(ctx, item.ID); err != nil {
			s.Logger.Warn("plan unavailable for %s, proceeding without prefetch: %v", item.ID, err)
		}
	}

	if err := s.Store.UpdateItemStatus(item.ID, taskmodel.StatusImplementing); err != nil {
		return err
	}

	result, err := s.Executor.Execute(ctx, item, backlog)
	if err != nil {
		s.Logger.Warn("subtask %s failed: %v", item.ID, err)
		return s.Store.UpdateItemStatus(item.ID, taskmodel.StatusFailed)
	}
	if !result.Success {
		s.Logger.Warn("subtask %s completed without success and no error", item.ID)
		return s.Store.UpdateItemStatus(item.ID, taskmodel.StatusFailed)
	}
	return s.Store.UpdateItemStatus(item.ID, taskmodel.StatusComplete)
}

// BlockingDependencies returns, for a Subtask id, the ids of its
// declared dependencies that are not yet Complete. Used by the
// Concurrent Executor's deadlock gate.
func (s *Scheduler) BlockingDependencies(backlog *taskmodel.Backlog, subtaskID string) []string {
	item := backlog.Find(subtaskID)
	if item == nil {
		return nil
	}
	var blocking []string
	for _, depID := range item.Dependencies {
		dep := backlog.Find(depID)
		if dep == nil || dep.Status != taskmodel.StatusComplete {
			blocking = append(blocking, depID)
		}
	}
	return blocking
}

// BlockingDependenciesMap runs BlockingDependencies for every still-Planned
// subtask in backlog, returning only those with at least one blocker.
func BlockingDependenciesMap(backlog *taskmodel.Backlog) map[string][]string {
	blocked := map[string][]string{}
	for _, st := range backlog.Subtasks() {
		if st.Status != taskmodel.StatusPlanned {
			continue
		}
		var blockers []string
		for _, depID := range st.Dependencies {
			dep := backlog.Find(depID)
			if dep == nil || dep.Status != taskmodel.StatusComplete {
				blockers = append(blockers, depID)
			}
		}
		if len(blockers) > 0 {
			blocked[st.ID] = blockers
		}
	}
	return blocked
}
