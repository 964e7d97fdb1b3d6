// Package research implements the bounded prefetch queue that overlaps
// plan-generation latency with execution: it dedups requests, bounds
// in-flight generation, and caches completed plans for the executor to
// consume without waiting.
package research

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskforge/internal/agentports"
	"taskforge/internal/logging"
	"taskforge/internal/taskmodel"
)

const defaultMaxSize = 3
const defaultCacheSize = 256

// Stats summarizes the queue's current occupancy.
type Stats struct {
	Queued      int
	Researching int
	Cached      int
}

// Queue is the Research Queue component. It is safe for concurrent use.
type Queue struct {
	Generator agentports.PlanGenerator
	MaxSize   int
	Logger    logging.Logger

	mu          sync.Mutex
	pending     []pendingEntry
	researching map[string]*future
	results     *lru.Cache[string, taskmodel.PRPDocument]
}

type pendingEntry struct {
	subtask *taskmodel.Item
	backlog *taskmodel.Backlog
}

// New constructs a Queue bounded to maxSize in-flight generations
// (<=0 uses the default of 3), backed by an LRU completion cache,
// grounded on the teacher's internal/infra/llm.newLLMCache use of
// hashicorp/golang-lru/v2.
func New(gen agentports.PlanGenerator, maxSize int, logger logging.Logger) *Queue {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	cache, err := lru.New[string, taskmodel.PRPDocument](defaultCacheSize)
	if err != nil {
		// lru.New only errors on size<=0, which cannot happen here.
		panic(fmt.Sprintf("research: unexpected lru cache init error: %v", err))
	}
	return &Queue{
		Generator:   gen,
		MaxSize:     maxSize,
		Logger:      logger,
		researching: map[string]*future{},
		results:     cache,
	}
}

// Enqueue requests a plan for subtask. Already-cached or in-flight
// subtasks are a no-op (deduplication).
func (q *Queue) Enqueue(ctx context.Context, subtask *taskmodel.Item, backlog *taskmodel.Backlog) {
	q.mu.Lock()
	if _, cached := q.results.Get(subtask.ID); cached {
		q.mu.Unlock()
		return
	}
	if _, inflight := q.researching[subtask.ID]; inflight {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, pendingEntry{subtask: subtask, backlog: backlog})
	q.mu.Unlock()

	q.processNext(ctx)
}

// processNext launches generation for the head of the queue if the
// in-flight bound allows, then chains itself again on resolution so the
// queue continues to drain.
func (q *Queue) processNext(ctx context.Context) {
	q.mu.Lock()
	if len(q.researching) >= q.MaxSize || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	entry := q.pending[0]
	q.pending = q.pending[1:]
	f := newFuture()
	q.researching[entry.subtask.ID] = f
	q.mu.Unlock()

	go func() {
		doc, err := q.Generator.Generate(ctx, entry.subtask, entry.backlog)
		q.mu.Lock()
		delete(q.researching, entry.subtask.ID)
		if err != nil {
			q.mu.Unlock()
			q.Logger.Warn("plan generation failed for %s: %v", entry.subtask.ID, err)
			f.settle(taskmodel.PRPDocument{}, err)
			q.processNext(ctx)
			return
		}
		q.results.Add(entry.subtask.ID, doc)
		q.mu.Unlock()
		f.settle(doc, nil)
		q.processNext(ctx)
	}()
}

// IsResearching reports whether id currently has an in-flight
// generation.
func (q *Queue) IsResearching(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.researching[id]
	return ok
}

// GetPRP returns the cached plan for id, or false if none is cached.
func (q *Queue) GetPRP(id string) (taskmodel.PRPDocument, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results.Get(id)
}

// WaitForPRP resolves immediately from cache, awaits an in-flight
// generation, or fails if id is neither cached nor in-flight.
func (q *Queue) WaitForPRP(ctx context.Context, id string) (taskmodel.PRPDocument, error) {
	q.mu.Lock()
	if doc, ok := q.results.Get(id); ok {
		q.mu.Unlock()
		return doc, nil
	}
	f, inflight := q.researching[id]
	q.mu.Unlock()
	if !inflight {
		return taskmodel.PRPDocument{}, fmt.Errorf("research: %s is neither cached nor in-flight", id)
	}
	select {
	case <-ctx.Done():
		return taskmodel.PRPDocument{}, ctx.Err()
	default:
	}
	doc, err := f.wait()
	return doc, err
}

// GetStats returns the queue's current occupancy.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Queued: len(q.pending), Researching: len(q.researching), Cached: q.results.Len()}
}

// ClearCache clears completed results only; in-flight generation and
// the pending queue are unaffected.
func (q *Queue) ClearCache() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results.Purge()
}
