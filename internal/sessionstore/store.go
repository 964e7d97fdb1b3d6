// Package sessionstore owns the session on disk and in memory: it
// provides hash-addressed lookup, batched status mutation, and durable
// atomic persistence. It is the single write-through path to disk; every
// other component reaches the registry through a Store.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskforge/internal/agentports"
	"taskforge/internal/depgraph"
	"taskforge/internal/errorsx"
	"taskforge/internal/logging"
	"taskforge/internal/metrics"
	"taskforge/internal/taskmodel"
)

const (
	tasksFileName       = "tasks.json"
	snapshotFileName    = "prd_snapshot.md"
	parentFileName      = "parent_session.txt"
	recoveryFileName    = "tasks.json.failed"
	recoverySchemaVer   = "1.0"
)

// Store owns one plan directory's worth of sessions. It is safe for
// concurrent use; the active session's mutable state is protected by mu.
type Store struct {
	PlanDir   string
	Hasher    agentports.PRDHasher
	Validator agentports.PRDValidator
	Logger    logging.Logger
	Retry     errorsx.RetryConfig

	// LongChainThreshold configures the informational long-chain check
	// depgraph.Validate runs on every SaveBacklog call. <= 0 uses
	// depgraph's own default of 5.
	LongChainThreshold int

	mu            sync.Mutex
	current       *taskmodel.SessionState
	initialHash   string
	dirty         bool
	pendingEvents map[string]taskmodel.Status // subtask ID -> pending status, the dirty/pending accumulator
}

// New constructs a Store rooted at planDir. logger may be nil, in which
// case logging is discarded.
func New(planDir string, hasher agentports.PRDHasher, validator agentports.PRDValidator, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		PlanDir:       planDir,
		Hasher:        hasher,
		Validator:     validator,
		Logger:        logger,
		Retry:         errorsx.DefaultRetryConfig(),
		pendingEvents: map[string]taskmodel.Status{},
	}
}

// Initialize validates the PRD, hashes it, and either loads a matching
// existing session or allocates a new one with an empty registry.
func (s *Store) Initialize(ctx context.Context, prdPath string) (*taskmodel.SessionState, error) {
	if _, err := os.Stat(prdPath); err != nil {
		return nil, errorsx.NewInvalidInput("PRD does not exist: "+prdPath, err)
	}
	if s.Validator != nil {
		result, err := s.Validator.Validate(ctx, prdPath)
		if err != nil {
			return nil, errorsx.NewInvalidInput("PRD validation failed", err)
		}
		if result.HasCritical() {
			return nil, errorsx.NewInvalidInput("PRD has critical validation issues: "+result.Summary, nil)
		}
	}

	hash, err := s.Hasher.HashPRD(ctx, prdPath)
	if err != nil {
		return nil, errorsx.NewInvalidInput("failed to hash PRD", err)
	}
	hash12 := hash
	if len(hash12) > 12 {
		hash12 = hash12[:12]
	}

	if existing, found, err := s.findSessionByHash(hash12); err != nil {
		return nil, err
	} else if found {
		state, err := s.LoadSession(existing.Path)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.current = state
		s.initialHash = hash12
		s.mu.Unlock()
		return state, nil
	}

	seq, err := s.nextSequence()
	if err != nil {
		return nil, err
	}
	id := taskmodel.BuildSessionID(seq, hash12)
	dir := filepath.Join(s.PlanDir, id)
	if err := ensureDir(dir); err != nil {
		return nil, errorsx.NewSessionFileError(dir, "mkdir", err)
	}

	prdContent, err := os.ReadFile(prdPath)
	if err != nil {
		return nil, errorsx.NewSessionFileError(prdPath, "read", err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotFileName), prdContent, 0o644); err != nil {
		return nil, errorsx.NewSessionFileError(filepath.Join(dir, snapshotFileName), "write", err)
	}

	state := &taskmodel.SessionState{
		Metadata: taskmodel.SessionMetadata{
			ID:        id,
			Hash:      hash12,
			Path:      dir,
			CreatedAt: time.Now().UTC(),
		},
		PRDSnapshot:  string(prdContent),
		TaskRegistry: taskmodel.Backlog{},
	}

	s.mu.Lock()
	s.current = state
	s.initialHash = hash12
	s.dirty = true
	s.mu.Unlock()

	if err := s.SaveBacklog(state.TaskRegistry); err != nil {
		return nil, err
	}

	s.Logger.Info("initialized session %s at %s", id, dir)
	return state, nil
}

// LoadSession reads an existing session directory from disk and
// reconstructs its SessionState. currentItemId is always nil for a
// freshly loaded session.
func (s *Store) LoadSession(path string) (*taskmodel.SessionState, error) {
	base := filepath.Base(path)
	m := taskmodel.SessionIDPattern.FindStringSubmatch(base)
	if m == nil {
		return nil, errorsx.NewSessionFileError(path, "load", fmt.Errorf("directory name %q does not match session id pattern", base))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errorsx.NewSessionFileError(path, "stat", err)
	}

	backlog, err := s.readBacklog(filepath.Join(path, tasksFileName))
	if err != nil {
		return nil, err
	}

	snapshot, err := readFileOrEmpty(filepath.Join(path, snapshotFileName))
	if err != nil {
		return nil, errorsx.NewSessionFileError(path, "read-snapshot", err)
	}

	var parent *string
	if data, err := readFileOrEmpty(filepath.Join(path, parentFileName)); err == nil && data != nil {
		p := strings.TrimSpace(string(data))
		parent = &p
	}

	state := &taskmodel.SessionState{
		Metadata: taskmodel.SessionMetadata{
			ID:            base,
			Hash:          m[2],
			Path:          path,
			CreatedAt:     info.ModTime().UTC(),
			ParentSession: parent,
		},
		PRDSnapshot:  string(snapshot),
		TaskRegistry: *backlog,
	}
	return state, nil
}

// CreateDeltaSession creates a new session linked to the current one,
// recording both PRD texts and a diff summary.
func (s *Store) CreateDeltaSession(ctx context.Context, newPRDPath string) (*taskmodel.DeltaSession, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil, errorsx.NewNoSession("createDeltaSession")
	}

	newHash, err := s.Hasher.HashPRD(ctx, newPRDPath)
	if err != nil {
		return nil, errorsx.NewInvalidInput("failed to hash new PRD", err)
	}
	hash12 := newHash
	if len(hash12) > 12 {
		hash12 = hash12[:12]
	}

	oldPRD := current.PRDSnapshot
	newPRDBytes, err := os.ReadFile(newPRDPath)
	if err != nil {
		return nil, errorsx.NewSessionFileError(newPRDPath, "read", err)
	}
	newPRD := string(newPRDBytes)

	seq, err := s.nextSequence()
	if err != nil {
		return nil, err
	}
	id := taskmodel.BuildSessionID(seq, hash12)
	dir := filepath.Join(s.PlanDir, id)
	if err := ensureDir(dir); err != nil {
		return nil, errorsx.NewSessionFileError(dir, "mkdir", err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotFileName), newPRDBytes, 0o644); err != nil {
		return nil, errorsx.NewSessionFileError(filepath.Join(dir, snapshotFileName), "write", err)
	}
	parentID := current.Metadata.ID
	if err := os.WriteFile(filepath.Join(dir, parentFileName), []byte(parentID), 0o644); err != nil {
		return nil, errorsx.NewSessionFileError(filepath.Join(dir, parentFileName), "write", err)
	}

	delta := &taskmodel.DeltaSession{
		SessionState: taskmodel.SessionState{
			Metadata: taskmodel.SessionMetadata{
				ID:            id,
				Hash:          hash12,
				Path:          dir,
				CreatedAt:     time.Now().UTC(),
				ParentSession: &parentID,
			},
			PRDSnapshot:  newPRD,
			TaskRegistry: current.TaskRegistry,
		},
		OldPRD:      oldPRD,
		NewPRD:      newPRD,
		DiffSummary: diffSummary(oldPRD, newPRD),
	}

	s.mu.Lock()
	s.current = &delta.SessionState
	s.dirty = true
	s.mu.Unlock()

	if err := s.SaveBacklog(delta.TaskRegistry); err != nil {
		return nil, err
	}

	s.Logger.Info("created delta session %s from parent %s", id, parentID)
	return delta, nil
}

// diffSummary produces a free-form, human-readable line-count summary of
// the change between two PRD texts. It is never parsed back by the core
// (per the Open Question resolution recorded in SPEC_FULL.md).
func diffSummary(oldText, newText string) string {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")
	oldSet := map[string]int{}
	for _, l := range oldLines {
		oldSet[l]++
	}
	newSet := map[string]int{}
	for _, l := range newLines {
		newSet[l]++
	}
	added, removed := 0, 0
	for l, n := range newSet {
		if oldSet[l] < n {
			added += n - oldSet[l]
		}
	}
	for l, n := range oldSet {
		if newSet[l] < n {
			removed += n - newSet[l]
		}
	}
	return fmt.Sprintf("+%d/-%d lines changed", added, removed)
}

// sessionIDSeq parses the numeric sequence prefix of a session id.
func sessionIDSeq(id string) (int, bool) {
	m := taskmodel.SessionIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListSessions scans planDir for session directories matching the
// session-id pattern, sorted ascending by numeric sequence. Load
// failures on any one session are logged and skipped; they never abort
// the listing.
func (s *Store) ListSessions(planDir string) ([]taskmodel.SessionMetadata, error) {
	entries, err := os.ReadDir(planDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errorsx.NewSessionFileError(planDir, "readdir", err)
	}

	var metas []taskmodel.SessionMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !taskmodel.SessionIDPattern.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(planDir, entry.Name())
		state, err := s.LoadSession(path)
		if err != nil {
			s.Logger.Warn("skipping unloadable session %s: %v", entry.Name(), err)
			continue
		}
		metas = append(metas, state.Metadata)
	}
	sort.Slice(metas, func(i, j int) bool {
		si, _ := sessionIDSeq(metas[i].ID)
		sj, _ := sessionIDSeq(metas[j].ID)
		return si < sj
	})
	return metas, nil
}

// FindLatestSession returns the session with the highest sequence
// number, or nil if none exist.
func (s *Store) FindLatestSession(planDir string) (*taskmodel.SessionMetadata, error) {
	metas, err := s.ListSessions(planDir)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, nil
	}
	return &metas[len(metas)-1], nil
}

// FindSessionByPRD returns the session whose hash prefix matches hash12,
// or nil if none exist.
func (s *Store) FindSessionByPRD(planDir, hash12 string) (*taskmodel.SessionMetadata, error) {
	metas, err := s.ListSessions(planDir)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		if metas[i].Hash == hash12 {
			return &metas[i], nil
		}
	}
	return nil, nil
}

func (s *Store) findSessionByHash(hash12 string) (taskmodel.SessionMetadata, bool, error) {
	meta, err := s.FindSessionByPRD(s.PlanDir, hash12)
	if err != nil {
		return taskmodel.SessionMetadata{}, false, err
	}
	if meta == nil {
		return taskmodel.SessionMetadata{}, false, nil
	}
	return *meta, true, nil
}

func (s *Store) nextSequence() (int, error) {
	metas, err := s.ListSessions(s.PlanDir)
	if err != nil {
		return 0, err
	}
	var seqs []int
	for _, m := range metas {
		if n, ok := sessionIDSeq(m.ID); ok {
			seqs = append(seqs, n)
		}
	}
	return taskmodel.NextSequence(seqs), nil
}

// UpdateItemStatus applies the status mutation to the in-memory
// registry and marks the store dirty. It does not write to disk; call
// FlushUpdates to persist.
func (s *Store) UpdateItemStatus(itemID string, status taskmodel.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return errorsx.NewNoSession("updateItemStatus")
	}
	item := s.current.TaskRegistry.Find(itemID)
	if item == nil {
		return fmt.Errorf("unknown item id %q", itemID)
	}
	item.Status = status
	s.dirty = true
	s.pendingEvents[itemID] = status
	return nil
}

// FlushUpdates persists the in-memory registry atomically if dirty,
// retrying transient failures per the configured RetryConfig. On
// success the dirty flag and pending-update accumulator are cleared. On
// failure the dirty state is preserved (so a later flush can retry the
// same intent) and a recovery file is written.
func (s *Store) FlushUpdates(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty || s.current == nil {
		s.mu.Unlock()
		return nil
	}
	dir := s.current.Path()
	data, err := marshalIndent(s.current.TaskRegistry)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pending := make(map[string]taskmodel.Status, len(s.pendingEvents))
	for k, v := range s.pendingEvents {
		pending[k] = v
	}
	s.mu.Unlock()

	path := filepath.Join(dir, tasksFileName)

	start := time.Now()
	attempts := 0
	writeErr := errorsx.Retry(ctx, s.Retry, func(attempt int) error {
		attempts = attempt + 1
		metrics.FlushAttempts.Inc()
		err := atomicWriteFile(path, data, 0o644)
		if err != nil {
			s.Logger.Warn("flush attempt %d failed for %s: %v", attempts, path, err)
		}
		return err
	})

	if writeErr != nil {
		metrics.FlushFailures.Inc()
		s.writeRecoveryFile(dir, writeErr, attempts, pending)
		return errorsx.NewSessionFileError(path, "flush", writeErr)
	}
	metrics.FlushSuccesses.Inc()
	metrics.FlushLatency.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.dirty = false
	s.pendingEvents = map[string]taskmodel.Status{}
	s.mu.Unlock()
	s.Logger.Debug("flushed %d pending update(s) to %s", len(pending), path)
	return nil
}

type recoveryError struct {
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

type recoveryFile struct {
	Version      string                       `json:"version"`
	Error        recoveryError                `json:"error"`
	PendingCount int                          `json:"pendingCount"`
	Pending      map[string]taskmodel.Status  `json:"pendingUpdates"`
}

func (s *Store) writeRecoveryFile(dir string, writeErr error, attempts int, pending map[string]taskmodel.Status) {
	rec := recoveryFile{
		Version: recoverySchemaVer,
		Error: recoveryError{
			Code:     errorsx.ErrnoCode(writeErr),
			Attempts: attempts,
			Message:  writeErr.Error(),
		},
		PendingCount: len(pending),
		Pending:      pending,
	}
	data, err := marshalIndent(rec)
	if err != nil {
		s.Logger.Error("failed to marshal recovery file: %v", err)
		return
	}
	path := filepath.Join(dir, recoveryFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.Logger.Error("failed to write recovery file %s: %v", path, err)
	}
}

// SaveBacklog directly writes b as the current session's registry,
// bypassing the dirty-flag batching path. It is the single ingestion
// point for a backlog's dependency graph: before anything touches disk,
// depgraph.Validate rejects self-dependencies and cycles so a cyclic
// backlog can never be persisted, let alone reach the executor's
// deadlock gate.
func (s *Store) SaveBacklog(b taskmodel.Backlog) error {
	report, err := depgraph.Validate(&b, s.LongChainThreshold)
	if err != nil {
		return err
	}
	for _, lc := range report.LongChains {
		s.Logger.Warn("long dependency chain: %s depth %d", lc.SubtaskID, lc.Depth)
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return errorsx.NewNoSession("saveBacklog")
	}
	dir := s.current.Path()
	s.current.TaskRegistry = b
	s.mu.Unlock()

	path := filepath.Join(dir, tasksFileName)
	data, err := marshalIndent(b)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return errorsx.NewSessionFileError(path, "save", err)
	}
	return nil
}

// LoadBacklog directly reads the current session's registry from disk.
func (s *Store) LoadBacklog() (*taskmodel.Backlog, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, errorsx.NewNoSession("loadBacklog")
	}
	dir := s.current.Path()
	s.mu.Unlock()
	return s.readBacklog(filepath.Join(dir, tasksFileName))
}

func (s *Store) readBacklog(path string) (*taskmodel.Backlog, error) {
	data, err := readFileOrEmpty(path)
	if err != nil {
		return nil, errorsx.NewSessionFileError(path, "read", err)
	}
	backlog := &taskmodel.Backlog{}
	if data == nil {
		return backlog, nil
	}
	if err := json.Unmarshal(data, backlog); err != nil {
		return nil, errorsx.NewInvalidInput("malformed tasks.json at "+path, err)
	}
	return backlog, nil
}

// HasSessionChanged compares the PRD hash cached at Initialize against
// the current session's hash.
func (s *Store) HasSessionChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	return s.current.Metadata.Hash != s.initialHash
}

// Current returns the active session state, or nil.
func (s *Store) Current() *taskmodel.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// sessionDirRegexp is a package-local copy of taskmodel.SessionIDPattern.
var sessionDirRegexp = regexp.MustCompile(taskmodel.SessionIDPattern.String())
