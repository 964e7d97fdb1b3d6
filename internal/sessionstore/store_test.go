package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"taskforge/internal/agentports"
	"taskforge/internal/taskmodel"
)

func writePRD(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "prd.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write prd: %v", err)
	}
	return path
}

func newTestStore(t *testing.T, hashes map[string]string) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	hasher := &agentports.FakePRDHasher{Hashes: hashes}
	validator := &agentports.FakePRDValidator{Result: agentports.ValidationResult{Valid: true}}
	return New(dir, hasher, validator, nil), dir
}

func TestInitializeCreatesNewSession(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, map[string]string{})
	prdPath := writePRD(t, dir, "# PRD v1")

	state, err := store.Initialize(ctx, prdPath)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if state.Metadata.ID == "" {
		t.Fatal("expected non-empty session id")
	}
	if _, err := os.Stat(filepath.Join(state.Path(), "tasks.json")); err != nil {
		t.Fatalf("expected tasks.json to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(state.Path(), "prd_snapshot.md")); err != nil {
		t.Fatalf("expected prd_snapshot.md to exist: %v", err)
	}
}

func TestInitializeReusesExistingSession(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, map[string]string{})
	prdPath := writePRD(t, dir, "# PRD v1")

	first, err := store.Initialize(ctx, prdPath)
	if err != nil {
		t.Fatalf("first Initialize: %v", err)
	}

	store2 := New(dir, store.Hasher, store.Validator, nil)
	second, err := store2.Initialize(ctx, prdPath)
	if err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if second.Metadata.ID != first.Metadata.ID {
		t.Fatalf("expected reused session id %s, got %s", first.Metadata.ID, second.Metadata.ID)
	}
}

func TestInitializeFailsOnCriticalValidation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	hasher := agentports.NewFakePRDHasher()
	validator := &agentports.FakePRDValidator{Result: agentports.ValidationResult{
		Valid:  false,
		Issues: []agentports.ValidationIssue{{Severity: "critical", Message: "missing objective"}},
	}}
	store := New(dir, hasher, validator, nil)
	prdPath := writePRD(t, dir, "# bad prd")

	if _, err := store.Initialize(ctx, prdPath); err == nil {
		t.Fatal("expected error for critical validation issue")
	}
}

func TestUpdateItemStatusAndFlush(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, map[string]string{})
	prdPath := writePRD(t, dir, "# PRD")
	state, err := store.Initialize(ctx, prdPath)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sub := &taskmodel.Item{Kind: taskmodel.KindSubtask, ID: "P1.M1.T1.S1", Title: "s1", Status: taskmodel.StatusPlanned, StoryPoints: 1, ContextScope: validScope()}
	task := &taskmodel.Item{Kind: taskmodel.KindTask, ID: "P1.M1.T1", Title: "t1", Status: taskmodel.StatusPlanned, Description: "d", Children: []*taskmodel.Item{sub}}
	milestone := &taskmodel.Item{Kind: taskmodel.KindMilestone, ID: "P1.M1", Title: "m1", Status: taskmodel.StatusPlanned, Description: "d", Children: []*taskmodel.Item{task}}
	phase := &taskmodel.Item{Kind: taskmodel.KindPhase, ID: "P1", Title: "p1", Status: taskmodel.StatusPlanned, Description: "d", Children: []*taskmodel.Item{milestone}}
	if err := store.SaveBacklog(taskmodel.Backlog{Backlog: []*taskmodel.Item{phase}}); err != nil {
		t.Fatalf("SaveBacklog: %v", err)
	}

	if err := store.UpdateItemStatus("P1.M1.T1.S1", taskmodel.StatusComplete); err != nil {
		t.Fatalf("UpdateItemStatus: %v", err)
	}
	if err := store.FlushUpdates(ctx); err != nil {
		t.Fatalf("FlushUpdates: %v", err)
	}
	if store.dirty {
		t.Fatal("expected dirty to be cleared after flush")
	}

	loaded, err := store.LoadBacklog()
	if err != nil {
		t.Fatalf("LoadBacklog: %v", err)
	}
	item := loaded.Find("P1.M1.T1.S1")
	if item == nil || item.Status != taskmodel.StatusComplete {
		t.Fatalf("expected persisted status Complete, got %+v", item)
	}
	_ = state
}

func TestFlushUpdatesNoopWhenClean(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t, map[string]string{})
	prdPath := writePRD(t, dir, "# PRD")
	if _, err := store.Initialize(ctx, prdPath); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	store.dirty = false
	if err := store.FlushUpdates(ctx); err != nil {
		t.Fatalf("expected no-op flush to succeed, got %v", err)
	}
}

func TestCreateDeltaSession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	hasher := &agentports.FakePRDHasher{Hashes: map[string]string{}}
	validator := &agentports.FakePRDValidator{Result: agentports.ValidationResult{Valid: true}}
	store := New(dir, hasher, validator, nil)

	prdPath := writePRD(t, dir, "# PRD v1")
	base, err := store.Initialize(ctx, prdPath)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	newPRDPath := filepath.Join(dir, "prd_v2.md")
	if err := os.WriteFile(newPRDPath, []byte("# PRD v2\nmore content"), 0o644); err != nil {
		t.Fatalf("write new prd: %v", err)
	}
	hasher.Hashes[newPRDPath] = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	delta, err := store.CreateDeltaSession(ctx, newPRDPath)
	if err != nil {
		t.Fatalf("CreateDeltaSession: %v", err)
	}
	if delta.Metadata.ParentSession == nil || *delta.Metadata.ParentSession != base.Metadata.ID {
		t.Fatalf("expected parent session %s, got %+v", base.Metadata.ID, delta.Metadata.ParentSession)
	}
	if delta.DiffSummary == "" {
		t.Fatal("expected non-empty diff summary")
	}
	if _, err := os.Stat(filepath.Join(delta.Path(), "parent_session.txt")); err != nil {
		t.Fatalf("expected parent_session.txt to exist: %v", err)
	}
}

func TestListSessionsSkipsUnloadable(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "not-a-session"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "002_aaaaaaaaaaaa"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "001_bbbbbbbbbbbb"), 0o755); err != nil {
		t.Fatal(err)
	}
	// A well-named session whose tasks.json cannot be parsed is unloadable.
	if err := os.MkdirAll(filepath.Join(dir, "003_cccccccccccc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "003_cccccccccccc", "tasks.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := New(dir, agentports.NewFakePRDHasher(), nil, nil)
	metas, err := store.ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %+v", len(metas), metas)
	}
	if metas[0].ID != "001_bbbbbbbbbbbb" || metas[1].ID != "002_aaaaaaaaaaaa" {
		t.Fatalf("expected ascending sequence order, got %+v", metas)
	}
}

func validScope() string {
	return "CONTRACT DEFINITION:\n1. RESEARCH NOTE:\nn\n2. INPUT:\ni\n3. LOGIC:\nl\n4. OUTPUT:\no"
}
