package agentadapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"taskforge/internal/taskmodel"
)

func TestShellSubtaskExecutorSuccess(t *testing.T) {
	exec := ShellSubtaskExecutor{ShellCommand{Command: "echo", Args: []string{"done"}}}
	st := &taskmodel.Item{ID: "P1.M1.T1.S1", Title: "s1"}
	result, err := exec.Execute(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatal("expected Success=true")
	}
}

func TestShellSubtaskExecutorNonzeroExit(t *testing.T) {
	exec := ShellSubtaskExecutor{ShellCommand{Command: "sh", Args: []string{"-c", "echo failmsg >&2; exit 1"}}}
	st := &taskmodel.Item{ID: "P1.M1.T1.S1", Title: "s1"}
	result, err := exec.Execute(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("Execute should not return an error for a nonzero exit: %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if result.Error == "" {
		t.Fatal("expected captured stderr in Error")
	}
}

func TestShellSubtaskExecutorMissingCommand(t *testing.T) {
	exec := ShellSubtaskExecutor{ShellCommand{Command: "definitely-not-a-real-binary-xyz"}}
	st := &taskmodel.Item{ID: "P1.M1.T1.S1", Title: "s1"}
	if _, err := exec.Execute(context.Background(), st, nil); err == nil {
		t.Fatal("expected error when the command cannot be launched")
	}
}

func TestSha256HasherDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prd.md")
	if err := os.WriteFile(path, []byte("# Title\ncontent"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := Sha256Hasher{}
	a, err := h.HashPRD(context.Background(), path)
	if err != nil {
		t.Fatalf("HashPRD: %v", err)
	}
	b, _ := h.HashPRD(context.Background(), path)
	if a != b || len(a) != 64 {
		t.Fatalf("expected deterministic 64-hex digest, got %q and %q", a, b)
	}
}

func TestStructuralPRDValidatorFlagsThinPRD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prd.md")
	if err := os.WriteFile(path, []byte("too short"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := StructuralPRDValidator{MinWords: 20}
	result, err := v.Validate(context.Background(), path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.HasCritical() {
		t.Fatal("expected a critical issue for a too-thin PRD")
	}
}

func TestStructuralPRDValidatorPassesAdequatePRD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prd.md")
	words := ""
	for i := 0; i < 30; i++ {
		words += "word "
	}
	if err := os.WriteFile(path, []byte("# Title\n"+words), 0o644); err != nil {
		t.Fatal(err)
	}
	v := StructuralPRDValidator{}
	result, err := v.Validate(context.Background(), path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid || result.HasCritical() {
		t.Fatalf("expected a valid result, got %+v", result)
	}
}
