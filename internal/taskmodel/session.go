package taskmodel

import (
	"regexp"
	"time"
)

// SessionMetadata identifies one session: a sequence-prefixed,
// hash-suffixed directory name plus provenance.
type SessionMetadata struct {
	ID            string     `json:"id"`
	Hash          string     `json:"hash"`
	Path          string     `json:"path"`
	CreatedAt     time.Time  `json:"created_at"`
	ParentSession *string    `json:"parent_session,omitempty"`
}

// SessionIDPattern matches "<NNN>_<12-hex>" directory names (NNN at
// least 3 digits, growing past 999), used to filter listSessions scans.
var SessionIDPattern = regexp.MustCompile(`^([0-9]{3,})_([0-9a-f]{12})$`)

// BuildSessionID composes the canonical "NNN_hash12" session id.
func BuildSessionID(seq int, hash12 string) string {
	return FormatSequence(seq) + "_" + hash12
}

// SessionState is the full in-memory representation of an active
// session: its metadata, the PRD content snapshot, the task registry,
// and the scheduler's current cursor.
type SessionState struct {
	Metadata      SessionMetadata `json:"metadata"`
	PRDSnapshot   string          `json:"prd_snapshot"`
	TaskRegistry  Backlog         `json:"task_registry"`
	CurrentItemID *string         `json:"current_item_id"`
}

// Path returns the session's directory on disk.
func (s *SessionState) Path() string { return s.Metadata.Path }

// DeltaSession extends SessionState for sessions created in response to
// a PRD change: it carries both PRD texts and a free-form diff summary.
type DeltaSession struct {
	SessionState
	OldPRD      string `json:"old_prd"`
	NewPRD      string `json:"new_prd"`
	DiffSummary string `json:"diff_summary"`
}

// ValidationGate is one gate within a PRPDocument: a check that must
// pass (automated via Command, or Manual) at a given level.
type ValidationGate struct {
	Level       int     `json:"level"`
	Description string  `json:"description"`
	Command     *string `json:"command"`
	Manual      bool    `json:"manual"`
}

// Validate enforces the level range and the manual/command exclusivity
// rule: when Manual is true, Command must be nil.
func (g ValidationGate) Validate() error {
	if g.Level < 1 || g.Level > 4 {
		return &invalidGateError{reason: "level out of range [1,4]"}
	}
	if g.Manual && g.Command != nil {
		return &invalidGateError{reason: "manual gate must not carry a command"}
	}
	return nil
}

type invalidGateError struct{ reason string }

func (e *invalidGateError) Error() string { return "invalid validation gate: " + e.reason }

// SuccessCriterion is one pass/fail condition evaluated against a
// completed subtask's output.
type SuccessCriterion struct {
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}

// PRPDocument is the opaque plan artifact produced by the external Plan
// Generator port and consumed by the Subtask Executor port. The core
// never interprets its contents beyond structure.
type PRPDocument struct {
	TaskID             string             `json:"task_id"`
	Objective          string             `json:"objective"`
	Context            string             `json:"context"`
	ImplementationSteps []string          `json:"implementation_steps"`
	ValidationGates    []ValidationGate   `json:"validation_gates"`
	SuccessCriteria    []SuccessCriterion `json:"success_criteria"`
	References         []string           `json:"references"`
}
