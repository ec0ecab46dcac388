// Package store implements the embedded, single-file transactional
// storage backend described in §4.1: patterns with full-text search and
// faceted filtering, plus the auxiliary tables for metadata, triggers,
// vocabulary, tasks, evidence, reflections, and audit events. It is
// grounded on the teacher's internal/store package: a single *sql.DB
// guarded by a RWMutex, PRAGMA-tuned SQLite, and migration-guarded
// ALTER TABLE additions.
package store

import "time"

// PatternType enumerates the kinds a Pattern may have.
type PatternType string

const (
	PatternCodebase  PatternType = "CODEBASE"
	PatternLang      PatternType = "LANG"
	PatternAnti      PatternType = "ANTI"
	PatternFailure   PatternType = "FAILURE"
	PatternPolicy    PatternType = "POLICY"
	PatternTest      PatternType = "TEST"
	PatternMigration PatternType = "MIGRATION"
)

// Pattern is the primary entity per §3.
type Pattern struct {
	ID            string
	Alias         string
	Type          PatternType
	Title         string
	Summary       string
	JSONCanonical string
	Tags          []string
	TrustScore    float64
	Alpha         float64
	Beta          float64
	UsageCount    int
	SuccessCount  int
	Invalid       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	KeyInsight    string
	WhenToUse     string
}

// PatternMetadata is a typed key/value record keyed by pattern ID.
type PatternMetadata struct {
	PatternID string
	Key       string
	Value     string
}

// TriggerType enumerates PatternTrigger kinds.
type TriggerType string

const (
	TriggerError    TriggerType = "error"
	TriggerScenario TriggerType = "scenario"
	TriggerKeyword  TriggerType = "keyword"
)

// PatternTrigger associates a pattern with a retrieval trigger.
type PatternTrigger struct {
	PatternID    string
	TriggerType  TriggerType
	TriggerValue string
	Priority     int
}

// PatternVocab is a weighted term used for semantic expansion.
type PatternVocab struct {
	PatternID string
	Term      string
	TermType  string
	Weight    float64
}

// TaskStatus enumerates Task.Status values.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskBlocked   TaskStatus = "blocked"
)

// Phase enumerates the task lifecycle phases, in legal forward order.
type Phase string

const (
	PhaseArchitect  Phase = "ARCHITECT"
	PhaseBuilder    Phase = "BUILDER"
	PhaseValidator  Phase = "VALIDATOR"
	PhaseReviewer   Phase = "REVIEWER"
	PhaseDocumenter Phase = "DOCUMENTER"
)

// PhaseOrder is the monotonic forward sequence of task phases.
var PhaseOrder = []Phase{PhaseArchitect, PhaseBuilder, PhaseValidator, PhaseReviewer, PhaseDocumenter}

// TaskType enumerates Task.TaskType values.
type TaskType string

const (
	TaskTypeBug      TaskType = "bug"
	TaskTypeFeature  TaskType = "feature"
	TaskTypeRefactor TaskType = "refactor"
	TaskTypeTest     TaskType = "test"
	TaskTypeDocs     TaskType = "docs"
	TaskTypePerf     TaskType = "perf"
)

// PhaseHandoff is one append-only entry in a task's phase_handoffs log.
type PhaseHandoff struct {
	Phase     Phase
	Handoff   string
	Timestamp time.Time
}

// Checkpoint is one append-only entry in a task's in_flight log.
type Checkpoint struct {
	Note       string
	Confidence *float64
	Timestamp  time.Time
}

// Brief is the structured brief generated at task creation.
type Brief struct {
	TLDR         string   `json:"tl_dr"`
	Objectives   []string `json:"objectives"`
	Plan         []string `json:"plan"`
	Constraints  []string `json:"constraints"`
	TestScaffold string   `json:"test_scaffold"`
}

// Task is an in-progress or completed work item per §3.
type Task struct {
	ID                string
	Identifier        string
	Title             string
	Intent            string
	TaskType          TaskType
	Tags              []string
	Status            TaskStatus
	Phase             Phase
	Confidence        float64
	FilesTouched      []string
	ErrorsEncountered []string
	InFlight          []Checkpoint
	PhaseHandoffs     []PhaseHandoff
	Brief             Brief
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EvidenceType enumerates TaskEvidence.Type values.
type EvidenceType string

const (
	EvidenceFile     EvidenceType = "file"
	EvidencePattern  EvidenceType = "pattern"
	EvidenceError    EvidenceType = "error"
	EvidenceDecision EvidenceType = "decision"
	EvidenceLearning EvidenceType = "learning"
)

// TaskEvidence is an append-only evidence record for a task.
type TaskEvidence struct {
	ID        string
	TaskID    string
	Type      EvidenceType
	Content   string
	Metadata  string
	Timestamp time.Time
}

// ReflectionOutcome enumerates Reflection.Outcome values.
type ReflectionOutcome string

const (
	ReflectionSuccess ReflectionOutcome = "success"
	ReflectionPartial ReflectionOutcome = "partial"
	ReflectionFailure ReflectionOutcome = "failure"
)

// Reflection is a stored reflection event per §3.
type Reflection struct {
	ID             string
	TaskID         string
	Outcome        ReflectionOutcome
	ContentHash    string
	ClaimsPayload  string
	Artifacts      string
	ReceivedAt     time.Time
}

// AuditEvent records a trust change, pattern creation, or quarantine.
type AuditEvent struct {
	ID        string
	TaskID    string
	Kind      string
	PatternID string
	Timestamp time.Time
	Details   string
}

// Filter describes the AND-combined predicate for list/count/aggregateStats.
type Filter struct {
	Types    []PatternType
	MinTrust float64
	Tags     []string
	Valid    *bool // nil means no filter on validity
}

// LookupRequest is the candidate-set query used by the ranker.
type LookupRequest struct {
	Task      string
	Languages []string
	Frameworks []string
	Paths     []string
	TaskTypes []string
	Tags      []string
	K         int
}

// SearchRequest drives a full-text search.
type SearchRequest struct {
	FTSQuery string
	Types    []PatternType
	Tags     []string
	K        int
}

// Stats aggregates counts/averages/distributions for a filter.
type Stats struct {
	Count          int
	AvgTrust       float64
	TypeCounts     map[PatternType]int
	AvgUsageCount  float64
}
