package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/benredmond/apex-sub002/internal/apierr"
	"github.com/benredmond/apex-sub002/internal/idgen"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/tasklifecycle"
)

// notFoundOrErr maps a store lookup error to the §7 taxonomy.
func notFoundOrErr(err error, format string, args ...any) *apierr.Error {
	if errors.Is(err, store.ErrNotFound) {
		return apierr.New(apierr.NotFound, format, args...)
	}
	if errors.Is(err, store.ErrInvalidState) {
		return apierr.New(apierr.InvalidState, "%v", err)
	}
	if errors.Is(err, store.ErrPhaseViolation) {
		return apierr.New(apierr.PhaseViolation, "%v", err)
	}
	return apierr.FromError(err)
}

// --- apex_task_create ---

type taskCreateParams struct {
	Identifier string   `json:"identifier"`
	Title      string   `json:"title"`
	Intent     string   `json:"intent"`
	TaskType   string   `json:"task_type"`
	Tags       []string `json:"tags"`
}

type taskCreate struct{ d *Deps }

func (t *taskCreate) Name() string        { return "apex_task_create" }
func (t *taskCreate) Description() string { return "Create a task, seeding it in the ARCHITECT phase with a generated brief." }
func (t *taskCreate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "identifier": {"type": "string"},
    "title": {"type": "string"},
    "intent": {"type": "string"},
    "task_type": {"type": "string", "enum": ["bug", "feature", "refactor", "test", "docs", "perf"]},
    "tags": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title"]
}`)
}

func (t *taskCreate) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.Title == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "title is required").WithFields([]apierr.FieldError{{Path: "title", Code: "required", Message: "title is required"}}))
	}

	task, err := t.d.Tasks.Create(tasklifecycle.CreateRequest{
		Identifier: p.Identifier, Title: p.Title, Intent: p.Intent,
		TaskType: store.TaskType(p.TaskType), Tags: p.Tags,
	})
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "creating task: %v", err))
	}
	return t.d.ok(t.Name(), start, nil, task)
}

// --- apex_task_find ---

type taskFindParams struct {
	IdentifierLike string `json:"identifier_like"`
	Status         string `json:"status"`
	Limit          int    `json:"limit"`
}

type taskFind struct{ d *Deps }

func (t *taskFind) Name() string        { return "apex_task_find" }
func (t *taskFind) Description() string { return "Find tasks by identifier/title substring and status." }
func (t *taskFind) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "identifier_like": {"type": "string"},
    "status": {"type": "string", "enum": ["active", "completed", "failed", "blocked"]},
    "limit": {"type": "integer"}
  }
}`)
}

func (t *taskFind) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskFindParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
		}
	}
	tasks, err := t.d.Tasks.Find(p.IdentifierLike, store.TaskStatus(p.Status), p.Limit)
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}
	return t.d.ok(t.Name(), start, nil, tasks)
}

// --- apex_task_find_similar ---

type taskFindSimilarParams struct {
	TaskID string `json:"task_id"`
	N      int    `json:"n"`
}

type taskFindSimilar struct{ d *Deps }

func (t *taskFindSimilar) Name() string        { return "apex_task_find_similar" }
func (t *taskFindSimilar) Description() string { return "Rank prior tasks by similarity to a given task." }
func (t *taskFindSimilar) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"task_id": {"type": "string"}, "n": {"type": "integer"}},
  "required": ["task_id"]
}`)
}

func (t *taskFindSimilar) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskFindSimilarParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.TaskID == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "task_id is required").WithFields([]apierr.FieldError{{Path: "task_id", Code: "required", Message: "task_id is required"}}))
	}
	similar, err := t.d.Tasks.FindSimilar(p.TaskID, p.N)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}
	return t.d.ok(t.Name(), start, nil, similar)
}

// --- apex_task_current ---

type taskCurrentParams struct {
	TaskID string `json:"task_id"`
}

type taskCurrent struct{ d *Deps }

func (t *taskCurrent) Name() string        { return "apex_task_current" }
func (t *taskCurrent) Description() string { return "Fetch a task by id." }
func (t *taskCurrent) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"task_id": {"type": "string"}}, "required": ["task_id"]}`)
}

func (t *taskCurrent) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskCurrentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	task, err := t.d.Tasks.Current(p.TaskID)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}
	return t.d.ok(t.Name(), start, nil, task)
}

// --- apex_task_update ---

type taskUpdate struct{ d *Deps }

func (t *taskUpdate) Name() string        { return "apex_task_update" }
func (t *taskUpdate) Description() string { return "Persist mutated task fields (status, confidence, tags, files_touched, errors_encountered)." }
func (t *taskUpdate) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"task": {"type": "object"}}, "required": ["task"]}`)
}

func (t *taskUpdate) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p struct {
		Task store.Task `json:"task"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.Task.ID == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "task.id is required").WithFields([]apierr.FieldError{{Path: "task.id", Code: "required", Message: "task.id is required"}}))
	}
	if err := t.d.Tasks.Update(p.Task); err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.Task.ID))
	}
	return t.d.ok(t.Name(), start, nil, map[string]bool{"updated": true})
}

// --- apex_task_checkpoint ---

type taskCheckpointParams struct {
	TaskID     string   `json:"task_id"`
	Note       string   `json:"note"`
	Confidence *float64 `json:"confidence"`
}

type taskCheckpoint struct{ d *Deps }

func (t *taskCheckpoint) Name() string        { return "apex_task_checkpoint" }
func (t *taskCheckpoint) Description() string { return "Append a timestamped in-flight note, optionally updating confidence." }
func (t *taskCheckpoint) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"task_id": {"type": "string"}, "note": {"type": "string"}, "confidence": {"type": "number"}},
  "required": ["task_id", "note"]
}`)
}

func (t *taskCheckpoint) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskCheckpointParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	task, err := t.d.Tasks.Checkpoint(p.TaskID, p.Note, p.Confidence)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}
	return t.d.ok(t.Name(), start, nil, task)
}

// --- apex_task_complete ---

type taskCompleteParams struct {
	TaskID string `json:"task_id"`
}

type taskComplete struct{ d *Deps }

func (t *taskComplete) Name() string        { return "apex_task_complete" }
func (t *taskComplete) Description() string { return "Mark a task completed; permitted only from the DOCUMENTER phase." }
func (t *taskComplete) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"task_id": {"type": "string"}}, "required": ["task_id"]}`)
}

func (t *taskComplete) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskCompleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	task, err := t.d.Tasks.Complete(p.TaskID)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "completing task %s: %v", p.TaskID, err))
	}
	return t.d.ok(t.Name(), start, nil, task)
}

// --- apex_task_context ---

type taskContextParams struct {
	TaskID       string `json:"task_id"`
	MaxSizeBytes int    `json:"max_size_bytes"`
}

type taskContext struct{ d *Deps }

func (t *taskContext) Name() string        { return "apex_task_context" }
func (t *taskContext) Description() string { return "Assemble a size-bounded context pack: task data, evidence, similar tasks, and related patterns." }
func (t *taskContext) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"task_id": {"type": "string"}, "max_size_bytes": {"type": "integer", "description": "default 28672"}},
  "required": ["task_id"]
}`)
}

func (t *taskContext) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskContextParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}

	task, err := t.d.Tasks.Current(p.TaskID)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}

	queryText := task.Title
	if task.Intent != "" {
		queryText = task.Intent
	}
	var relatedPatterns []store.Pattern
	if queryText != "" {
		relatedPatterns, _ = t.d.Store.Lookup(store.LookupRequest{Task: queryText, K: 10})
	}

	maxBytes := p.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = t.d.ContextMaxBytes
	}
	pack, err := t.d.Tasks.Context(p.TaskID, maxBytes, relatedPatterns)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}
	return t.d.ok(t.Name(), start, nil, pack)
}

// --- apex_task_append_evidence ---

type taskAppendEvidenceParams struct {
	TaskID   string `json:"task_id"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Metadata string `json:"metadata"`
}

type taskAppendEvidence struct{ d *Deps }

func (t *taskAppendEvidence) Name() string        { return "apex_task_append_evidence" }
func (t *taskAppendEvidence) Description() string { return "Append an evidence record to a task's append-only log." }
func (t *taskAppendEvidence) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_id": {"type": "string"},
    "type": {"type": "string", "enum": ["file", "pattern", "error", "decision", "learning"]},
    "content": {"type": "string"},
    "metadata": {"type": "string"}
  },
  "required": ["task_id", "type", "content"]
}`)
}

func (t *taskAppendEvidence) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskAppendEvidenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.TaskID == "" || p.Content == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "task_id and content are required"))
	}

	e := store.TaskEvidence{
		ID: idgen.NewPrefixed("ev"), TaskID: p.TaskID, Type: store.EvidenceType(p.Type),
		Content: p.Content, Metadata: p.Metadata,
	}
	if err := t.d.Tasks.AppendEvidence(e); err != nil {
		return t.d.fail(t.Name(), start, err)
	}
	return t.d.ok(t.Name(), start, nil, e)
}

// --- apex_task_get_evidence ---

type taskGetEvidenceParams struct {
	TaskID string `json:"task_id"`
}

type taskGetEvidence struct{ d *Deps }

func (t *taskGetEvidence) Name() string        { return "apex_task_get_evidence" }
func (t *taskGetEvidence) Description() string { return "Return a task's evidence log, ordered by timestamp." }
func (t *taskGetEvidence) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"task_id": {"type": "string"}}, "required": ["task_id"]}`)
}

func (t *taskGetEvidence) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskGetEvidenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	evidence, err := t.d.Tasks.GetEvidence(p.TaskID)
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}
	return t.d.ok(t.Name(), start, nil, evidence)
}

// --- apex_task_get_phase ---

type taskGetPhaseParams struct {
	TaskID string `json:"task_id"`
}

type taskGetPhase struct{ d *Deps }

func (t *taskGetPhase) Name() string        { return "apex_task_get_phase" }
func (t *taskGetPhase) Description() string { return "Return a task's current lifecycle phase." }
func (t *taskGetPhase) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"task_id": {"type": "string"}}, "required": ["task_id"]}`)
}

func (t *taskGetPhase) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskGetPhaseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	phase, err := t.d.Tasks.GetPhase(p.TaskID)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "task %s not found", p.TaskID))
	}
	return t.d.ok(t.Name(), start, nil, map[string]string{"phase": string(phase)})
}

// --- apex_task_set_phase ---

type taskSetPhaseParams struct {
	TaskID   string `json:"task_id"`
	Phase    string `json:"phase"`
	Handoff  string `json:"handoff"`
	Explicit bool   `json:"explicit"`
}

type taskSetPhase struct{ d *Deps }

func (t *taskSetPhase) Name() string        { return "apex_task_set_phase" }
func (t *taskSetPhase) Description() string {
	return "Transition a task's phase, appending a handoff entry. Backward transitions require explicit=true."
}
func (t *taskSetPhase) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_id": {"type": "string"},
    "phase": {"type": "string", "enum": ["ARCHITECT", "BUILDER", "VALIDATOR", "REVIEWER", "DOCUMENTER"]},
    "handoff": {"type": "string"},
    "explicit": {"type": "boolean"}
  },
  "required": ["task_id", "phase"]
}`)
}

func (t *taskSetPhase) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	var p taskSetPhaseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	task, err := t.d.Tasks.SetPhase(p.TaskID, store.Phase(p.Phase), p.Handoff, p.Explicit)
	if err != nil {
		return t.d.fail(t.Name(), start, notFoundOrErr(err, "setting phase for %s: %v", p.TaskID, err))
	}
	return t.d.ok(t.Name(), start, nil, task)
}
