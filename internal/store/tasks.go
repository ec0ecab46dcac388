package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// InsertTask creates a new task row, its tags, and an initial ARCHITECT
// phase handoff entry.
func (s *Store) InsertTask(t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Phase == "" {
		t.Phase = PhaseArchitect
	}
	if t.Status == "" {
		t.Status = TaskActive
	}
	if len(t.PhaseHandoffs) == 0 {
		t.PhaseHandoffs = []PhaseHandoff{{Phase: t.Phase, Handoff: "created", Timestamp: now}}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	if err := writeTask(tx, t); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	logging.TasksDebug("created task %s (phase=%s)", t.ID, t.Phase)
	return t, nil
}

func writeTask(tx *sql.Tx, t Task) error {
	filesJSON, _ := json.Marshal(t.FilesTouched)
	errorsJSON, _ := json.Marshal(t.ErrorsEncountered)
	inFlightJSON, _ := json.Marshal(t.InFlight)
	handoffsJSON, _ := json.Marshal(t.PhaseHandoffs)
	briefJSON, _ := json.Marshal(t.Brief)

	_, err := tx.Exec(`INSERT INTO tasks (id, identifier, title, intent, task_type, status, phase,
			confidence, files_touched, errors_encountered, in_flight, phase_handoffs, brief, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			identifier=excluded.identifier, title=excluded.title, intent=excluded.intent,
			task_type=excluded.task_type, status=excluded.status, phase=excluded.phase,
			confidence=excluded.confidence, files_touched=excluded.files_touched,
			errors_encountered=excluded.errors_encountered, in_flight=excluded.in_flight,
			phase_handoffs=excluded.phase_handoffs, brief=excluded.brief, updated_at=excluded.updated_at`,
		t.ID, nullableString(t.Identifier), t.Title, t.Intent, string(t.TaskType), string(t.Status),
		string(t.Phase), t.Confidence, string(filesJSON), string(errorsJSON), string(inFlightJSON),
		string(handoffsJSON), string(briefJSON), t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing task: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_tags WHERE task_id = ?`, t.ID); err != nil {
		return err
	}
	for _, tag := range t.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO task_tags(task_id, tag) VALUES (?, ?)`, t.ID, strings.ToLower(tag)); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id, identifier, title, intent, task_type, status, phase, confidence,
	files_touched, errors_encountered, in_flight, phase_handoffs, brief, created_at, updated_at`

func scanTask(row interface{ Scan(dest ...any) error }) (Task, error) {
	var t Task
	var identifier, intent, taskType sql.NullString
	var filesJSON, errorsJSON, inFlightJSON, handoffsJSON, briefJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &identifier, &t.Title, &intent, &taskType, &t.Status, &t.Phase, &t.Confidence,
		&filesJSON, &errorsJSON, &inFlightJSON, &handoffsJSON, &briefJSON, &createdAt, &updatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Identifier = identifier.String
	t.Intent = intent.String
	t.TaskType = TaskType(taskType.String)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	json.Unmarshal([]byte(filesJSON.String), &t.FilesTouched)
	json.Unmarshal([]byte(errorsJSON.String), &t.ErrorsEncountered)
	json.Unmarshal([]byte(inFlightJSON.String), &t.InFlight)
	json.Unmarshal([]byte(handoffsJSON.String), &t.PhaseHandoffs)
	json.Unmarshal([]byte(briefJSON.String), &t.Brief)
	return t, nil
}

// GetTask fetches a task by id, including its tags.
func (s *Store) GetTask(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	t.Tags, _ = s.taskTagsLocked(t.ID)
	return t, nil
}

func (s *Store) taskTagsLocked(taskID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT tag FROM task_tags WHERE task_id = ? ORDER BY tag`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// FindTasks lists tasks matching an optional identifier substring and/or
// status, newest first.
func (s *Store) FindTasks(identifierLike string, status TaskStatus, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clauses []string
	var args []any
	if identifierLike != "" {
		clauses = append(clauses, "(identifier LIKE ? OR title LIKE ?)")
		args = append(args, "%"+identifierLike+"%", "%"+identifierLike+"%")
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		t.Tags, _ = s.taskTagsLocked(t.ID)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask persists mutated task fields (status, confidence, tags,
// files_touched, errors_encountered) without touching phase machinery.
func (s *Store) UpdateTask(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := writeTask(tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendHandoff appends a phase transition entry and updates the task's
// current phase, enforcing the monotonic-forward invariant unless
// explicitHandoff permits a return to an earlier phase.
func (s *Store) AppendHandoff(taskID string, newPhase Phase, handoffNote string, explicit bool) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("append handoff: %w", err)
	}

	if !explicit && !isForwardPhase(t.Phase, newPhase) {
		return Task{}, fmt.Errorf("%w: %s -> %s is not a monotonic forward transition", ErrInvalidState, t.Phase, newPhase)
	}

	now := time.Now().UTC()
	t.Phase = newPhase
	t.PhaseHandoffs = append(t.PhaseHandoffs, PhaseHandoff{Phase: newPhase, Handoff: handoffNote, Timestamp: now})
	t.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()
	if err := writeTask(tx, t); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	logging.TasksDebug("task %s phase -> %s", taskID, newPhase)
	return t, nil
}

func isForwardPhase(from, to Phase) bool {
	fromIdx, toIdx := -1, -1
	for i, p := range PhaseOrder {
		if p == from {
			fromIdx = i
		}
		if p == to {
			toIdx = i
		}
	}
	return toIdx >= fromIdx && toIdx != -1
}

// Checkpoint appends a timestamped note to in_flight and optionally
// updates confidence.
func (s *Store) Checkpoint(taskID, note string, confidence *float64) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	t.InFlight = append(t.InFlight, Checkpoint{Note: note, Confidence: confidence, Timestamp: now})
	if confidence != nil {
		t.Confidence = *confidence
	}
	t.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()
	if err := writeTask(tx, t); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// CompleteTask marks a task completed, permitted only from DOCUMENTER.
func (s *Store) CompleteTask(taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if t.Phase != PhaseDocumenter {
		return Task{}, ErrPhaseViolation
	}

	t.Status = TaskCompleted
	t.UpdatedAt = time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()
	if err := writeTask(tx, t); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// InsertEvidence appends an evidence record for a task.
func (s *Store) InsertEvidence(e TaskEvidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO task_evidence (id, task_id, type, content, metadata, timestamp)
		VALUES (?,?,?,?,?,?)`,
		e.ID, e.TaskID, string(e.Type), e.Content, e.Metadata, e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// GetEvidence returns a task's evidence, ordered by timestamp.
func (s *Store) GetEvidence(taskID string) ([]TaskEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, task_id, type, content, metadata, timestamp FROM task_evidence
		WHERE task_id = ? ORDER BY timestamp ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	defer rows.Close()

	var out []TaskEvidence
	for rows.Next() {
		var e TaskEvidence
		var ts string
		var metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &e.Content, &metadata, &ts); err != nil {
			return nil, err
		}
		e.Metadata = metadata.String
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
