// Package tasklifecycle implements the task state machine and context
// assembly described in §4.7: create/find/findSimilar/current/update/
// checkpoint/complete/appendEvidence/getEvidence/getPhase/setPhase, plus
// brief generation and the size-bounded context pack. Grounded on the
// teacher's cmd/nerd validation.Registry convention for gating state
// transitions (internal/validation/transitions.go in the specmcp pack,
// adapted from entity transitions to task phases) and the
// store.AppendHandoff monotonic-phase enforcement it wraps.
package tasklifecycle

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/benredmond/apex-sub002/internal/idgen"
	"github.com/benredmond/apex-sub002/internal/schema"
	"github.com/benredmond/apex-sub002/internal/store"
)

// Service wires task lifecycle operations to a concrete store, with a
// findSimilar result cache keyed per task_id.
type Service struct {
	Store *store.Store

	similarCacheMu sync.Mutex
	similarCache   map[string][]SimilarTask
}

// New creates a Service.
func New(s *store.Store) *Service {
	return &Service{Store: s, similarCache: map[string][]SimilarTask{}}
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	Identifier string
	Title      string
	Intent     string
	TaskType   store.TaskType
	Tags       []string
}

// Create inserts a new task in ARCHITECT phase with a deterministic basic
// brief, per §4.7.
func (s *Service) Create(req CreateRequest) (store.Task, error) {
	task := store.Task{
		ID:         idgen.NewPrefixed("task"),
		Identifier: req.Identifier,
		Title:      req.Title,
		Intent:     req.Intent,
		TaskType:   req.TaskType,
		Tags:       schema.SanitizeTags(req.Tags),
		Status:     store.TaskActive,
		Phase:      store.PhaseArchitect,
		Brief:      basicBrief(req.Intent),
	}
	return s.Store.InsertTask(task)
}

// basicBrief derives a deterministic brief from intent text, per §4.7:
// a tl_dr truncated to <=50 chars with ellipsis, empty
// objectives/plan/constraints, and a placeholder test scaffold.
func basicBrief(intent string) store.Brief {
	tlDR := strings.TrimSpace(intent)
	if len(tlDR) > 50 {
		tlDR = tlDR[:50-len("…")] + "…"
	}
	return store.Brief{
		TLDR:         tlDR,
		Objectives:   []string{},
		Plan:         []string{},
		Constraints:  []string{},
		TestScaffold: "// TODO: add test scaffold",
	}
}

// Find locates tasks by identifier/title substring and status.
func (s *Service) Find(identifierLike string, status store.TaskStatus, limit int) ([]store.Task, error) {
	return s.Store.FindTasks(identifierLike, status, limit)
}

// Current returns a task by id.
func (s *Service) Current(taskID string) (store.Task, error) {
	return s.Store.GetTask(taskID)
}

// Update persists mutated task fields.
func (s *Service) Update(task store.Task) error {
	task.Tags = schema.SanitizeTags(task.Tags)
	if err := s.Store.UpdateTask(task); err != nil {
		return err
	}
	s.evictSimilar(task.ID)
	return nil
}

// Checkpoint appends an in-flight note and optional confidence update.
func (s *Service) Checkpoint(taskID, note string, confidence *float64) (store.Task, error) {
	task, err := s.Store.Checkpoint(taskID, note, confidence)
	if err != nil {
		return task, err
	}
	s.evictSimilar(taskID)
	return task, nil
}

// Complete finalizes a task; the store enforces the DOCUMENTER-only gate.
func (s *Service) Complete(taskID string) (store.Task, error) {
	task, err := s.Store.CompleteTask(taskID)
	if err != nil {
		return task, err
	}
	s.evictSimilar(taskID)
	return task, nil
}

// evictSimilar drops a task's cached FindSimilar result, so a mutation is
// reflected on the next lookup rather than serving a stale ranking.
func (s *Service) evictSimilar(taskID string) {
	s.similarCacheMu.Lock()
	delete(s.similarCache, taskID)
	s.similarCacheMu.Unlock()
}

// AppendEvidence appends an evidence record.
func (s *Service) AppendEvidence(e store.TaskEvidence) error {
	if e.ID == "" {
		e.ID = idgen.NewPrefixed("ev")
	}
	return s.Store.InsertEvidence(e)
}

// GetEvidence returns a task's evidence log.
func (s *Service) GetEvidence(taskID string) ([]store.TaskEvidence, error) {
	return s.Store.GetEvidence(taskID)
}

// GetPhase returns a task's current phase.
func (s *Service) GetPhase(taskID string) (store.Phase, error) {
	t, err := s.Store.GetTask(taskID)
	if err != nil {
		return "", err
	}
	return t.Phase, nil
}

// SetPhase transitions a task's phase, appending a handoff entry.
// Explicit transitions (including backward ones) are permitted when
// explicit=true, matching §3's "may return to an earlier phase only via
// explicit update with a handoff entry" invariant.
func (s *Service) SetPhase(taskID string, phase store.Phase, handoffNote string, explicit bool) (store.Task, error) {
	return s.Store.AppendHandoff(taskID, phase, handoffNote, explicit)
}

// SimilarTask is one ranked result from FindSimilar.
type SimilarTask struct {
	Task  store.Task
	Score float64
}

// FindSimilar returns up to n previous tasks ranked by a similarity score
// over tags, title trigrams, touched-file overlap, and task_type match,
// cached per task_id per §4.7.
func (s *Service) FindSimilar(taskID string, n int) ([]SimilarTask, error) {
	s.similarCacheMu.Lock()
	if cached, ok := s.similarCache[taskID]; ok {
		s.similarCacheMu.Unlock()
		return capSimilar(cached, n), nil
	}
	s.similarCacheMu.Unlock()

	target, err := s.Store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.Store.FindTasks("", "", 200)
	if err != nil {
		return nil, err
	}

	var scored []SimilarTask
	for _, c := range candidates {
		if c.ID == taskID {
			continue
		}
		scored = append(scored, SimilarTask{Task: c, Score: similarity(target, c)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	s.similarCacheMu.Lock()
	s.similarCache[taskID] = scored
	s.similarCacheMu.Unlock()

	return capSimilar(scored, n), nil
}

func capSimilar(scored []SimilarTask, n int) []SimilarTask {
	if n <= 0 || n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}

func similarity(a, b store.Task) float64 {
	score := 0.0
	score += 0.3 * tagOverlap(a.Tags, b.Tags)
	score += 0.3 * trigramSimilarity(a.Title, b.Title)
	score += 0.25 * fileOverlap(a.FilesTouched, b.FilesTouched)
	if a.TaskType != "" && a.TaskType == b.TaskType {
		score += 0.15
	}
	return score
}

func tagOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setB := map[string]bool{}
	for _, t := range b {
		setB[t] = true
	}
	matches := 0
	for _, t := range a {
		if setB[t] {
			matches++
		}
	}
	return float64(matches) / float64(maxInt(len(a), len(b)))
}

func fileOverlap(a, b []string) float64 {
	return tagOverlap(a, b)
}

func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setB := map[string]bool{}
	for t := range tb {
		setB[t] = true
	}
	matches := 0
	for t := range ta {
		if setB[t] {
			matches++
		}
	}
	union := len(ta) + len(tb) - matches
	if union == 0 {
		return 0
	}
	return float64(matches) / float64(union)
}

func trigrams(s string) map[string]bool {
	s = strings.ToLower(s)
	out := map[string]bool{}
	if len(s) < 3 {
		if s != "" {
			out[s] = true
		}
		return out
	}
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = true
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ContextPack is the §4.7 `context` operation's response shape.
type ContextPack struct {
	TaskData     store.Task
	Evidence     []store.TaskEvidence
	SimilarTasks []SimilarTask
	Patterns     []store.Pattern
	Statistics   map[string]any
}

// Context assembles the bounded context pack, trimming similar tasks and
// evidence first when the serialized size exceeds maxSizeBytes (default
// 28672 per §4.7).
func (s *Service) Context(taskID string, maxSizeBytes int, patterns []store.Pattern) (ContextPack, error) {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 28672
	}

	task, err := s.Store.GetTask(taskID)
	if err != nil {
		return ContextPack{}, err
	}
	evidence, err := s.Store.GetEvidence(taskID)
	if err != nil {
		return ContextPack{}, err
	}
	similar, err := s.FindSimilar(taskID, 10)
	if err != nil {
		return ContextPack{}, err
	}

	pack := ContextPack{
		TaskData:     task,
		Evidence:     evidence,
		SimilarTasks: similar,
		Patterns:     patterns,
		Statistics:   map[string]any{"evidence_count": len(evidence), "similar_count": len(similar)},
	}

	for serializedSize(pack) > maxSizeBytes && (len(pack.SimilarTasks) > 0 || len(pack.Evidence) > 0) {
		if len(pack.SimilarTasks) > 0 {
			pack.SimilarTasks = pack.SimilarTasks[:len(pack.SimilarTasks)-1]
			continue
		}
		pack.Evidence = pack.Evidence[:len(pack.Evidence)-1]
	}

	return pack, nil
}

func serializedSize(pack ContextPack) int {
	b, err := json.Marshal(pack)
	if err != nil {
		return 0
	}
	return len(b)
}
