package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePattern(id string) Pattern {
	return Pattern{
		ID:            id,
		Type:          PatternCodebase,
		Title:         "Use context cancellation in long loops",
		Summary:       "Always thread context.Context through blocking loops so callers can cancel.",
		JSONCanonical: `{"snippet":"for { select { case <-ctx.Done(): return } }"}`,
		Tags:          []string{"Go", "Concurrency"},
		Alpha:         1,
		Beta:          1,
		UsageCount:    0,
		SuccessCount:  0,
	}
}

func TestUpsertThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	p := samplePattern("pat_001")
	if err := s.UpsertPattern(p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Get("pat_001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != p.Title {
		t.Errorf("title = %q, want %q", got.Title, p.Title)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %d: %v", len(got.Tags), got.Tags)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertRejectsInvalidTrustParams(t *testing.T) {
	s := openTestStore(t)
	p := samplePattern("pat_bad")
	p.Alpha = 0
	if err := s.UpsertPattern(p); err == nil {
		t.Fatal("expected error for alpha < 1")
	}
}

func TestListFiltersByType(t *testing.T) {
	s := openTestStore(t)
	a := samplePattern("pat_a")
	b := samplePattern("pat_b")
	b.Type = PatternAnti
	if err := s.UpsertPattern(a); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPattern(b); err != nil {
		t.Fatal(err)
	}

	results, err := s.List(Filter{Types: []PatternType{PatternAnti}}, "updated_at", true, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 1 || results[0].ID != "pat_b" {
		t.Errorf("expected only pat_b, got %+v", results)
	}
}

func TestSearchEmptyQueryFallsBackToListing(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertPattern(samplePattern("pat_001")); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(SearchRequest{FTSQuery: "", K: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result from facet fallback, got %d", len(results))
	}
}

func TestSearchMatchesTitle(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertPattern(samplePattern("pat_001")); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(SearchRequest{FTSQuery: "context cancellation", K: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Error("expected at least one match for context cancellation")
	}
}

func TestUpdateTrustPersists(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertPattern(samplePattern("pat_001")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTrust("pat_001", 2, 1, 2.0/3.0, true); err != nil {
		t.Fatalf("update trust: %v", err)
	}
	got, err := s.Get("pat_001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Alpha != 2 || got.UsageCount != 1 || got.SuccessCount != 1 {
		t.Errorf("unexpected post-update state: %+v", got)
	}
}

func TestInsertTaskAndPhaseTransitions(t *testing.T) {
	s := openTestStore(t)
	task := Task{ID: "task_001", Title: "Fix flaky test", TaskType: TaskTypeBug}
	created, err := s.InsertTask(task)
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if created.Phase != PhaseArchitect {
		t.Errorf("expected initial phase ARCHITECT, got %s", created.Phase)
	}

	updated, err := s.AppendHandoff("task_001", PhaseBuilder, "design complete", false)
	if err != nil {
		t.Fatalf("append handoff: %v", err)
	}
	if updated.Phase != PhaseBuilder {
		t.Errorf("expected phase BUILDER, got %s", updated.Phase)
	}

	_, err = s.AppendHandoff("task_001", PhaseArchitect, "oops", false)
	if err == nil {
		t.Error("expected backward transition to be rejected without explicit flag")
	}

	_, err = s.AppendHandoff("task_001", PhaseArchitect, "explicit rework", true)
	if err != nil {
		t.Errorf("explicit backward transition should be allowed: %v", err)
	}
}

func TestCompleteRequiresDocumenterPhase(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.InsertTask(Task{ID: "task_002", Title: "x"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.CompleteTask("task_002")
	if err != ErrPhaseViolation {
		t.Errorf("expected ErrPhaseViolation, got %v", err)
	}
}

func TestReflectionIdempotency(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertPattern(samplePattern("pat_001")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertTask(Task{ID: "task_003", Title: "x"}); err != nil {
		t.Fatal(err)
	}

	hash := ContentHash("task_003", `{"outcome":"success"}`)
	rt := ReflectionTransaction{
		Reflection: Reflection{
			ID:            "refl_001",
			TaskID:        "task_003",
			Outcome:       ReflectionSuccess,
			ContentHash:   hash,
			ClaimsPayload: `{"outcome":"success"}`,
			ReceivedAt:    time.Now(),
		},
		TrustUpdates: []TrustUpdate{{PatternID: "pat_001", Alpha: 2, Beta: 1, Score: 2.0 / 3.0, Success: true}},
		PatternsUsed: []string{"pat_001"},
	}

	persisted, err := s.StoreReflection(rt)
	if err != nil {
		t.Fatalf("store reflection: %v", err)
	}
	if !persisted {
		t.Error("expected first reflection to persist")
	}

	rt.Reflection.ID = "refl_002" // different id, same (task, content hash)
	persisted, err = s.StoreReflection(rt)
	if err != nil {
		t.Fatalf("store reflection (repeat): %v", err)
	}
	if persisted {
		t.Error("expected repeated reflection to be a no-op (idempotent)")
	}
}

func TestInsertEvidenceOrderedByTimestamp(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.InsertTask(Task{ID: "task_004", Title: "x"}); err != nil {
		t.Fatal(err)
	}
	first := time.Now().Add(-time.Hour)
	second := time.Now()
	if err := s.InsertEvidence(TaskEvidence{ID: "ev_1", TaskID: "task_004", Type: EvidenceFile, Content: "a.go", Timestamp: first}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvidence(TaskEvidence{ID: "ev_2", TaskID: "task_004", Type: EvidenceFile, Content: "b.go", Timestamp: second}); err != nil {
		t.Fatal(err)
	}

	evidence, err := s.GetEvidence("task_004")
	if err != nil {
		t.Fatalf("get evidence: %v", err)
	}
	if len(evidence) != 2 || evidence[0].ID != "ev_1" {
		t.Errorf("expected ev_1 first, got %+v", evidence)
	}
}
