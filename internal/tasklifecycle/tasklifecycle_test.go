package tasklifecycle

import (
	"path/filepath"
	"testing"

	"github.com/benredmond/apex-sub002/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestCreateSeedsArchitectPhaseAndBrief(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.Create(CreateRequest{
		Identifier: "T-1",
		Title:      "fix the thing",
		Intent:     "the quick brown fox jumps over the lazy dog in a very long sentence indeed",
		TaskType:   store.TaskTypeBug,
		Tags:       []string{"Foo", "foo", "  bar  "},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Phase != store.PhaseArchitect {
		t.Errorf("expected ARCHITECT phase, got %s", task.Phase)
	}
	if len(task.Brief.TLDR) > 50 {
		t.Errorf("tl_dr exceeds 50 chars: %q (%d)", task.Brief.TLDR, len(task.Brief.TLDR))
	}
	if len(task.Tags) != 2 {
		t.Errorf("expected sanitized/deduped tags, got %v", task.Tags)
	}
}

func TestSetPhaseRejectsImplicitBackwardTransition(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.Create(CreateRequest{Identifier: "T-2", Title: "t", Intent: "i"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetPhase(task.ID, store.PhaseReviewer, "skip ahead", false); err != nil {
		t.Fatalf("forward transition should succeed: %v", err)
	}
	if _, err := svc.SetPhase(task.ID, store.PhaseBuilder, "go back implicitly", false); err == nil {
		t.Fatal("expected implicit backward transition to be rejected")
	}
	if _, err := svc.SetPhase(task.ID, store.PhaseBuilder, "go back explicitly", true); err != nil {
		t.Fatalf("explicit backward transition should succeed: %v", err)
	}
}

func TestCompleteRequiresDocumenterPhase(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.Create(CreateRequest{Identifier: "T-3", Title: "t", Intent: "i"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Complete(task.ID); err == nil {
		t.Fatal("expected completion from ARCHITECT to fail")
	}
	if _, err := svc.SetPhase(task.ID, store.PhaseDocumenter, "done", true); err != nil {
		t.Fatalf("set phase: %v", err)
	}
	if _, err := svc.Complete(task.ID); err != nil {
		t.Fatalf("expected completion from DOCUMENTER to succeed: %v", err)
	}
}

func TestFindSimilarRanksSharedTagsAndTaskTypeHigher(t *testing.T) {
	svc := newTestService(t)
	target, err := svc.Create(CreateRequest{Identifier: "T-target", Title: "fix login bug", TaskType: store.TaskTypeBug, Tags: []string{"auth", "login"}})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	close_, err := svc.Create(CreateRequest{Identifier: "T-close", Title: "fix login issue", TaskType: store.TaskTypeBug, Tags: []string{"auth", "login"}})
	if err != nil {
		t.Fatalf("create close: %v", err)
	}
	far, err := svc.Create(CreateRequest{Identifier: "T-far", Title: "write docs", TaskType: store.TaskTypeDocs, Tags: []string{"docs"}})
	if err != nil {
		t.Fatalf("create far: %v", err)
	}

	results, err := svc.FindSimilar(target.ID, 10)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 similar tasks, got %d", len(results))
	}
	if results[0].Task.ID != close_.ID {
		t.Errorf("expected closest match first, got %s (far=%s)", results[0].Task.ID, far.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected close task to outscore far task: %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestFindSimilarIsCachedPerTask(t *testing.T) {
	svc := newTestService(t)
	target, _ := svc.Create(CreateRequest{Identifier: "T-cache", Title: "t", TaskType: store.TaskTypeBug})
	if _, err := svc.FindSimilar(target.ID, 10); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, ok := svc.similarCache[target.ID]; !ok {
		t.Fatal("expected result to be cached")
	}
}

func TestContextTrimsToFitBudget(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.Create(CreateRequest{Identifier: "T-ctx", Title: "t", Intent: "i"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := svc.AppendEvidence(store.TaskEvidence{TaskID: task.ID, Type: store.EvidenceDecision, Content: "a fairly long decision note repeated many times to pad out size"}); err != nil {
			t.Fatalf("append evidence: %v", err)
		}
	}

	pack, err := svc.Context(task.ID, 2048, nil)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(pack.Evidence) >= 50 {
		t.Errorf("expected evidence to be trimmed to fit budget, got %d items", len(pack.Evidence))
	}
	if serializedSize(pack) > 2048 {
		t.Errorf("expected pack to fit budget, got %d bytes", serializedSize(pack))
	}
}

func TestContextDefaultsBudgetWhenZero(t *testing.T) {
	svc := newTestService(t)
	task, _ := svc.Create(CreateRequest{Identifier: "T-def", Title: "t", Intent: "i"})
	pack, err := svc.Context(task.ID, 0, nil)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if pack.TaskData.ID != task.ID {
		t.Errorf("expected task data for %s, got %s", task.ID, pack.TaskData.ID)
	}
}
