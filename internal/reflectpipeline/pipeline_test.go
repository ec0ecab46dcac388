package reflectpipeline

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/benredmond/apex-sub002/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.UpsertPattern(store.Pattern{
		ID: "PAT:X", Type: store.PatternCodebase, Title: "t", Summary: "s",
		JSONCanonical: "{}", Alpha: 1, Beta: 1,
	}); err != nil {
		t.Fatalf("seeding pattern: %v", err)
	}
	if _, err := s.InsertTask(store.Task{ID: "T1", Title: "t"}); err != nil {
		t.Fatalf("seeding task: %v", err)
	}

	return New(s, nil, nil, nil), s
}

func scenario1Request() Request {
	return Request{
		Task:    TaskRef{ID: "T1", Title: "t"},
		Outcome: "success",
		Claims: Claims{
			PatternsUsed: []PatternUsed{
				{PatternID: "PAT:X", Evidence: []Evidence{{Kind: EvidenceGitLines, File: "a.ts", SHA: "HEAD", Start: 1, End: 2}}},
			},
			TrustUpdates: []TrustUpdateClaim{{PatternID: "PAT:X", Outcome: "worked-perfectly"}},
		},
	}
}

func TestScenario1FreshPatternOneSuccess(t *testing.T) {
	p, s := newTestPipeline(t)
	resp, err := p.Process(scenario1Request())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !resp.OK || !resp.Persisted {
		t.Fatalf("expected ok=true persisted=true, got %+v", resp)
	}

	pat, err := s.Get("PAT:X")
	if err != nil {
		t.Fatalf("get pattern: %v", err)
	}
	if pat.Alpha != 2 || pat.Beta != 1 {
		t.Errorf("expected alpha=2 beta=1, got alpha=%v beta=%v", pat.Alpha, pat.Beta)
	}
	if math.Abs(pat.TrustScore-2.0/3.0) > 1e-4 {
		t.Errorf("expected trust_score ~0.6667, got %v", pat.TrustScore)
	}
}

func TestScenario2IdempotentReplay(t *testing.T) {
	p, s := newTestPipeline(t)
	req := scenario1Request()

	if _, err := p.Process(req); err != nil {
		t.Fatalf("first process: %v", err)
	}
	before, _ := s.Get("PAT:X")

	resp, err := p.Process(req)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !resp.OK || resp.Persisted {
		t.Fatalf("expected ok=true persisted=false on replay, got %+v", resp)
	}

	after, _ := s.Get("PAT:X")
	if before.Alpha != after.Alpha || before.Beta != after.Beta {
		t.Errorf("pattern state changed on replay: before=%+v after=%+v", before, after)
	}
}

func TestScenario3InvalidOutcomeSuggestsClosest(t *testing.T) {
	p, _ := newTestPipeline(t)
	req := scenario1Request()
	req.Outcome = "maybe-worked"

	resp, err := p.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.OK {
		t.Fatal("expected ok=false for invalid outcome")
	}
	if len(resp.Rejected) == 0 {
		t.Fatal("expected at least one rejected entry")
	}
}

func TestDryRunShortCircuits(t *testing.T) {
	p, s := newTestPipeline(t)
	req := scenario1Request()
	req.DryRun = true

	resp, err := p.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !resp.OK || resp.Persisted {
		t.Fatalf("expected ok=true persisted=false for dry run, got %+v", resp)
	}
	pat, _ := s.Get("PAT:X")
	if pat.Alpha != 1 || pat.Beta != 1 {
		t.Error("dry run must not mutate trust state")
	}
}

func TestMissingEvidenceRejected(t *testing.T) {
	p, _ := newTestPipeline(t)
	req := scenario1Request()
	req.Claims.PatternsUsed[0].Evidence = nil

	resp, err := p.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.OK {
		t.Fatal("expected rejection for missing evidence")
	}
}

func TestNonHexShaRejected(t *testing.T) {
	p, _ := newTestPipeline(t)
	req := scenario1Request()
	req.Claims.PatternsUsed[0].Evidence[0].SHA = "not-a-sha"

	resp, err := p.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.OK {
		t.Fatal("expected rejection for malformed sha")
	}
}
