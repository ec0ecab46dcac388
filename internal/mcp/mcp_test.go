package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/benredmond/apex-sub002/internal/cache"
	"github.com/benredmond/apex-sub002/internal/metrics"
	"github.com/benredmond/apex-sub002/internal/rank"
	"github.com/benredmond/apex-sub002/internal/ratelimit"
	"github.com/benredmond/apex-sub002/internal/reflectpipeline"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/tasklifecycle"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &Deps{
		Store:           st,
		Cache:           cache.New(1000, time.Minute),
		RateLimit:       ratelimit.New(ratelimit.Config{WindowSeconds: 60, DefaultMax: 1000}),
		Metrics:         metrics.New(),
		Tasks:           tasklifecycle.New(st),
		Pipeline:        reflectpipeline.New(st, nil, nil, nil),
		Weights:         rank.DefaultWeights,
		PackMaxBytes:    8192,
		ContextMaxBytes: 28672,
	}
}

func seedPattern(t *testing.T, st *store.Store, id, title string) store.Pattern {
	t.Helper()
	p := store.Pattern{
		ID: id, Type: store.PatternCodebase, Title: title, Summary: title,
		JSONCanonical: `{"title":"` + title + `"}`, Tags: []string{"test"},
		Alpha: 1, Beta: 1,
	}
	if err := st.UpsertPattern(p); err != nil {
		t.Fatalf("seeding pattern %s: %v", id, err)
	}
	got, err := st.Get(id)
	if err != nil {
		t.Fatalf("fetching seeded pattern %s: %v", id, err)
	}
	return got
}

func decodeEnvelope(t *testing.T, result *ToolsCallResult) Envelope {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(result.Content))
	}
	var env Envelope
	if err := json.Unmarshal([]byte(result.Content[0].Text), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return env
}

func TestRegistryRegisterAllAndPanicsOnDuplicate(t *testing.T) {
	d := newTestDeps(t)
	r := NewRegistry()
	RegisterAll(r, d)

	if got := len(r.List()); got != 17 {
		t.Errorf("expected 17 registered tools, got %d", got)
	}
	if r.Get("apex_patterns_lookup") == nil {
		t.Fatal("expected apex_patterns_lookup to be registered")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	r.Register(&patternsLookup{d})
}

func TestPatternsExplainNotFound(t *testing.T) {
	d := newTestDeps(t)
	tool := &patternsExplain{d}
	params, _ := json.Marshal(map[string]string{"pattern_id": "missing"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for a missing pattern")
	}
}

func TestPatternsExplainFound(t *testing.T) {
	d := newTestDeps(t)
	seedPattern(t, d.Store, "pat-1", "use context cancellation")

	tool := &patternsExplain{d}
	params, _ := json.Marshal(map[string]string{"pattern_id": "pat-1"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content[0].Text)
	}
	env := decodeEnvelope(t, result)
	if env.RequestID == "" {
		t.Error("expected a non-empty request_id")
	}
	if env.CacheHit == nil || *env.CacheHit != false {
		t.Error("expected cache_hit=false on first explain call")
	}
}

func TestPatternsLookupMissingTaskIsInvalidParams(t *testing.T) {
	d := newTestDeps(t)
	tool := &patternsLookup{d}
	params, _ := json.Marshal(map[string]string{})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result when task is missing")
	}
}

func TestPatternsLookupCachesSecondCall(t *testing.T) {
	d := newTestDeps(t)
	seedPattern(t, d.Store, "pat-2", "retry with backoff")

	tool := &patternsLookup{d}
	params, _ := json.Marshal(map[string]string{"task": "how do I retry a flaky network call"})

	first, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	envFirst := decodeEnvelope(t, first)
	if envFirst.CacheHit == nil || *envFirst.CacheHit {
		t.Error("expected cache_hit=false on first call")
	}

	second, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	envSecond := decodeEnvelope(t, second)
	if envSecond.CacheHit == nil || !*envSecond.CacheHit {
		t.Error("expected cache_hit=true on second, identical call")
	}
}

func TestPatternsOverviewPagination(t *testing.T) {
	d := newTestDeps(t)
	for i := 0; i < 3; i++ {
		seedPattern(t, d.Store, "pat-ov-"+string(rune('a'+i)), "pattern")
	}

	tool := &patternsOverview{d}
	params, _ := json.Marshal(map[string]any{"page": 1, "page_size": 2})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	env := decodeEnvelope(t, result)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", env.Data)
	}
	if total, _ := data["total_items"].(float64); total != 3 {
		t.Errorf("expected total_items=3, got %v", data["total_items"])
	}
	if hasNext, _ := data["has_next"].(bool); !hasNext {
		t.Error("expected has_next=true with page_size=2 and 3 total items")
	}
}

func TestRateLimitedToolReturnsRateLimitedError(t *testing.T) {
	d := newTestDeps(t)
	d.RateLimit = ratelimit.New(ratelimit.Config{WindowSeconds: 60, DefaultMax: 1})

	tool := &patternsLookup{d}
	params, _ := json.Marshal(map[string]string{"task": "anything"})
	if _, err := tool.Execute(context.Background(), params); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected second call beyond the bucket's budget to return an error result")
	}
}

func TestTaskCreateAndCompleteRoundTrip(t *testing.T) {
	d := newTestDeps(t)
	create := &taskCreate{d}
	params, _ := json.Marshal(map[string]any{"title": "fix the bug", "intent": "squash the flaky test"})
	result, err := create.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content[0].Text)
	}
	env := decodeEnvelope(t, result)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", env.Data)
	}
	taskID, _ := data["ID"].(string)
	if taskID == "" {
		t.Fatal("expected a non-empty task id")
	}

	complete := &taskComplete{d}
	completeParams, _ := json.Marshal(map[string]string{"task_id": taskID})
	completeResult, err := complete.Execute(context.Background(), completeParams)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completeResult.IsError {
		t.Fatal("expected completion from ARCHITECT phase to fail with PHASE_VIOLATION")
	}
}

func TestReflectToolRequiresTaskID(t *testing.T) {
	d := newTestDeps(t)
	tool := &reflectTool{d}
	params, _ := json.Marshal(map[string]any{"task": map[string]string{}, "outcome": "success", "claims": map[string]any{}})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected missing task.id to be rejected")
	}
}
