package mcp

import (
	"context"
	"encoding/json"

	"github.com/benredmond/apex-sub002/internal/apierr"
	"github.com/benredmond/apex-sub002/internal/cache"
	"github.com/benredmond/apex-sub002/internal/pack"
	"github.com/benredmond/apex-sub002/internal/rank"
	"github.com/benredmond/apex-sub002/internal/signals"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/trust"
)

// --- apex_patterns_lookup ---

type lookupParams struct {
	Task            string                 `json:"task"`
	CurrentFile     string                 `json:"current_file"`
	Language        string                 `json:"language"`
	Framework       string                 `json:"framework"`
	RecentErrors    []string               `json:"recent_errors"`
	RepoPath        string                 `json:"repo_path"`
	TaskIntent      signals.TaskIntent     `json:"task_intent"`
	CodeContext     signals.CodeContext    `json:"code_context"`
	ErrorContext    []signals.ErrorContext `json:"error_context"`
	SessionContext  signals.SessionContext `json:"session_context"`
	ProjectSignals  signals.ProjectSignals `json:"project_signals"`
	WorkflowPhase   string                 `json:"workflow_phase"`
	K               int                    `json:"k"`
	MaxSizeBytes    int                    `json:"max_size_bytes"`
}

type patternsLookup struct{ d *Deps }

func (t *patternsLookup) Name() string        { return "apex_patterns_lookup" }
func (t *patternsLookup) Description() string { return "Rank stored patterns against a task description and surrounding signals, returning a size-bounded pack." }
func (t *patternsLookup) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task": {"type": "string", "description": "Free-text description of the task at hand"},
    "current_file": {"type": "string"},
    "language": {"type": "string"},
    "framework": {"type": "string"},
    "recent_errors": {"type": "array", "items": {"type": "string"}},
    "repo_path": {"type": "string"},
    "k": {"type": "integer", "description": "Max candidates to consider before ranking"},
    "max_size_bytes": {"type": "integer", "description": "Pack size budget in bytes (default 8192)"}
  },
  "required": ["task"]
}`)
}

func (t *patternsLookup) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	if !t.d.RateLimit.Allow(t.Name()) {
		return t.d.fail(t.Name(), start, rateLimited(t.Name()))
	}

	var p lookupParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.Task == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "task is required").WithFields([]apierr.FieldError{{Path: "task", Code: "required", Message: "task is required"}}))
	}

	key := cache.Key(t.Name(), p)
	if cached, ok := t.d.Cache.Get(key); ok {
		t.d.Metrics.RecordCacheHit()
		var data any
		json.Unmarshal(cached, &data)
		hit := true
		return t.d.ok(t.Name(), start, &hit, data)
	}
	t.d.Metrics.RecordCacheMiss()

	sig := signals.Extract(signals.Request{
		Task: p.Task, CurrentFile: p.CurrentFile, Language: p.Language, Framework: p.Framework,
		RecentErrors: p.RecentErrors, RepoPath: p.RepoPath, TaskIntent: p.TaskIntent,
		CodeContext: p.CodeContext, ErrorContext: p.ErrorContext, SessionContext: p.SessionContext,
		ProjectSignals: p.ProjectSignals, WorkflowPhase: p.WorkflowPhase,
	})

	k := p.K
	if k <= 0 {
		k = 20
	}
	patterns, err := t.d.Store.Lookup(store.LookupRequest{
		Task: p.Task, Languages: sig.Languages, Tags: sig.RecentPatterns, K: k,
	})
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}

	scored := t.d.rankPatterns(patterns, sig)
	maxBytes := p.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = t.d.PackMaxBytes
	}
	assembled := pack.Assemble(scored, maxBytes, snippetOf)

	miss := false
	payload, _ := json.Marshal(assembled)
	t.d.Cache.Put(key, payload)
	return t.d.ok(t.Name(), start, &miss, assembled)
}

// rankPatterns fetches each candidate's decayed trust score and runs the
// ranker, shared by lookup and discover.
func (d *Deps) rankPatterns(patterns []store.Pattern, sig signals.Signals) []rank.Scored {
	triggersByID, _ := d.Store.GetTriggers(idsOf(patterns))
	candidates := make([]rank.Candidate, 0, len(patterns))
	for _, p := range patterns {
		state := trust.State{Alpha: p.Alpha, Beta: p.Beta, LastUpdated: p.UpdatedAt}
		score, err := trust.Calculate(state, d.priorFor(p.Type), d.now())
		if err != nil {
			continue
		}
		candidates = append(candidates, rank.Candidate{
			Pattern: p, TrustValue: score.Value, TrustConfidence: score.Confidence,
			Triggers: triggersByID[p.ID],
		})
	}
	return rank.Rank(candidates, sig, d.Weights, d.now())
}

func idsOf(patterns []store.Pattern) []string {
	ids := make([]string, len(patterns))
	for i, p := range patterns {
		ids[i] = p.ID
	}
	return ids
}

func snippetOf(jsonCanonical string) string {
	if len(jsonCanonical) <= 400 {
		return jsonCanonical
	}
	return jsonCanonical[:400]
}

// --- apex_patterns_discover ---

type discoverParams struct {
	Query        string   `json:"query"`
	Types        []string `json:"types"`
	Tags         []string `json:"tags"`
	K            int      `json:"k"`
	MaxSizeBytes int      `json:"max_size_bytes"`
}

type patternsDiscover struct{ d *Deps }

func (t *patternsDiscover) Name() string        { return "apex_patterns_discover" }
func (t *patternsDiscover) Description() string { return "Natural-language full-text search over stored patterns." }
func (t *patternsDiscover) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "types": {"type": "array", "items": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "k": {"type": "integer"},
    "max_size_bytes": {"type": "integer"}
  },
  "required": ["query"]
}`)
}

func (t *patternsDiscover) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	if !t.d.RateLimit.Allow(t.Name()) {
		return t.d.fail(t.Name(), start, rateLimited(t.Name()))
	}

	var p discoverParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.Query == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "query is required").WithFields([]apierr.FieldError{{Path: "query", Code: "required", Message: "query is required"}}))
	}

	key := cache.Key(t.Name(), p)
	if cached, ok := t.d.Cache.Get(key); ok {
		t.d.Metrics.RecordCacheHit()
		var data any
		json.Unmarshal(cached, &data)
		hit := true
		return t.d.ok(t.Name(), start, &hit, data)
	}
	t.d.Metrics.RecordCacheMiss()

	var types []store.PatternType
	for _, ty := range p.Types {
		types = append(types, store.PatternType(ty))
	}
	k := p.K
	if k <= 0 {
		k = 20
	}
	patterns, err := t.d.Store.Search(store.SearchRequest{FTSQuery: p.Query, Types: types, Tags: p.Tags, K: k})
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}

	sig := signals.Extract(signals.Request{Task: p.Query})
	scored := t.d.rankPatterns(patterns, sig)
	maxBytes := p.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = t.d.PackMaxBytes
	}
	assembled := pack.Assemble(scored, maxBytes, snippetOf)

	miss := false
	payload, _ := json.Marshal(assembled)
	t.d.Cache.Put(key, payload)
	return t.d.ok(t.Name(), start, &miss, assembled)
}

// --- apex_patterns_explain ---

type explainParams struct {
	PatternID string `json:"pattern_id"`
}

type explainResult struct {
	Pattern  store.Pattern           `json:"pattern"`
	Trust    trust.TrustScore        `json:"trust"`
	Triggers []store.PatternTrigger  `json:"triggers"`
	Metadata []store.PatternMetadata `json:"metadata"`
	Vocab    []store.PatternVocab    `json:"vocab"`
}

type patternsExplain struct{ d *Deps }

func (t *patternsExplain) Name() string        { return "apex_patterns_explain" }
func (t *patternsExplain) Description() string { return "Explain a single pattern: its trust state, triggers, and metadata." }
func (t *patternsExplain) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"pattern_id": {"type": "string"}},
  "required": ["pattern_id"]
}`)
}

func (t *patternsExplain) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	if !t.d.RateLimit.Allow(t.Name()) {
		return t.d.fail(t.Name(), start, rateLimited(t.Name()))
	}

	var p explainParams
	if err := json.Unmarshal(params, &p); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if p.PatternID == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "pattern_id is required").WithFields([]apierr.FieldError{{Path: "pattern_id", Code: "required", Message: "pattern_id is required"}}))
	}

	pat, err := t.d.Store.Get(p.PatternID)
	if err != nil {
		if err == store.ErrNotFound {
			return t.d.fail(t.Name(), start, apierr.New(apierr.NotFound, "pattern %s not found", p.PatternID))
		}
		return t.d.fail(t.Name(), start, err)
	}

	triggersByID, _ := t.d.Store.GetTriggers([]string{pat.ID})
	metaByID, _ := t.d.Store.GetMetadata([]string{pat.ID})
	vocabByID, _ := t.d.Store.GetVocab([]string{pat.ID})

	state := trust.State{Alpha: pat.Alpha, Beta: pat.Beta, LastUpdated: pat.UpdatedAt}
	score, err := trust.Calculate(state, t.d.priorFor(pat.Type), t.d.now())
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}

	result := explainResult{Pattern: pat, Trust: score, Triggers: triggersByID[pat.ID], Metadata: metaByID[pat.ID], Vocab: vocabByID[pat.ID]}
	miss := false
	return t.d.ok(t.Name(), start, &miss, result)
}

// --- apex_patterns_overview ---

type overviewParams struct {
	Status   string   `json:"status"`
	Types    []string `json:"types"`
	Tags     []string `json:"tags"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

type overviewResult struct {
	Items      []store.Pattern `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalItems int             `json:"total_items"`
	TotalPages int             `json:"total_pages"`
	HasNext    bool            `json:"has_next"`
	HasPrev    bool            `json:"has_prev"`
}

type patternsOverview struct{ d *Deps }

func (t *patternsOverview) Name() string        { return "apex_patterns_overview" }
func (t *patternsOverview) Description() string { return "Paginated filtered listing of all stored patterns." }
func (t *patternsOverview) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "status": {"type": "string", "enum": ["active", "invalid"]},
    "types": {"type": "array", "items": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "page": {"type": "integer", "default": 1},
    "page_size": {"type": "integer", "default": 50}
  }
}`)
}

func (t *patternsOverview) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()
	if !t.d.RateLimit.Allow(t.Name()) {
		return t.d.fail(t.Name(), start, rateLimited(t.Name()))
	}

	var p overviewParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
		}
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 50
	}

	var types []store.PatternType
	for _, ty := range p.Types {
		types = append(types, store.PatternType(ty))
	}
	filter := store.Filter{Types: types, Tags: p.Tags}
	if p.Status == "active" {
		valid := true
		filter.Valid = &valid
	} else if p.Status == "invalid" {
		invalid := false
		filter.Valid = &invalid
	}

	total, err := t.d.Store.Count(filter)
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}
	totalPages := (total + p.PageSize - 1) / p.PageSize
	if totalPages == 0 {
		totalPages = 1
	}

	offset := (p.Page - 1) * p.PageSize
	items, err := t.d.Store.List(filter, "updated_at", true, p.PageSize, offset)
	if err != nil {
		return t.d.fail(t.Name(), start, err)
	}

	result := overviewResult{
		Items: items, Page: p.Page, PageSize: p.PageSize, TotalItems: total, TotalPages: totalPages,
		HasNext: p.Page < totalPages, HasPrev: p.Page > 1,
	}
	miss := false
	return t.d.ok(t.Name(), start, &miss, result)
}
