package mcp

import (
	"time"

	"github.com/benredmond/apex-sub002/internal/cache"
	"github.com/benredmond/apex-sub002/internal/metrics"
	"github.com/benredmond/apex-sub002/internal/pack"
	"github.com/benredmond/apex-sub002/internal/rank"
	"github.com/benredmond/apex-sub002/internal/ratelimit"
	"github.com/benredmond/apex-sub002/internal/reflectpipeline"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/tasklifecycle"
	"github.com/benredmond/apex-sub002/internal/trust"
)

// Deps bundles every service a tool handler needs. Owned by the caller
// (cmd/apex-server), not a package-level singleton, matching §9's "no
// process-wide mutables" design note.
type Deps struct {
	Store      *store.Store
	Cache      *cache.Cache
	RateLimit  *ratelimit.Limiter
	Metrics    *metrics.Collector
	Tasks      *tasklifecycle.Service
	Pipeline   *reflectpipeline.Pipeline
	Priors     map[store.PatternType]trust.Prior
	Weights    rank.Weights
	PackMaxBytes     int
	ContextMaxBytes  int
	Now        func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) priorFor(t store.PatternType) trust.Prior {
	if pr, ok := d.Priors[t]; ok {
		return pr
	}
	return trust.DefaultPrior
}

// RegisterAll builds and registers the full apex_* tool catalog.
func RegisterAll(r *Registry, d *Deps) {
	r.Register(&patternsLookup{d})
	r.Register(&patternsDiscover{d})
	r.Register(&patternsExplain{d})
	r.Register(&patternsOverview{d})
	r.Register(&reflectTool{d})
	r.Register(&taskCreate{d})
	r.Register(&taskFind{d})
	r.Register(&taskFindSimilar{d})
	r.Register(&taskCurrent{d})
	r.Register(&taskUpdate{d})
	r.Register(&taskCheckpoint{d})
	r.Register(&taskComplete{d})
	r.Register(&taskContext{d})
	r.Register(&taskAppendEvidence{d})
	r.Register(&taskGetEvidence{d})
	r.Register(&taskGetPhase{d})
	r.Register(&taskSetPhase{d})
}
