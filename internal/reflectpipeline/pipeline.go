package reflectpipeline

import (
	"fmt"
	"time"

	"github.com/benredmond/apex-sub002/internal/idgen"
	"github.com/benredmond/apex-sub002/internal/logging"
	"github.com/benredmond/apex-sub002/internal/store"
	"github.com/benredmond/apex-sub002/internal/trust"
)

// PatternMiner synthesizes additional candidate patterns from commit
// artifacts when a reflection sets auto_mine=true. Implementations may
// be a no-op; the pipeline only invokes it after a successful commit.
type PatternMiner interface {
	Mine(commits []string) []NewPatternClaim
}

// Pipeline wires the reflection algorithm to a concrete store and trust
// priors.
type Pipeline struct {
	Store           *store.Store
	Priors          map[store.PatternType]trust.Prior
	AllowedRepoURLs []string
	Miner           PatternMiner
	now             func() time.Time
}

// New creates a Pipeline. priors may be nil to use trust.DefaultPrior for
// every type.
func New(s *store.Store, priors map[store.PatternType]trust.Prior, allowedRepoURLs []string, miner PatternMiner) *Pipeline {
	return &Pipeline{Store: s, Priors: priors, AllowedRepoURLs: allowedRepoURLs, Miner: miner, now: time.Now}
}

func (p *Pipeline) priorFor(t store.PatternType) trust.Prior {
	if pr, ok := p.Priors[t]; ok {
		return pr
	}
	return trust.DefaultPrior
}

// Process runs the full algorithm described in §4.6.
func (p *Pipeline) Process(req Request) (Response, error) {
	start := p.now()
	resp := Response{Outcome: req.Outcome, Meta: Meta{ReceivedAt: start, SchemaVersion: "1"}}

	issues := validateRequest(req, p.AllowedRepoURLs)
	if len(issues) > 0 {
		for _, iss := range issues {
			resp.Rejected = append(resp.Rejected, iss.toRejected())
		}
		resp.OK = false
		resp.Meta.ValidatedInMs = p.now().Sub(start).Milliseconds()
		return resp, nil
	}
	resp.Meta.ValidatedInMs = p.now().Sub(start).Milliseconds()

	claimsPayload := fmt.Sprintf("%+v", req.Claims)
	contentHash := store.ContentHash(req.Task.ID, claimsPayload)

	if req.DryRun {
		resp.OK = true
		resp.Persisted = false
		return resp, nil
	}

	writeStart := p.now()

	trustUpdates, err := p.resolveTrustUpdates(req.Claims.TrustUpdates)
	if err != nil {
		return Response{}, err
	}

	newPatterns := p.buildNewPatterns(req.Claims.NewPatterns, store.PatternCodebase)
	antiPatterns := p.buildNewPatterns(req.Claims.AntiPatterns, store.PatternAnti)

	var patternsUsed []string
	for _, pu := range req.Claims.PatternsUsed {
		patternsUsed = append(patternsUsed, pu.PatternID)
	}

	rt := store.ReflectionTransaction{
		Reflection: store.Reflection{
			ID:            idgen.NewPrefixed("refl"),
			TaskID:        req.Task.ID,
			Outcome:       store.ReflectionOutcome(req.Outcome),
			ContentHash:   contentHash,
			ClaimsPayload: claimsPayload,
			ReceivedAt:    start,
		},
		TrustUpdates: trustUpdates,
		NewPatterns:  newPatterns,
		AntiPatterns: antiPatterns,
		PatternsUsed: patternsUsed,
	}

	persisted, err := p.Store.StoreReflection(rt)
	if err != nil {
		return Response{}, fmt.Errorf("persisting reflection: %w", err)
	}

	resp.OK = true
	resp.Persisted = persisted
	resp.Meta.PersistedInMs = p.now().Sub(writeStart).Milliseconds()

	if persisted {
		resp.Accepted = AcceptedSummary{
			PatternsUsed: patternsUsed,
			Learnings:    len(req.Claims.Learnings),
		}
		for _, np := range newPatterns {
			resp.Accepted.NewPatterns = append(resp.Accepted.NewPatterns, np.ID)
		}
		for _, ap := range antiPatterns {
			resp.Accepted.AntiPatterns = append(resp.Accepted.AntiPatterns, ap.ID)
		}
		for _, tu := range trustUpdates {
			resp.Accepted.TrustUpdates = append(resp.Accepted.TrustUpdates, tu.PatternID)
		}

		if req.AutoMine && p.Miner != nil && len(req.Artifacts.Commits) > 0 {
			mined := p.Miner.Mine(req.Artifacts.Commits)
			for _, m := range mined {
				resp.DraftsCreated = append(resp.DraftsCreated, m.Title)
			}
		}
	}

	candidates, err := p.Store.AntiPatternCandidates(30)
	if err == nil {
		for _, c := range candidates {
			resp.AntiCandidates = append(resp.AntiCandidates, AntiCandidate{
				PatternID: c.ID, WindowDays: 30, Count: c.UsageCount,
			})
		}
	} else {
		logging.ReflectError("fetching anti-pattern candidates: %v", err)
	}

	return resp, nil
}

// resolveTrustUpdates pre-loads each referenced pattern's (alpha, beta)
// (§4.6 step 4, before the write transaction), computes the new state per
// the requested outcome/delta, and returns the store-level updates to
// apply transactionally.
func (p *Pipeline) resolveTrustUpdates(claims []TrustUpdateClaim) ([]store.TrustUpdate, error) {
	var out []store.TrustUpdate
	for _, c := range claims {
		pattern, err := p.Store.Get(c.PatternID)
		if err != nil {
			return nil, fmt.Errorf("resolving pattern %s: %w", c.PatternID, err)
		}

		var delta trust.Delta
		if c.Outcome != "" {
			delta, err = trust.OutcomeDelta(c.Outcome)
			if err != nil {
				return nil, err
			}
		} else {
			delta = trust.Delta{DAlpha: c.DAlpha, DBeta: c.DBeta}
		}

		state := trust.State{Alpha: pattern.Alpha, Beta: pattern.Beta, LastUpdated: pattern.UpdatedAt}
		updated := trust.Apply(state, delta, p.now())

		score, err := trust.Calculate(updated, p.priorFor(pattern.Type), p.now())
		if err != nil {
			return nil, err
		}

		out = append(out, store.TrustUpdate{
			PatternID: c.PatternID,
			Alpha:     score.Alpha,
			Beta:      score.Beta,
			Score:     score.Value,
			Success:   delta.DAlpha >= delta.DBeta,
		})
	}
	return out, nil
}

func (p *Pipeline) buildNewPatterns(claims []NewPatternClaim, patternType store.PatternType) []store.Pattern {
	var out []store.Pattern
	prior := p.priorFor(patternType)
	for _, c := range claims {
		out = append(out, store.Pattern{
			ID:            idgen.NewPrefixed("pat"),
			Type:          patternType,
			Title:         c.Title,
			Summary:       c.Summary,
			JSONCanonical: c.JSONCanonical,
			Tags:          c.Tags,
			Alpha:         prior.Alpha,
			Beta:          prior.Beta,
			KeyInsight:    c.KeyInsight,
			WhenToUse:     c.WhenToUse,
		})
	}
	return out
}
