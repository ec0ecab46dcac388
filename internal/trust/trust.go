// Package trust implements the Beta-Bernoulli reliability model described
// in §4.2: per-pattern (alpha, beta) state, outcome updates, time decay
// toward a type-specific prior, and credible-interval scoring. The package
// is a pure math core, grounded on the teacher's store package convention
// of keeping statistical computation free of any database dependency so
// it can be unit tested in isolation and reused by both the trust-update
// path and the reflection pipeline's batch path.
package trust

import (
	"fmt"
	"math"
	"time"
)

// Prior holds the default (alpha, beta) and decay half-life for a pattern
// type. Configurable per §4.2 ("configurable priors per type").
type Prior struct {
	Alpha    float64
	Beta     float64
	HalfLife time.Duration
}

// DefaultPrior is the uniform prior used when no type-specific prior is
// configured: alpha=beta=1.
var DefaultPrior = Prior{Alpha: 1, Beta: 1, HalfLife: 14 * 24 * time.Hour}

// State is the persisted Beta-Bernoulli state for one pattern.
type State struct {
	Alpha       float64
	Beta        float64
	LastUpdated time.Time
}

// TrustScore is the computed projection of a State at a point in time, per
// §4.2's field list.
type TrustScore struct {
	Value        float64
	Confidence   float64
	Samples      float64
	IntervalLow  float64
	IntervalHigh float64
	WilsonLower  float64
	Alpha        float64
	Beta         float64
	LastUpdated  time.Time
	DecayApplied bool
}

// InvalidStateError is raised when (alpha, beta) are non-finite or
// negative, per §4.2's failure clause.
type InvalidStateError struct {
	Alpha float64
	Beta  float64
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid trust state: alpha=%v beta=%v", e.Alpha, e.Beta)
}

func validate(alpha, beta float64) error {
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(alpha, 0) || math.IsInf(beta, 0) {
		return &InvalidStateError{Alpha: alpha, Beta: beta}
	}
	if alpha < 0 || beta < 0 {
		return &InvalidStateError{Alpha: alpha, Beta: beta}
	}
	return nil
}

// ApplyDecay computes exponential decay toward prior, given elapsed time
// since lastUpdated and the type's half-life. Decay is applied on the
// first touch after more than one day has elapsed (§4.2).
func ApplyDecay(s State, prior Prior, now time.Time) (State, bool) {
	if s.LastUpdated.IsZero() {
		return s, false
	}
	elapsed := now.Sub(s.LastUpdated)
	if elapsed <= 24*time.Hour {
		return s, false
	}
	days := elapsed.Hours() / 24
	halfLifeDays := prior.HalfLife.Hours() / 24
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultPrior.HalfLife.Hours() / 24
	}
	factor := math.Pow(2, -days/halfLifeDays)

	return State{
		Alpha:       prior.Alpha + (s.Alpha-prior.Alpha)*factor,
		Beta:        prior.Beta + (s.Beta-prior.Beta)*factor,
		LastUpdated: s.LastUpdated,
	}, true
}

// Delta is an arbitrary (alpha, beta) increment, used both by single
// boolean outcome updates and reflection-driven batch updates.
type Delta struct {
	DAlpha float64
	DBeta  float64
}

// OutcomeDelta maps an outcome alias to its (alpha, beta) delta, per the
// table in §4.2.
func OutcomeDelta(outcome string) (Delta, error) {
	switch outcome {
	case "worked-perfectly":
		return Delta{DAlpha: 1}, nil
	case "worked-with-tweaks":
		return Delta{DAlpha: 0.7, DBeta: 0.3}, nil
	case "partial-success":
		return Delta{DAlpha: 0.5, DBeta: 0.5}, nil
	case "failed-minor-issues":
		return Delta{DAlpha: 0.3, DBeta: 0.7}, nil
	case "failed-completely":
		return Delta{DBeta: 1}, nil
	default:
		return Delta{}, fmt.Errorf("unknown outcome alias: %q", outcome)
	}
}

// BooleanDelta maps a simple boolean outcome to its delta: success
// increments alpha, failure increments beta.
func BooleanDelta(success bool) Delta {
	if success {
		return Delta{DAlpha: 1}
	}
	return Delta{DBeta: 1}
}

// Apply adds a delta to a state, returning the updated state. Callers are
// responsible for persisting the result and calling Calculate separately.
func Apply(s State, d Delta, now time.Time) State {
	return State{
		Alpha:       s.Alpha + d.DAlpha,
		Beta:        s.Beta + d.DBeta,
		LastUpdated: now,
	}
}

// ApplyAll folds a batch of deltas onto a state in order, for reflection's
// batch trust_updates path.
func ApplyAll(s State, deltas []Delta, now time.Time) State {
	for _, d := range deltas {
		s = Apply(s, d, now)
	}
	return s
}

// Calculate computes the TrustScore for a state against a prior, applying
// decay first if due. This is calculateTrust from §4.2.
func Calculate(s State, prior Prior, now time.Time) (TrustScore, error) {
	if err := validate(s.Alpha, s.Beta); err != nil {
		return TrustScore{}, err
	}

	decayed, applied := ApplyDecay(s, prior, now)
	if err := validate(decayed.Alpha, decayed.Beta); err != nil {
		return TrustScore{}, err
	}
	alpha, beta := decayed.Alpha, decayed.Beta

	total := alpha + beta
	value := alpha / total
	priorSamples := prior.Alpha + prior.Beta
	samples := total - priorSamples

	low := invRegularizedIncompleteBeta(0.025, alpha, beta)
	high := invRegularizedIncompleteBeta(0.975, alpha, beta)
	ciWidth := high - low
	confidence := 1 - ciWidth

	wilsonLower := wilsonLowerBound(alpha, beta)

	return TrustScore{
		Value:        value,
		Confidence:   confidence,
		Samples:      samples,
		IntervalLow:  low,
		IntervalHigh: high,
		WilsonLower:  wilsonLower,
		Alpha:        alpha,
		Beta:         beta,
		LastUpdated:  s.LastUpdated,
		DecayApplied: applied,
	}, nil
}

// wilsonLowerBound computes the Wilson score interval lower bound treating
// (alpha-1, beta-1) as observed successes/failures against a normal
// approximation, retained for backward-compatible callers per §4.2.
func wilsonLowerBound(alpha, beta float64) float64 {
	successes := alpha - 1
	failures := beta - 1
	n := successes + failures
	if n <= 0 {
		return 0
	}
	const z = 1.959963985 // 95% two-sided
	p := successes / n
	z2 := z * z
	denom := 1 + z2/n
	center := p + z2/(2*n)
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n))
	return (center - margin) / denom
}
