package trust

import (
	"math"
	"testing"
	"time"
)

func TestCalculateUniformPriorMatchesMean(t *testing.T) {
	s := State{Alpha: 3, Beta: 7, LastUpdated: time.Now()}
	score, err := Calculate(s, DefaultPrior, s.LastUpdated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 3.0 / 10.0
	if math.Abs(score.Value-want) > 1e-9 {
		t.Errorf("value = %v, want %v", score.Value, want)
	}
	if score.Alpha < 1 || score.Beta < 1 {
		t.Errorf("alpha/beta must stay >= 1, got alpha=%v beta=%v", score.Alpha, score.Beta)
	}
}

func TestCalculateRejectsInvalidState(t *testing.T) {
	_, err := Calculate(State{Alpha: -1, Beta: 2}, DefaultPrior, time.Now())
	if err == nil {
		t.Fatal("expected error for negative alpha")
	}
	_, err = Calculate(State{Alpha: math.NaN(), Beta: 2}, DefaultPrior, time.Now())
	if err == nil {
		t.Fatal("expected error for NaN alpha")
	}
}

func TestApplyOutcomeDeltas(t *testing.T) {
	cases := []struct {
		outcome      string
		wantDAlpha   float64
		wantDBeta    float64
	}{
		{"worked-perfectly", 1, 0},
		{"worked-with-tweaks", 0.7, 0.3},
		{"partial-success", 0.5, 0.5},
		{"failed-minor-issues", 0.3, 0.7},
		{"failed-completely", 0, 1},
	}
	for _, c := range cases {
		d, err := OutcomeDelta(c.outcome)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.outcome, err)
		}
		if d.DAlpha != c.wantDAlpha || d.DBeta != c.wantDBeta {
			t.Errorf("%s: got delta %+v, want dAlpha=%v dBeta=%v", c.outcome, d, c.wantDAlpha, c.wantDBeta)
		}
	}

	if _, err := OutcomeDelta("not-a-real-outcome"); err == nil {
		t.Error("expected error for unknown outcome alias")
	}
}

func TestApplyAllFoldsDeltasInOrder(t *testing.T) {
	s := State{Alpha: 1, Beta: 1, LastUpdated: time.Now()}
	deltas := []Delta{{DAlpha: 1}, {DBeta: 1}, {DAlpha: 0.5, DBeta: 0.5}}
	result := ApplyAll(s, deltas, time.Now())
	if result.Alpha != 2.5 || result.Beta != 2.5 {
		t.Errorf("got alpha=%v beta=%v, want 2.5/2.5", result.Alpha, result.Beta)
	}
}

func TestDecayAppliedAfterMoreThanOneDay(t *testing.T) {
	last := time.Now().Add(-48 * time.Hour)
	s := State{Alpha: 10, Beta: 2, LastUpdated: last}
	prior := Prior{Alpha: 1, Beta: 1, HalfLife: 24 * time.Hour}

	decayed, applied := ApplyDecay(s, prior, time.Now())
	if !applied {
		t.Fatal("expected decay to apply after 48h with a 24h half-life")
	}
	if decayed.Alpha >= s.Alpha {
		t.Errorf("decayed alpha %v should move toward prior (lower than %v)", decayed.Alpha, s.Alpha)
	}
}

func TestDecayNotAppliedWithinOneDay(t *testing.T) {
	last := time.Now().Add(-1 * time.Hour)
	s := State{Alpha: 10, Beta: 2, LastUpdated: last}
	_, applied := ApplyDecay(s, DefaultPrior, time.Now())
	if applied {
		t.Error("decay should not apply within one day of last update")
	}
}

func TestCredibleIntervalBracketsValue(t *testing.T) {
	s := State{Alpha: 20, Beta: 5, LastUpdated: time.Now()}
	score, err := Calculate(s, DefaultPrior, s.LastUpdated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.IntervalLow > score.Value || score.Value > score.IntervalHigh {
		t.Errorf("value %v not within interval [%v, %v]", score.Value, score.IntervalLow, score.IntervalHigh)
	}
	if score.IntervalLow < 0 || score.IntervalHigh > 1 {
		t.Errorf("interval out of [0,1] bounds: [%v, %v]", score.IntervalLow, score.IntervalHigh)
	}
}

func TestRegularizedIncompleteBetaMonotonic(t *testing.T) {
	prev := -1.0
	for x := 0.0; x <= 1.0; x += 0.1 {
		v := regularizedIncompleteBeta(x, 3, 5)
		if v < prev {
			t.Fatalf("betainc not monotonic at x=%v: %v < %v", x, v, prev)
		}
		prev = v
	}
}

func TestInvRegularizedIncompleteBetaRoundTrips(t *testing.T) {
	a, b := 4.0, 6.0
	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		x := invRegularizedIncompleteBeta(p, a, b)
		got := regularizedIncompleteBeta(x, a, b)
		if math.Abs(got-p) > 1e-4 {
			t.Errorf("p=%v: round trip got %v", p, got)
		}
	}
}
