package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesBucketThenBlocks(t *testing.T) {
	l := New(Config{WindowSeconds: 60, DefaultMax: 2})
	if !l.Allow("apex_patterns_lookup") {
		t.Fatal("first call should be allowed")
	}
	if !l.Allow("apex_patterns_lookup") {
		t.Fatal("second call should be allowed")
	}
	if l.Allow("apex_patterns_lookup") {
		t.Fatal("third call should be rate limited")
	}
}

func TestPerToolMaxOverridesDefault(t *testing.T) {
	l := New(Config{WindowSeconds: 60, DefaultMax: 100, PerToolMax: map[string]int{"apex_patterns_overview": 1}})
	if !l.Allow("apex_patterns_overview") {
		t.Fatal("first call should be allowed")
	}
	if l.Allow("apex_patterns_overview") {
		t.Fatal("second call should be rate limited under the per-tool override of 1")
	}
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l := New(Config{WindowSeconds: 60, DefaultMax: 1})
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	if !l.Allow("tool") {
		t.Fatal("first call should be allowed")
	}
	if l.Allow("tool") {
		t.Fatal("second call should be blocked within the window")
	}
	fakeNow = fakeNow.Add(61 * time.Second)
	if !l.Allow("tool") {
		t.Fatal("call after window reset should be allowed")
	}
}

func TestIndependentBucketsPerTool(t *testing.T) {
	l := New(Config{WindowSeconds: 60, DefaultMax: 1})
	if !l.Allow("tool_a") {
		t.Fatal("tool_a first call should be allowed")
	}
	if !l.Allow("tool_b") {
		t.Fatal("tool_b should have its own independent bucket")
	}
}
