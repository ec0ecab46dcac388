package mcp

import (
	"time"

	"github.com/benredmond/apex-sub002/internal/apierr"
	"github.com/benredmond/apex-sub002/internal/idgen"
)

// ok wraps a successful payload in the §6 response envelope and records
// the call's latency/outcome in the metrics collector.
func (d *Deps) ok(tool string, start time.Time, cacheHit *bool, data any) (*ToolsCallResult, error) {
	elapsed := d.now().Sub(start).Milliseconds()
	if d.Metrics != nil {
		d.Metrics.RecordCall(tool, elapsed, false)
	}
	return JSONResult(Envelope{Data: data, RequestID: idgen.NewPrefixed("req"), LatencyMs: elapsed, CacheHit: cacheHit})
}

// fail converts any error into a tool-level error result carrying the
// §7 taxonomy (code/message/fields), recording the call as errored.
func (d *Deps) fail(tool string, start time.Time, err error) (*ToolsCallResult, error) {
	elapsed := d.now().Sub(start).Milliseconds()
	if d.Metrics != nil {
		d.Metrics.RecordCall(tool, elapsed, true)
	}
	apiErr := apierr.FromError(err)
	result, marshalErr := JSONResult(struct {
		Error     *apierr.Error `json:"error"`
		RequestID string        `json:"request_id"`
		LatencyMs int64         `json:"latency_ms"`
	}{Error: apiErr, RequestID: idgen.NewPrefixed("req"), LatencyMs: elapsed})
	if marshalErr != nil {
		return ErrorResult(apiErr.Error()), nil
	}
	result.IsError = true
	return result, nil
}

// rateLimited builds the RATE_LIMITED failure for a tool whose bucket is
// exhausted.
func rateLimited(tool string) *apierr.Error {
	return apierr.New(apierr.RateLimited, "rate limit exceeded for %s", tool)
}
