package reflectpipeline

import (
	"fmt"
	"regexp"

	"github.com/benredmond/apex-sub002/internal/apierr"
)

var validOutcomes = []string{"success", "partial", "failure"}
var validOutcomeAliases = []string{
	"worked-perfectly", "worked-with-tweaks", "partial-success",
	"failed-minor-issues", "failed-completely",
}

var shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// validationIssue is one validation failure, convertible to a
// RejectedClaim or an apierr.FieldError.
type validationIssue struct {
	path, code, message string
}

func (v validationIssue) toRejected() RejectedClaim {
	return RejectedClaim{Path: v.path, Code: v.code, Message: v.message}
}

// validateRequest runs schema + evidence validation per §4.6 steps 1-2,
// returning every issue found (never just the first) so the caller can
// correct them all in one retry.
func validateRequest(req Request, allowedRepoURLs []string) []validationIssue {
	var issues []validationIssue

	if req.Task.ID == "" {
		issues = append(issues, validationIssue{"task.id", "required", "task.id is required"})
	}
	if !contains(validOutcomes, req.Outcome) {
		issues = append(issues, validationIssue{
			"outcome", "invalid_enum",
			fmt.Sprintf("outcome must be one of [%v]; got %q", validOutcomes, req.Outcome),
		})
	}

	for i, pu := range req.Claims.PatternsUsed {
		if len(pu.Evidence) == 0 {
			issues = append(issues, validationIssue{
				fmt.Sprintf("claims.patterns_used[%d].evidence", i), "missing_evidence",
				"every claim must carry at least one evidence item",
			})
			continue
		}
		for j, ev := range pu.Evidence {
			if iss := validateEvidence(ev, allowedRepoURLs, fmt.Sprintf("claims.patterns_used[%d].evidence[%d]", i, j)); iss != nil {
				issues = append(issues, *iss)
			}
		}
	}

	for i, tu := range req.Claims.TrustUpdates {
		if tu.PatternID == "" {
			issues = append(issues, validationIssue{
				fmt.Sprintf("claims.trust_updates[%d].pattern_id", i), "required", "pattern_id is required",
			})
			continue
		}
		if tu.Outcome != "" && !contains(validOutcomeAliases, tu.Outcome) {
			issues = append(issues, validationIssue{
				fmt.Sprintf("claims.trust_updates[%d].outcome", i), "invalid_enum",
				suggestOutcomeAlias(tu.Outcome),
			})
		}
	}

	return issues
}

func suggestOutcomeAlias(got string) string {
	best := validOutcomeAliases[0]
	bestDist := editDistance(got, best)
	for _, alias := range validOutcomeAliases[1:] {
		if d := editDistance(got, alias); d < bestDist {
			bestDist = d
			best = alias
		}
	}
	return fmt.Sprintf("outcome must be one of %v; did you mean %q?", validOutcomeAliases, best)
}

func validateEvidence(ev Evidence, allowedRepoURLs []string, path string) *validationIssue {
	switch ev.Kind {
	case EvidenceGitLines:
		if ev.File == "" {
			return &validationIssue{path + ".file", "required", "git_lines evidence requires file"}
		}
		if ev.SHA != "HEAD" && !shaPattern.MatchString(ev.SHA) {
			return &validationIssue{path + ".sha", "invalid_format", "sha must be 'HEAD' or a 40-hex commit sha"}
		}
	case EvidenceCommit:
		if ev.SHA != "HEAD" && !shaPattern.MatchString(ev.SHA) {
			return &validationIssue{path + ".sha", "invalid_format", "sha must be 'HEAD' or a 40-hex commit sha"}
		}
	case EvidencePR:
		if ev.Number <= 0 {
			return &validationIssue{path + ".number", "required", "pr evidence requires a positive number"}
		}
		if len(allowedRepoURLs) > 0 && !contains(allowedRepoURLs, ev.Repo) {
			return &validationIssue{path + ".repo", "not_allowed", "pr.repo is not on the configured allowlist"}
		}
	case EvidenceCIRun:
		if ev.ID == "" {
			return &validationIssue{path + ".id", "required", "ci_run evidence requires id"}
		}
	default:
		return &validationIssue{path + ".kind", "invalid_enum", "unrecognized evidence kind"}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func editDistance(a, b string) int {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			best := d[i-1][j] + 1
			if d[i][j-1]+1 < best {
				best = d[i][j-1] + 1
			}
			if d[i-1][j-1]+cost < best {
				best = d[i-1][j-1] + cost
			}
			d[i][j] = best
		}
	}
	return d[la][lb]
}

// toAPIError converts validation issues into an INVALID_PARAMS apierr.Error.
func toAPIError(issues []validationIssue) *apierr.Error {
	fields := make([]apierr.FieldError, len(issues))
	for i, iss := range issues {
		fields[i] = apierr.FieldError{Path: iss.path, Code: iss.code, Message: iss.message}
	}
	return apierr.New(apierr.InvalidParams, "reflection request failed validation").WithFields(fields)
}
