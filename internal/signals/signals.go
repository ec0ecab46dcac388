// Package signals turns a free-form request into the structured Signals
// record the ranker scores against, per §4.3: language/framework
// normalization, error parsing, path/repo extraction, and dedup. Grounded
// on the teacher's extractKeywords/lexicalScore convention in
// internal/store/reflection_search.go, adapted from a search-keyword
// extractor into a full request-signal extractor.
package signals

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Framework is a named dependency with an optional version.
type Framework struct {
	Name    string
	Version string
}

// TaskIntent captures the caller's classification of task type.
type TaskIntent struct {
	Type       string
	Confidence float64
	SubType    string
}

// Signals is the normalized output of signal extraction.
type Signals struct {
	Languages      []string
	Frameworks     []Framework
	Paths          []string
	Repo           string
	Org            string
	ErrorTypes     []string
	ErrorFiles     []string
	ErrorCodes     []string
	TaskIntent     TaskIntent
	Dependencies   []string
	TestFramework  string
	BuildTool      string
	CIPlatform     string
	WorkflowPhase  string
	Imports        []string
	Exports        []string
	RelatedFiles   []string
	TestFiles      []string
	RecentPatterns []string
	FailedPatterns []string
}

// ErrorContext is one structured error observation, taking precedence
// over the legacy free-text error list per §4.3.
type ErrorContext struct {
	Type        string
	Message     string
	File        string
	Line        int
	StackDepth  int
	Frequency   int
}

// CodeContext groups file/import/export signals about the current edit.
type CodeContext struct {
	CurrentFile  string
	Imports      []string
	Exports      []string
	RelatedFiles []string
	TestFiles    []string
}

// ProjectSignals groups ambient project facts a caller may supply.
type ProjectSignals struct {
	Language     string
	Framework    string
	TestFramework string
	BuildTool    string
	CIPlatform   string
	Dependencies []string
}

// SessionContext groups prior-session pattern usage for bias terms.
type SessionContext struct {
	RecentPatterns []string
	FailedPatterns []string
}

// Request is the full set of optional inputs §4.3 enumerates.
type Request struct {
	Task           string
	CurrentFile    string
	Language       string
	Framework      string
	RecentErrors   []string
	RepoPath       string
	TaskIntent     TaskIntent
	CodeContext    CodeContext
	ErrorContext   []ErrorContext
	SessionContext SessionContext
	ProjectSignals ProjectSignals
	WorkflowPhase  string
}

// extensionLanguage maps file extensions to normalized language names.
var extensionLanguage = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".sh":    "shell",
}

// languageAliases normalizes shorthand/legacy names (e.g. js -> javascript).
var languageAliases = map[string]string{
	"js":  "javascript",
	"ts":  "typescript",
	"py":  "python",
	"rb":  "ruby",
	"cs":  "csharp",
	"c++": "cpp",
}

var (
	jsErrorPattern     = regexp.MustCompile(`(?m)^(\w*Error):\s*(.+?)\s+at\s+([^\s:]+):(\d+)(?::(\d+))?`)
	pyErrorPattern     = regexp.MustCompile(`(?m)File\s+"([^"]+)",\s+line\s+(\d+),\s+in\s+(\S+)`)
	errorCodePattern   = regexp.MustCompile(`\bE[A-Z0-9]+\b|\bERR_[A-Z0-9_]+\b`)
	githubRepoPattern  = regexp.MustCompile(`github\.com[:/]([^/\s]+)/([^/\s.]+)`)
	frameworkAtVersion = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)[@=]{1,2}([A-Za-z0-9_.\-]+)$`)
)

// Extract builds a Signals record from a Request, applying every rule in
// §4.3.
func Extract(req Request) Signals {
	s := Signals{
		TaskIntent:    req.TaskIntent,
		Dependencies:  req.ProjectSignals.Dependencies,
		TestFramework: req.ProjectSignals.TestFramework,
		BuildTool:     req.ProjectSignals.BuildTool,
		CIPlatform:    req.ProjectSignals.CIPlatform,
		WorkflowPhase: req.WorkflowPhase,
		Imports:       req.CodeContext.Imports,
		Exports:       req.CodeContext.Exports,
		RelatedFiles:  req.CodeContext.RelatedFiles,
		TestFiles:     req.CodeContext.TestFiles,
		RecentPatterns: req.SessionContext.RecentPatterns,
		FailedPatterns: req.SessionContext.FailedPatterns,
	}

	langSet := map[string]bool{}
	addLanguage := func(lang string) {
		lang = normalizeLanguage(lang)
		if lang != "" && !langSet[lang] {
			langSet[lang] = true
			s.Languages = append(s.Languages, lang)
		}
	}

	switch {
	case req.ProjectSignals.Language != "":
		addLanguage(req.ProjectSignals.Language)
	case req.Language != "":
		addLanguage(req.Language)
	case req.CurrentFile != "" || req.CodeContext.CurrentFile != "":
		file := req.CurrentFile
		if file == "" {
			file = req.CodeContext.CurrentFile
		}
		if lang := languageFromExtension(file); lang != "" {
			addLanguage(lang)
		}
	}

	if fw := parseFramework(req.ProjectSignals.Framework); fw.Name != "" {
		s.Frameworks = append(s.Frameworks, fw)
	}
	if fw := parseFramework(req.Framework); fw.Name != "" {
		s.Frameworks = append(s.Frameworks, fw)
	}

	var paths []string
	if req.RepoPath != "" {
		paths = append(paths, req.RepoPath)
	}
	if req.CurrentFile != "" {
		paths = append(paths, req.CurrentFile)
	}
	paths = append(paths, req.CodeContext.RelatedFiles...)
	paths = append(paths, req.CodeContext.TestFiles...)

	s.Repo, s.Org = extractRepoOrg(req.RepoPath)

	errorTypes, errorFiles, errorCodes := extractErrors(req.ErrorContext, req.RecentErrors)
	s.ErrorTypes = errorTypes
	s.ErrorFiles = errorFiles
	s.ErrorCodes = errorCodes

	for _, f := range errorFiles {
		if lang := languageFromExtension(f); lang != "" {
			addLanguage(lang)
		}
		paths = append(paths, f)
	}

	s.Paths = dedup(paths)
	return s
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}

func languageFromExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return ""
	}
	ext := strings.ToLower(path[idx:])
	return extensionLanguage[ext]
}

func parseFramework(raw string) Framework {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Framework{}
	}
	if m := frameworkAtVersion.FindStringSubmatch(raw); m != nil {
		return Framework{Name: strings.ToLower(m[1]), Version: m[2]}
	}
	return Framework{Name: strings.ToLower(raw)}
}

func extractRepoOrg(repoPath string) (repo, org string) {
	if repoPath == "" {
		return "", ""
	}
	if m := githubRepoPattern.FindStringSubmatch(repoPath); m != nil {
		return m[2], m[1]
	}
	parts := strings.Split(strings.Trim(repoPath, "/"), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-1], parts[len(parts)-2]
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return "", ""
}

func extractErrors(structured []ErrorContext, legacy []string) (types, files, codes []string) {
	typeSet := map[string]bool{}
	fileSet := map[string]bool{}
	codeSet := map[string]bool{}

	addType := func(t string) {
		if t != "" && !typeSet[t] {
			typeSet[t] = true
			types = append(types, t)
		}
	}
	addFile := func(f string) {
		if f != "" && !fileSet[f] {
			fileSet[f] = true
			files = append(files, f)
		}
	}
	addCodes := func(text string) {
		for _, c := range errorCodePattern.FindAllString(text, -1) {
			if !codeSet[c] {
				codeSet[c] = true
				codes = append(codes, c)
			}
		}
	}

	if len(structured) > 0 {
		for _, ec := range structured {
			addType(ec.Type)
			addFile(ec.File)
			addCodes(ec.Type + " " + ec.Message)
		}
		return types, files, codes
	}

	for _, raw := range legacy {
		if m := jsErrorPattern.FindStringSubmatch(raw); m != nil {
			addType(m[1])
			addFile(m[3])
		}
		if m := pyErrorPattern.FindStringSubmatch(raw); m != nil {
			addFile(m[1])
		}
		addCodes(raw)
	}
	return types, files, codes
}

func dedup(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// ParseLine converts a decimal line-number string (such as one captured
// from a stack frame) to an int, reporting whether it parsed.
func ParseLine(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortedLanguages returns a deterministic, sorted copy for callers that
// need stable output ordering (e.g. golden tests) distinct from the
// insertion-order Signals.Languages.
func SortedLanguages(s Signals) []string {
	out := append([]string(nil), s.Languages...)
	sort.Strings(out)
	return out
}
