package signals

import "testing"

func TestLanguagePrecedenceProjectOverLegacy(t *testing.T) {
	s := Extract(Request{
		Language:       "js",
		ProjectSignals: ProjectSignals{Language: "TypeScript"},
	})
	if len(s.Languages) != 1 || s.Languages[0] != "typescript" {
		t.Errorf("expected project_signals.language to win, got %v", s.Languages)
	}
}

func TestLanguageInferredFromExtension(t *testing.T) {
	s := Extract(Request{CurrentFile: "internal/store/store.go"})
	if len(s.Languages) != 1 || s.Languages[0] != "go" {
		t.Errorf("expected go inferred from extension, got %v", s.Languages)
	}
}

func TestLanguageAliasNormalized(t *testing.T) {
	s := Extract(Request{Language: "js"})
	if len(s.Languages) != 1 || s.Languages[0] != "javascript" {
		t.Errorf("expected js normalized to javascript, got %v", s.Languages)
	}
}

func TestFrameworkParsesNameAtVersion(t *testing.T) {
	s := Extract(Request{Framework: "React@18.2.0"})
	if len(s.Frameworks) != 1 || s.Frameworks[0].Name != "react" || s.Frameworks[0].Version != "18.2.0" {
		t.Errorf("unexpected framework parse: %+v", s.Frameworks)
	}
}

func TestStructuredErrorContextTakesPrecedence(t *testing.T) {
	s := Extract(Request{
		ErrorContext: []ErrorContext{{Type: "TypeError", Message: "cannot read ERR_INVALID_ARG", File: "a.ts"}},
		RecentErrors: []string{"ReferenceError: x is not defined at b.js:1:1"},
	})
	if len(s.ErrorTypes) != 1 || s.ErrorTypes[0] != "TypeError" {
		t.Errorf("expected structured error to take precedence, got %v", s.ErrorTypes)
	}
	if len(s.ErrorCodes) != 1 || s.ErrorCodes[0] != "ERR_INVALID_ARG" {
		t.Errorf("expected ERR_INVALID_ARG extracted, got %v", s.ErrorCodes)
	}
}

func TestLegacyErrorParsingJSStyle(t *testing.T) {
	s := Extract(Request{RecentErrors: []string{"TypeError: x is not a function at src/app.js:42:10"}})
	if len(s.ErrorTypes) != 1 || s.ErrorTypes[0] != "TypeError" {
		t.Errorf("expected TypeError extracted, got %v", s.ErrorTypes)
	}
	if len(s.ErrorFiles) != 1 || s.ErrorFiles[0] != "src/app.js" {
		t.Errorf("expected src/app.js extracted, got %v", s.ErrorFiles)
	}
}

func TestLegacyErrorParsingPythonStyle(t *testing.T) {
	s := Extract(Request{RecentErrors: []string{`File "app/main.py", line 10, in handler`}})
	if len(s.ErrorFiles) != 1 || s.ErrorFiles[0] != "app/main.py" {
		t.Errorf("expected app/main.py extracted, got %v", s.ErrorFiles)
	}
}

func TestRepoOrgFromGithubURL(t *testing.T) {
	s := Extract(Request{RepoPath: "git@github.com:benredmond/apex-sub002.git"})
	if s.Org != "benredmond" {
		t.Errorf("org = %q, want benredmond", s.Org)
	}
}

func TestPathsDeduplicatedPreservingOrder(t *testing.T) {
	s := Extract(Request{
		CurrentFile: "a.go",
		CodeContext: CodeContext{RelatedFiles: []string{"a.go", "b.go"}},
	})
	if len(s.Paths) != 2 || s.Paths[0] != "a.go" || s.Paths[1] != "b.go" {
		t.Errorf("unexpected dedup result: %v", s.Paths)
	}
}
