package schema

import "testing"

func TestSanitizeTagsIsIdempotent(t *testing.T) {
	once := SanitizeTags([]string{"Go!", "Concurrency_Patterns", "go"})
	twice := SanitizeTags(once)
	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("not idempotent at %d: %v vs %v", i, once, twice)
		}
	}
}

func TestSanitizeTagsTruncatesTo15(t *testing.T) {
	tags := make([]string, 20)
	for i := range tags {
		tags[i] = string(rune('a' + i))
	}
	out := SanitizeTags(tags)
	if len(out) != 15 {
		t.Errorf("expected truncation to 15, got %d", len(out))
	}
}

func TestValidateStringRequired(t *testing.T) {
	var r Result
	ValidateString(&r, Field{Path: "task", Required: true, MinLen: 1, MaxLen: 1000}, "", false)
	if r.OK() {
		t.Error("expected required-field error")
	}
}

func TestValidateStringEnumSuggestsClosest(t *testing.T) {
	var r Result
	ValidateString(&r, Field{Path: "outcome", Enum: []string{"success", "partial", "failure"}}, "succes", true)
	if r.OK() {
		if len(r.Errors) != 0 {
			t.Fatal("expected an error to be recorded")
		}
	}
	if len(r.Errors) != 1 {
		t.Fatalf("expected one error, got %d", len(r.Errors))
	}
	if want := "success"; !contains([]string{want}, closestMatch("succes", []string{"success", "partial", "failure"})) {
		t.Errorf("expected closest match 'success'")
	}
}

func TestValidateNumberOutOfRange(t *testing.T) {
	var r Result
	ValidateNumber(&r, Field{Path: "min_trust", Min: 0, Max: 1}, 1.5, true)
	if r.OK() {
		t.Error("expected out-of-range error")
	}
}
