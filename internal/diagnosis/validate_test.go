package diagnosis

import (
	"errors"
	"strings"
	"testing"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

func TestValidate_RoundTrip(t *testing.T) {
	outcome := Validate(sampleJSON(t), SchemaFull)
	if !outcome.OK() {
		t.Fatalf("expected success, got violation %+v", outcome.Violation)
	}
	if *outcome.Result != sampleResult() {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *outcome.Result, sampleResult())
	}
}

func TestValidate_ToleratesFences(t *testing.T) {
	outcome := Validate("```json\n"+sampleJSON(t)+"\n```", SchemaFull)
	if !outcome.OK() {
		t.Fatalf("expected success, got %+v", outcome.Violation)
	}
}

func TestValidate_MissingBestColors(t *testing.T) {
	doc := withoutKey(t, sampleJSON(t), "proposal", "bestColors")

	outcome := Validate(doc, SchemaFull)
	if outcome.OK() {
		t.Fatal("expected violation")
	}
	if !strings.HasPrefix(outcome.Violation.Path, "proposal.bestColors") {
		t.Errorf("expected bestColors path, got %q", outcome.Violation.Path)
	}
	var mre *gemini.MalformedAIResponseError
	if !errors.As(outcome.Err(), &mre) {
		t.Fatalf("expected MalformedAIResponseError, got %T", outcome.Err())
	}

	if basic := Validate(doc, SchemaBasic); !basic.OK() {
		t.Errorf("basic schema should not require bestColors: %+v", basic.Violation)
	}
}

func TestValidate_MissingNestedKey(t *testing.T) {
	cases := [][]string{
		{"result"},
		{"proposal"},
		{"result", "face", "nose"},
		{"result", "skeleton"},
		{"proposal", "makeup", "lip"},
		{"proposal", "hairstyles", "style2"},
		{"proposal", "comment"},
	}
	for _, path := range cases {
		name := strings.Join(path, ".")
		t.Run(name, func(t *testing.T) {
			outcome := Validate(withoutKey(t, sampleJSON(t), path...), SchemaFull)
			if outcome.OK() {
				t.Fatalf("expected violation for missing %s", name)
			}
			if !strings.HasPrefix(outcome.Violation.Path, name) {
				t.Errorf("expected path under %s, got %q", name, outcome.Violation.Path)
			}
		})
	}
}

func TestValidate_InvalidHex(t *testing.T) {
	doc := strings.Replace(sampleJSON(t), `"#FF7F50"`, `"coral"`, 1)
	outcome := Validate(doc, SchemaFull)
	if outcome.OK() {
		t.Fatal("expected violation for invalid hex")
	}
	if outcome.Violation.Path != "proposal.bestColors.c1.hex" {
		t.Errorf("unexpected path %q", outcome.Violation.Path)
	}
}

func TestValidate_NonStringValue(t *testing.T) {
	doc := strings.Replace(sampleJSON(t), `"comment":"Bright warm tones suit you."`, `"comment":42`, 1)
	outcome := Validate(doc, SchemaFull)
	if outcome.OK() {
		t.Fatal("expected violation for non-string comment")
	}
	if outcome.Violation.Path != "proposal.comment" {
		t.Errorf("unexpected path %q", outcome.Violation.Path)
	}
}

func TestValidate_NotJSON(t *testing.T) {
	for _, raw := range []string{"", "I can't analyze this photo.", "{broken"} {
		if outcome := Validate(raw, SchemaFull); outcome.OK() {
			t.Errorf("expected violation for %q", raw)
		}
	}
}

func TestOutcome_ErrNilOnSuccess(t *testing.T) {
	if err := Validate(sampleJSON(t), SchemaFull).Err(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestResultLookups(t *testing.T) {
	r := sampleResult()
	if s, ok := r.Hairstyle("style2"); !ok || s.Name != "Long waves" {
		t.Errorf("unexpected style2: %+v %v", s, ok)
	}
	if c, ok := r.Haircolor("color1"); !ok || c.Name != "Honey beige" {
		t.Errorf("unexpected color1: %+v %v", c, ok)
	}
	if _, ok := r.Hairstyle("style3"); ok {
		t.Error("expected unknown key to fail")
	}
}

func TestSubjectProfile_AdminOverride(t *testing.T) {
	p := SubjectProfile{Identifier: "u1", DisplayName: "Line User", ViaAdmin: true, AdminName: "Hanako"}
	if got := p.EffectiveDisplayName(); got != "Hanako" {
		t.Errorf("expected admin name, got %q", got)
	}
	p.ViaAdmin = false
	if got := p.EffectiveDisplayName(); got != "Line User" {
		t.Errorf("expected display name, got %q", got)
	}
}
