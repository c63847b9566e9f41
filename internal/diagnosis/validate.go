package diagnosis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/jsonutil"
)

// Schema selects how much of the response structure is required.
type Schema int

const (
	// SchemaFull requires every section, including best colors and makeup.
	SchemaFull Schema = iota
	// SchemaBasic omits proposal.bestColors and proposal.makeup.
	SchemaBasic
)

// ParseSchema maps "basic" to SchemaBasic and anything else to SchemaFull.
func ParseSchema(s string) Schema {
	if s == "basic" {
		return SchemaBasic
	}
	return SchemaFull
}

var basicPaths = []string{
	"result.face.nose", "result.face.mouth", "result.face.eyes", "result.face.eyebrows", "result.face.forehead",
	"result.skeleton.neckLength", "result.skeleton.faceShape", "result.skeleton.bodyLine", "result.skeleton.shoulderLine",
	"result.personalColor.baseColor", "result.personalColor.season", "result.personalColor.brightness",
	"result.personalColor.saturation", "result.personalColor.eyeColor",
	"proposal.hairstyles.style1.name", "proposal.hairstyles.style1.description",
	"proposal.hairstyles.style2.name", "proposal.hairstyles.style2.description",
	"proposal.haircolors.color1.name", "proposal.haircolors.color1.description",
	"proposal.haircolors.color2.name", "proposal.haircolors.color2.description",
	"proposal.comment",
}

var fullOnlyPaths = []string{
	"proposal.bestColors.c1.name", "proposal.bestColors.c1.hex",
	"proposal.bestColors.c2.name", "proposal.bestColors.c2.hex",
	"proposal.bestColors.c3.name", "proposal.bestColors.c3.hex",
	"proposal.bestColors.c4.name", "proposal.bestColors.c4.hex",
	"proposal.makeup.eyeshadow", "proposal.makeup.cheek", "proposal.makeup.lip",
}

var hexPattern = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// RequiredPaths returns the dotted key paths a response must contain.
func RequiredPaths(schema Schema) []string {
	paths := append([]string(nil), basicPaths...)
	if schema == SchemaFull {
		paths = append(paths, fullOnlyPaths...)
	}
	return paths
}

// ContractViolation describes why model output was rejected.
type ContractViolation struct {
	Path   string // offending key path, empty for document-level problems
	Reason string
	Raw    string
	Cause  error
}

// Outcome is the result of validating model output: exactly one of Result
// and Violation is set.
type Outcome struct {
	Result    *Result
	Violation *ContractViolation
}

// OK reports whether validation succeeded.
func (o Outcome) OK() bool { return o.Violation == nil && o.Result != nil }

// Err converts a violation into a MalformedAIResponseError, or returns nil.
func (o Outcome) Err() error {
	if o.Violation == nil {
		return nil
	}
	reason := o.Violation.Reason
	if o.Violation.Path != "" {
		reason = o.Violation.Path + ": " + reason
	}
	return &gemini.MalformedAIResponseError{Raw: o.Violation.Raw, Reason: reason, Cause: o.Violation.Cause}
}

// Validate checks model text against the diagnosis contract. Markdown fences
// and surrounding prose are tolerated; every required key must be a string,
// and best-color hex codes must be six hex digits with an optional '#'.
func Validate(raw string, schema Schema) Outcome {
	violation := func(path, reason string, cause error) Outcome {
		return Outcome{Violation: &ContractViolation{Path: path, Reason: reason, Raw: truncate(raw, 1000), Cause: cause}}
	}

	if raw == "" {
		return violation("", "response text is empty", nil)
	}
	obj, err := jsonutil.DecodeObject(raw)
	if err != nil {
		return violation("", "response is not a JSON object", err)
	}
	for _, top := range []string{"result", "proposal"} {
		if _, ok := obj[top]; !ok {
			return violation(top, "missing required key", nil)
		}
	}

	for _, path := range RequiredPaths(schema) {
		v, ok := jsonutil.Lookup(obj, path)
		if !ok {
			return violation(path, "missing required key", nil)
		}
		s, isString := v.(string)
		if !isString {
			return violation(path, fmt.Sprintf("expected string, got %T", v), nil)
		}
		if strings.HasSuffix(path, ".hex") && !hexPattern.MatchString(s) {
			return violation(path, fmt.Sprintf("invalid hex color %q", s), nil)
		}
	}

	text, err := jsonutil.Normalize(raw)
	if err != nil {
		return violation("", "response is not a JSON object", err)
	}
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return violation("", "response does not match result shape", err)
	}
	return Outcome{Result: &result}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
