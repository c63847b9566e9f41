// Package assets embeds the prompt templates sent to the generative model.
//
// Templates live as text files under prompts/ so wording can change without
// touching pipeline code.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/diagnosis.txt
var diagnosisTemplate string

//go:embed prompts/synthesis.txt
var synthesisTemplate string

//go:embed prompts/refinement.txt
var refinementTemplate string

// PreserveRules keep every image edit confined to the hair.
//
//go:embed prompts/preserve-rules.txt
var PreserveRules string

// Pre-parsed templates. template.Must panics on malformed templates at
// startup rather than at call time.
var (
	diagnosisTmpl  = template.Must(template.New("diagnosis").Parse(diagnosisTemplate))
	synthesisTmpl  = template.Must(template.New("synthesis").Parse(synthesisTemplate))
	refinementTmpl = template.Must(template.New("refinement").Parse(refinementTemplate))
)

// DiagnosisData fills the diagnosis prompt.
type DiagnosisData struct {
	Gender string
	Male   bool
	Name   string
}

// Choice is a named proposal entry.
type Choice struct {
	Name        string
	Description string
}

// RenderDiagnosisPrompt renders the diagnosis instruction.
func RenderDiagnosisPrompt(d DiagnosisData) string {
	return render(diagnosisTmpl, d)
}

// RenderSynthesisPrompt renders the instruction for applying a hairstyle
// and haircolor.
func RenderSynthesisPrompt(hairstyle, haircolor Choice) string {
	return render(synthesisTmpl, struct {
		Hairstyle, Haircolor Choice
		Rules                string
	}{hairstyle, haircolor, PreserveRules})
}

// RenderRefinementPrompt renders the instruction for refining a generated image.
func RenderRefinementPrompt(request string) string {
	return render(refinementTmpl, struct {
		Request, Rules string
	}{strings.TrimSpace(request), PreserveRules})
}

// render executes a pre-parsed template. Execution errors are not expected
// with these templates; whatever was rendered is returned.
func render(tmpl *template.Template, data interface{}) string {
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
