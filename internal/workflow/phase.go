// Package workflow is the client-side state machine that guides a session
// from photo capture through diagnosis, proposal selection, image synthesis
// and refinement.
package workflow

// Phase is a step of the guided workflow.
type Phase int

const (
	PhaseLanding Phase = iota
	PhaseGenderSelect
	PhaseUpload
	PhaseDiagnosing
	PhaseDiagnosisShown
	PhaseProposalSelect
	PhaseSynthesizing
	PhaseResultShown
	PhaseRefining
)

var phaseNames = [...]string{
	"landing", "gender_select", "upload", "diagnosing", "diagnosis_shown",
	"proposal_select", "synthesizing", "result_shown", "refining",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Category is a proposal category the user picks one entry from.
type Category string

const (
	CategoryHairstyle Category = "hairstyle"
	CategoryHaircolor Category = "haircolor"
)

// Selection is the user's chosen hairstyle and haircolor keys.
type Selection struct {
	HairstyleKey string
	HaircolorKey string
}

// Complete reports whether both categories are chosen.
func (s Selection) Complete() bool {
	return s.HairstyleKey != "" && s.HaircolorKey != ""
}
