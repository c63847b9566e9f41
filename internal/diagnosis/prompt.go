package diagnosis

import (
	"strings"

	"github.com/fpang/hair-diagnosis-helper/internal/assets"
)

// BuildInstruction returns the diagnosis instruction for the given gender.
func BuildInstruction(gender Gender, displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "the customer"
	}
	return assets.RenderDiagnosisPrompt(assets.DiagnosisData{
		Gender: string(gender),
		Male:   gender == GenderMale,
		Name:   name,
	})
}
