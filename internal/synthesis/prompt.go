package synthesis

import "github.com/fpang/hair-diagnosis-helper/internal/assets"

func synthesisInstruction(d StyleDirectives) string {
	return assets.RenderSynthesisPrompt(
		assets.Choice{Name: d.Hairstyle.Name, Description: d.Hairstyle.Description},
		assets.Choice{Name: d.Haircolor.Name, Description: d.Haircolor.Description},
	)
}

func refinementInstruction(request string) string {
	return assets.RenderRefinementPrompt(request)
}
