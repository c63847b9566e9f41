package diagnosis

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/fpang/hair-diagnosis-helper/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func sampleResult() Result {
	return Result{
		Result: Analysis{
			Face:          Face{Nose: "rounded", Mouth: "full lips", Eyes: "round", Eyebrows: "straight", Forehead: "wide"},
			Skeleton:      Skeleton{NeckLength: "average", FaceShape: "round", BodyLine: "straight", ShoulderLine: "sloped"},
			PersonalColor: PersonalColor{BaseColor: "yellow base", Season: "spring", Brightness: "high", Saturation: "medium", EyeColor: "light brown"},
		},
		Proposal: Proposal{
			Hairstyles: Hairstyles{
				Style1: Suggestion{Name: "Layered bob", Description: "Soft layers that frame the face"},
				Style2: Suggestion{Name: "Long waves", Description: "Loose waves below the shoulder"},
			},
			Haircolors: Haircolors{
				Color1: Suggestion{Name: "Honey beige", Description: "Warm and bright"},
				Color2: Suggestion{Name: "Milk tea", Description: "Soft and translucent"},
			},
			BestColors: BestColors{
				C1: Swatch{Name: "Coral", Hex: "#FF7F50"},
				C2: Swatch{Name: "Peach", Hex: "FFDAB9"},
				C3: Swatch{Name: "Ivory", Hex: "#fffff0"},
				C4: Swatch{Name: "Camel", Hex: "#C19A6B"},
			},
			Makeup:  Makeup{Eyeshadow: "warm brown", Cheek: "peach", Lip: "coral"},
			Comment: "Bright warm tones suit you.",
		},
	}
}

func sampleJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// withoutKey returns doc with the dotted path removed.
func withoutKey(t *testing.T, doc string, path ...string) string {
	t.Helper()
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		t.Fatal(err)
	}
	cur := obj
	for _, seg := range path[:len(path)-1] {
		cur = cur[seg].(map[string]interface{})
	}
	delete(cur, path[len(path)-1])
	b, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
