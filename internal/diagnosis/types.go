// Package diagnosis turns a subject's front photo into a structured cosmetic
// diagnosis (face, skeleton, personal color) and a styling proposal.
package diagnosis

import "strings"

// Gender selects the instruction template used for the diagnosis.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Valid reports whether g is a supported gender category.
func (g Gender) Valid() bool {
	return g == GenderFemale || g == GenderMale
}

// Image slot names. All five are captured before a diagnosis is requested;
// the front photo is the one sent to the model.
const (
	SlotFrontPhoto = "item-front-photo"
	SlotSidePhoto  = "item-side-photo"
	SlotBackPhoto  = "item-back-photo"
	SlotFrontVideo = "item-front-video"
	SlotBackVideo  = "item-back-video"
)

// RequiredSlots lists every slot that must be filled before diagnosis.
var RequiredSlots = []string{SlotFrontPhoto, SlotSidePhoto, SlotBackPhoto, SlotFrontVideo, SlotBackVideo}

// SubjectProfile identifies the person being diagnosed. When a session is
// launched by staff on a customer's behalf, AdminName overrides DisplayName.
type SubjectProfile struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"displayName,omitempty"`
	ViaAdmin    bool   `json:"viaAdmin,omitempty"`
	AdminName   string `json:"adminName,omitempty"`
}

// EffectiveDisplayName is the name to address the subject by.
func (p SubjectProfile) EffectiveDisplayName() string {
	if p.ViaAdmin && strings.TrimSpace(p.AdminName) != "" {
		return p.AdminName
	}
	return p.DisplayName
}

// Request is a diagnosis request as submitted by a client.
type Request struct {
	ImageReferences map[string]string `json:"imageReferences"`
	SubjectProfile  SubjectProfile    `json:"subjectProfile"`
	GenderCategory  Gender            `json:"genderCategory"`
}

// Face describes facial features.
type Face struct {
	Nose     string `json:"nose"`
	Mouth    string `json:"mouth"`
	Eyes     string `json:"eyes"`
	Eyebrows string `json:"eyebrows"`
	Forehead string `json:"forehead"`
}

// Skeleton describes bone structure and body line.
type Skeleton struct {
	NeckLength   string `json:"neckLength"`
	FaceShape    string `json:"faceShape"`
	BodyLine     string `json:"bodyLine"`
	ShoulderLine string `json:"shoulderLine"`
}

// PersonalColor is the personal color analysis.
type PersonalColor struct {
	BaseColor  string `json:"baseColor"`
	Season     string `json:"season"`
	Brightness string `json:"brightness"`
	Saturation string `json:"saturation"`
	EyeColor   string `json:"eyeColor"`
}

// Analysis groups the three diagnosis sections.
type Analysis struct {
	Face          Face          `json:"face"`
	Skeleton      Skeleton      `json:"skeleton"`
	PersonalColor PersonalColor `json:"personalColor"`
}

// Suggestion is a named hairstyle or haircolor proposal.
type Suggestion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Hairstyles holds the two proposed hairstyles.
type Hairstyles struct {
	Style1 Suggestion `json:"style1"`
	Style2 Suggestion `json:"style2"`
}

// Haircolors holds the two proposed haircolors.
type Haircolors struct {
	Color1 Suggestion `json:"color1"`
	Color2 Suggestion `json:"color2"`
}

// Swatch is a named color with its hex code.
type Swatch struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// BestColors holds the four best-suited colors.
type BestColors struct {
	C1 Swatch `json:"c1"`
	C2 Swatch `json:"c2"`
	C3 Swatch `json:"c3"`
	C4 Swatch `json:"c4"`
}

// Makeup holds makeup advice.
type Makeup struct {
	Eyeshadow string `json:"eyeshadow"`
	Cheek     string `json:"cheek"`
	Lip       string `json:"lip"`
}

// Proposal is the styling proposal.
type Proposal struct {
	Hairstyles Hairstyles `json:"hairstyles"`
	Haircolors Haircolors `json:"haircolors"`
	BestColors BestColors `json:"bestColors"`
	Makeup     Makeup     `json:"makeup"`
	Comment    string     `json:"comment"`
}

// Result is a validated diagnosis. It is never modified after validation.
type Result struct {
	Result   Analysis `json:"result"`
	Proposal Proposal `json:"proposal"`
}

// Hairstyle returns the proposed hairstyle for key ("style1" or "style2").
func (r *Result) Hairstyle(key string) (Suggestion, bool) {
	switch key {
	case "style1":
		return r.Proposal.Hairstyles.Style1, true
	case "style2":
		return r.Proposal.Hairstyles.Style2, true
	}
	return Suggestion{}, false
}

// Haircolor returns the proposed haircolor for key ("color1" or "color2").
func (r *Result) Haircolor(key string) (Suggestion, bool) {
	switch key {
	case "color1":
		return r.Proposal.Haircolors.Color1, true
	case "color2":
		return r.Proposal.Haircolors.Color2, true
	}
	return Suggestion{}, false
}
