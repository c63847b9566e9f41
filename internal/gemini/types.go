package gemini

// types.go defines the generateContent request envelope. Contents and parts
// reuse the google.golang.org/genai wire types, which carry the REST field
// names; the envelope is declared here so only the fields this service sends
// are serialized.

import (
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultBaseURL is the Gemini REST API base URL.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Model IDs used by default. Both are overridable through configuration.
const (
	// DefaultTextModel produces the structured diagnosis.
	DefaultTextModel = "gemini-2.5-flash"

	// DefaultImageModel performs hairstyle synthesis and refinement.
	DefaultImageModel = "gemini-2.5-flash-image"
)

// Response modalities.
const (
	ModalityText  = "TEXT"
	ModalityImage = "IMAGE"
)

// Request is a generateContent request body.
type Request struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig holds the generation settings this service uses.
type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
	Temperature        *float32 `json:"temperature,omitempty"`
}

// UserContent builds a single user turn from parts.
func UserContent(parts ...*genai.Part) *genai.Content {
	return &genai.Content{Role: "user", Parts: parts}
}

// Model identifies a model endpoint and the credential used to call it.
type Model struct {
	BaseURL    string
	Name       string
	APIKey     string
	Credential string // configuration name of APIKey, reported when it is missing
}

// Endpoint returns the generateContent URL for the model. A missing API key
// yields a ConfigurationError.
func (m Model) Endpoint() (string, error) {
	if m.APIKey == "" {
		return "", &ConfigurationError{Credential: m.Credential}
	}
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, m.Name, url.QueryEscape(m.APIKey)), nil
}
