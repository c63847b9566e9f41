package gemini

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"google.golang.org/genai"
)

// DefaultImageMIMEType is assumed when an inline image part omits its MIME type.
const DefaultImageMIMEType = "image/png"

// GeneratedImage is an image returned by the image model.
type GeneratedImage struct {
	EncodedData string `json:"encodedImage"` // base64, standard encoding
	MIMEType    string `json:"mimeType"`
}

// DataURL renders the image as a data: URL.
func (g GeneratedImage) DataURL() string {
	return "data:" + g.MIMEType + ";base64," + g.EncodedData
}

// Decode returns the raw image bytes.
func (g GeneratedImage) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(g.EncodedData)
}

func decodeResponse(body []byte) (*genai.GenerateContentResponse, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedAIResponseError{
			Raw:    truncateString(string(body), 1000),
			Reason: "response is not a generateContent response",
			Cause:  err,
		}
	}
	if len(resp.Candidates) == 0 {
		reason := "response has no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, &MalformedAIResponseError{Raw: truncateString(string(body), 1000), Reason: reason}
	}
	return &resp, nil
}

// ExtractText returns the text of the first candidate, joining its text parts.
// Thought parts are skipped. An empty result is a MalformedAIResponseError.
func ExtractText(body []byte) (string, error) {
	resp, err := decodeResponse(body)
	if err != nil {
		return "", err
	}
	first := resp.Candidates[0]
	if first == nil || first.Content == nil {
		return "", &MalformedAIResponseError{Raw: truncateString(string(body), 1000), Reason: "first candidate has no content"}
	}

	var sb strings.Builder
	for _, part := range first.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &MalformedAIResponseError{Raw: truncateString(string(body), 1000), Reason: "response text is empty"}
	}
	return text, nil
}

// ExtractImage returns the first inline image found scanning candidates in
// order, then their parts in order. It has no side effects, so repeated calls
// on the same body return equal values.
func ExtractImage(body []byte) (GeneratedImage, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return GeneratedImage{}, &MalformedAIResponseError{
			Raw:    truncateString(string(body), 1000),
			Reason: "response is not a generateContent response",
			Cause:  err,
		}
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = DefaultImageMIMEType
				}
				return GeneratedImage{
					EncodedData: base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MIMEType:    mimeType,
				}, nil
			}
			text.WriteString(part.Text)
		}
	}
	return GeneratedImage{}, &MissingImageDataError{Text: text.String()}
}
