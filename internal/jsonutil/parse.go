// Package jsonutil extracts JSON documents from model output that may be
// wrapped in markdown code fences or surrounded by prose, and navigates the
// decoded tree by dotted key paths.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text contains no JSON object.
var ErrNoJSON = errors.New("no JSON object found")

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` wrapping from text.
// Returns the content between the fences, or the trimmed text if there are none.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}

	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

// ExtractObject returns the span from the first '{' to the last '}' in text.
func ExtractObject(text string) (string, error) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", ErrNoJSON
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", fmt.Errorf("%w: no closing brace", ErrNoJSON)
	}
	return text[start : end+1], nil
}

// Normalize strips fences and surrounding prose, returning the bare JSON object text.
func Normalize(raw string) (string, error) {
	text := StripMarkdownFences(raw)
	if json.Valid([]byte(text)) {
		return text, nil
	}
	return ExtractObject(text)
}

// DecodeObject normalizes raw and decodes it into a generic object tree.
func DecodeObject(raw string) (map[string]interface{}, error) {
	text, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(text))
	}
	if obj == nil {
		return nil, ErrNoJSON
	}
	return obj, nil
}

// ParseJSON normalizes raw and unmarshals it into T.
func ParseJSON[T any](raw string) (T, error) {
	var result T
	text, err := Normalize(raw)
	if err != nil {
		return result, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		var zero T
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(text))
	}
	return result, nil
}

// Lookup walks a dotted path ("proposal.bestColors.c1.hex") through nested
// objects. ok is false when any segment is missing or not an object.
func Lookup(obj map[string]interface{}, path string) (value interface{}, ok bool) {
	var cur interface{} = obj
	for _, seg := range strings.Split(path, ".") {
		m, isMap := cur.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
