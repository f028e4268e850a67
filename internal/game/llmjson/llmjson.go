// Package llmjson extracts JSON payloads from language model output.
//
// Models wrap JSON in prose or markdown fences often enough that a strict
// json.Unmarshal on the raw response fails. Extraction tries three forms
// in order: the whole response, a ```json fenced block, and finally the
// outermost brace-delimited object.
package llmjson

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object is found.
var ErrNoJSON = errors.New("no JSON object found in response")

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Extract returns the JSON object text embedded in response.
//
// Postcondition: The returned string parses as a JSON value, or ErrNoJSON
// is returned.
func Extract(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return trimmed, nil
	}

	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// Outermost object: first '{' to last '}'.
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", ErrNoJSON
}

// Unmarshal extracts the JSON payload from response and decodes it into v.
//
// Precondition: v must be a non-nil pointer.
func Unmarshal(response string, v any) error {
	payload, err := Extract(response)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), v)
}
