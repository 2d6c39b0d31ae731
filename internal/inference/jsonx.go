package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a raw LLM response.
// Markdown fences are stripped and anything before the first '{' or after
// the matching last '}' is discarded. The returned bytes are verified to be
// a syntactically valid object.
func ExtractJSON(raw string) (json.RawMessage, error) {
	response := strings.TrimSpace(raw)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	jsonStr := response[start : end+1]

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return json.RawMessage(jsonStr), nil
}

// ClampConfidence forces a confidence value into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
