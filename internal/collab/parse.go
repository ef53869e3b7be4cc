package collab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds the first complete JSON object in a response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

// decodeResponse extracts and unmarshals the JSON object in an LLM response
// into out. Failures are wrapped as ErrMalformedResponse.
func decodeResponse(response string, out interface{}) error {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
