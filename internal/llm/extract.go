package llm

import "errors"

// ErrNoJSONObject is returned when no balanced top-level {...} block can be
// located in the completion text.
var ErrNoJSONObject = errors.New("no JSON object found in completion text")

// ExtractJSONObject returns the first top-level {...} block in s. Models
// routinely wrap their JSON answer in prose or markdown fences, so the block
// is located with a bracket-balance scan rather than a regexp; braces inside
// JSON strings (including escaped quotes) are ignored.
func ExtractJSONObject(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSONObject
}
