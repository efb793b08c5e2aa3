package pipeline

import (
	"encoding/json"
	"regexp"
)

var fencePattern = regexp.MustCompile("(?i)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSONObject recovers the first JSON object embedded in noisy model
// output. Fenced code blocks are tried first, then the whole text.
func ExtractJSONObject(text string) (map[string]any, bool) {
	for _, match := range fencePattern.FindAllStringSubmatch(text, -1) {
		if obj, ok := firstBalancedObject(match[1]); ok {
			return obj, true
		}
	}
	return firstBalancedObject(text)
}

// firstBalancedObject scans for brace-balanced spans outside string literals
// and returns the first one that decodes to an object. Spans that fail to
// decode are skipped.
//
// Iterating bytes is safe: '{', '}', '"' and '\\' never occur inside a
// multi-byte UTF-8 sequence.
func firstBalancedObject(text string) (map[string]any, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
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
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err == nil && obj != nil {
					return obj, true
				}
				start = -1
			}
		}
	}
	return nil, false
}
