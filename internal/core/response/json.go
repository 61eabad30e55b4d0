package response

import "strings"

// ExtractJSON pulls a JSON document out of model output. It prefers a
// ```json fence, then any fence whose body starts with an object or array,
// then the first balanced object or array. A fenced value is scanned with
// balanced, not cut at the next fence, so strings may contain ``` runs.
// If nothing matches it returns the trimmed input so the caller's decoder
// reports the error.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if idx := strings.Index(text, "```json"); idx != -1 {
		if extracted := fenced(text, idx+len("```json")); extracted != "" {
			return extracted
		}
	}

	if idx := strings.Index(text, "```"); idx != -1 {
		start := idx + 3
		if nl := strings.Index(text[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if extracted := fenced(text, start); extracted != "" {
			return extracted
		}
	}

	for _, open := range []byte{'{', '['} {
		if idx := strings.IndexByte(text, open); idx != -1 {
			if extracted := balanced(text, idx); extracted != "" {
				return extracted
			}
		}
	}

	return text
}

// fenced returns the object or array that opens a fence body at start.
func fenced(text string, start int) string {
	body := strings.TrimLeft(text[start:], " \t\r\n")
	if body == "" || (body[0] != '{' && body[0] != '[') {
		return ""
	}
	return balanced(text, len(text)-len(body))
}

// balanced returns the JSON value starting at idx, honoring string escapes.
func balanced(text string, idx int) string {
	depth := 0
	inString := false
	escaped := false

	for i := idx; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[idx : i+1]
			}
		}
	}
	return ""
}
