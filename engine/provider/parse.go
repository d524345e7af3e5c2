package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// DecodeAnswerMap extracts {index: letter} mappings from a model reply.
// Markdown fences are stripped, a direct JSON parse is attempted, and on
// failure the payload is repaired (close an open quote, drop a trailing
// comma, close open braces) and reparsed. Keys may be strings or numbers;
// values are normalized to their first uppercase letter. ok is false when
// no valid mapping could be obtained, which callers treat as a parse
// failure answering nothing.
func DecodeAnswerMap(content string) (map[int]string, bool) {
	payload := stripFences(content)

	raw, ok := parseObject(payload)
	if !ok {
		repaired, rok := RepairJSON(payload)
		if !rok {
			return nil, false
		}
		raw, ok = parseObject(repaired)
		if !ok {
			return nil, false
		}
	}

	answers := make(map[int]string, len(raw))
	for key, val := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx <= 0 {
			continue
		}
		letter := firstUpperLetter(val)
		if letter == "" {
			continue
		}
		answers[idx] = letter
	}
	if len(answers) == 0 {
		return nil, false
	}
	return answers, true
}

func parseObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

// stripFences removes markdown code fences and keeps the outermost JSON
// object region when surrounding prose leaked in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '{'); idx > 0 {
		s = s[idx:]
	}
	return s
}

// RepairJSON patches a truncated JSON object: it walks the string tracking
// quote and escape state, closes an unterminated string, strips a trailing
// comma, and appends the missing closing braces. It reports false when the
// input does not start with '{'.
func RepairJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return "", false
	}

	inQuotes := false
	escaped := false
	depth := 0
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && r == '{':
			depth++
		case !inQuotes && r == '}':
			depth--
		}
	}

	if inQuotes {
		s += `"`
	}
	trimmed := strings.TrimRight(s, " \t\n")
	trimmed = strings.TrimSuffix(trimmed, ",")
	return trimmed + strings.Repeat("}", max(depth, 0)), true
}

// firstUpperLetter normalizes an answer value (string or number) to its
// first letter, uppercased. "b", " B. because" and "B" all yield "B".
func firstUpperLetter(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return strings.ToUpper(string(r))
		}
	}
	return ""
}
