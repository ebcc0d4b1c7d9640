// Package llmjson extracts structured data from raw model output, which
// arrives wrapped in code fences, reasoning blocks or trailing prose more
// often than not.
package llmjson

import (
	"encoding/json"
	"errors"
	"strings"
)

// StripThinkBlocks removes <think>...</think> reasoning blocks emitted by
// reasoning models. An unclosed block is stripped to the end of the string.
func StripThinkBlocks(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// StripFences removes markdown code fences (```json ... ```) and reasoning
// blocks from model output.
func StripFences(s string) string {
	s = StripThinkBlocks(strings.TrimSpace(s))
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// FirstObject finds the first balanced JSON object in s and unmarshals it.
// Models sometimes emit one or two extra closing braces; when the balanced
// slice fails to parse, trailing braces are trimmed one at a time before
// giving up.
func FirstObject(s string) (map[string]any, error) {
	s = StripFences(s)
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return nil, errors.New("no JSON object in model output")
	}

	depth := 0
	inString := false
	escaped := false
	end := -1
	for i := start; i < len(s); i++ {
		c := s[i]
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
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		// Unbalanced: take everything and let the trim loop try.
		end = len(s) - 1
	}

	candidate := s[start : end+1]
	for {
		var out map[string]any
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
		trimmed := strings.TrimSpace(candidate)
		if !strings.HasSuffix(trimmed, "}") || len(trimmed) <= 2 {
			return nil, errors.New("model output is not valid JSON")
		}
		candidate = strings.TrimSuffix(trimmed, "}")
	}
}

// StringField reads a string member, tolerating absence.
func StringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// StringSliceField reads an array-of-strings member, skipping non-string
// elements.
func StringSliceField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
