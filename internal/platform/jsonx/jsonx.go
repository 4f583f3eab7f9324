// Package jsonx decodes JSON out of generative-model output. Models routinely
// wrap objects in markdown fences, prepend prose, truncate mid-array, or leave
// trailing commas; callers get a single entry point that parses strictly
// first, then falls back to extraction and structural repair.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeObject parses raw model output into out. It tries, in order:
// the text as-is, the extracted outermost JSON object, and the repaired
// form of that object. The error from the final attempt is returned.
func DecodeObject(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	extracted := Extract(text)
	if err := json.Unmarshal([]byte(extracted), out); err == nil {
		return nil
	}

	repaired := Repair(extracted)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// Extract strips markdown code fences and surrounding prose, returning the
// substring from the first '{' through the last '}' (or the original text
// when no object delimiters are present).
func Extract(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	end := strings.LastIndex(text, "}")
	if end > start {
		return text[start : end+1]
	}
	return text[start:]
}

// Repair fixes the two failure shapes seen from truncated model output:
// a dangling trailing separator and unbalanced closing brackets/braces.
// Bracket counting ignores characters inside string literals.
func Repair(text string) string {
	text = strings.TrimRight(strings.TrimSpace(text), " \t\n\r")
	text = strings.TrimSuffix(text, ",")

	openBraces, openBrackets := 0, 0
	inString := false
	escaped := false
	for _, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				openBraces++
			}
		case '}':
			if !inString {
				openBraces--
			}
		case '[':
			if !inString {
				openBrackets++
			}
		case ']':
			if !inString {
				openBrackets--
			}
		}
	}

	// A truncation mid-string leaves an unterminated literal.
	if inString {
		text += `"`
	}
	for i := 0; i < openBrackets; i++ {
		text += "]"
	}
	for i := 0; i < openBraces; i++ {
		text += "}"
	}
	return text
}
