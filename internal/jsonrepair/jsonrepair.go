// Package jsonrepair implements the "accept-and-repair" JSON parsing design
// note of spec.md §9: tolerate surrounding prose around an LLM's JSON
// output, extract the first balanced JSON object or array, and let the
// caller fall back to documented defaults on failure. Used by both
// QAGenerator and AgentEvaluator.
package jsonrepair

import (
	"encoding/json"
	"errors"
)

// ErrNoJSON is returned when no balanced JSON object/array could be found
// in the input.
var ErrNoJSON = errors.New("jsonrepair: no JSON object or array found")

// Extract scans s for the first balanced top-level '{...}' or '[...]' and
// returns that substring. It tracks string/escape state so braces inside
// string literals don't confuse the scan.
func Extract(s string) (string, error) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}

// Unmarshal extracts the first balanced JSON value from s and unmarshals
// it into v. Callers should fall back to a documented default when it
// returns a non-nil error, per the SchemaViolation policy in spec.md §7.
func Unmarshal(s string, v any) error {
	extracted, err := Extract(s)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(extracted), v)
}
