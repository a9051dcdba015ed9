// Package argparse parses tool arguments out of LLM response text.
//
// Models that lack structured tool-call support emit arguments as free
// text: usually JSON, sometimes wrapped in markdown fences, sometimes
// as loose "key: value" lines. This package normalizes all of those
// into an argument map.
package argparse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parse converts an argument blob into a map. JSON is tried first,
// including JSON embedded in fences or surrounding prose; when no JSON
// object can be found, "key: value" lines are parsed with scalar
// coercion. Empty input yields an empty map.
func Parse(text string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}

	if jsonStr, err := ExtractJSON(trimmed); err == nil {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &args); err == nil {
			return args, nil
		}
	}

	return parseKeyValues(trimmed)
}

// ExtractJSON finds and returns the JSON object portion of a response
// string. It handles common LLM response patterns:
// 1. Pure JSON response - returns the full response
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON object embedded in text - finds first '{' and last '}'
//
// Limitations:
// - Only handles JSON objects, not arrays
// - Uses simple brace matching, not full JSON parsing
func ExtractJSON(response string) (string, error) {
	response = stripCodeFences(response)

	var probe interface{}
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end != -1 && end > start {
			jsonStr := response[start : end+1]
			if err := json.Unmarshal([]byte(jsonStr), &probe); err == nil {
				return jsonStr, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in response: %q", preview)
}

// Unmarshal extracts JSON from a response and decodes it into result.
func Unmarshal(response string, result interface{}) error {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), result); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

// stripCodeFences removes markdown code block markers from a response.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimSpace(trimmed)
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}

// parseKeyValues parses loose "key: value" lines. Values that look like
// integers, floats or booleans are coerced; everything else stays a
// string. Lines without a colon are skipped.
func parseKeyValues(text string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		args[key] = coerce(strings.TrimSpace(value))
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments found in %q", text)
	}
	return args, nil
}

// coerce converts a raw string value to the most specific scalar type.
func coerce(value string) interface{} {
	value = strings.Trim(value, `"'`)
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
