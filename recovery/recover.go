// Package recovery turns unreliable model text into schema-validated records.
package recovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?[ \t]*```$")
)

// Recover applies the strategies in order (fence strip, direct parse,
// brace-bounded extraction, escape repair, field-regex fallback) and
// validates whatever record the first successful one produced. It never
// panics and never performs I/O; malformed input is reported through the
// Outcome, not an error.
func Recover(raw string, schema Schema) Outcome {
	out := Outcome{Raw: raw}

	text := StripFences(raw)
	if text == "" {
		out.Status = StatusUnparseable
		out.Step = StepFenceStrip
		out.Diagnostic = "empty response"
		return out
	}

	record, err := parseObject(text)
	if err == nil {
		return validate(out, record, StepDirect, schema)
	}
	lastStep, lastErr := StepDirect, err

	candidate := text
	if sliced, ok := braceBounded(text); ok && sliced != text {
		candidate = sliced
		record, err = parseObject(sliced)
		if err == nil {
			return validate(out, record, StepBraceExtract, schema)
		}
		lastStep, lastErr = StepBraceExtract, err
	}

	if repaired := RepairEscapes(candidate); repaired != candidate {
		record, err = parseObject(repaired)
		if err == nil {
			return validate(out, record, StepEscapeRepair, schema)
		}
		lastStep, lastErr = StepEscapeRepair, err
	}

	matched, missing := extractFields(raw, schema)
	switch {
	case len(matched) > 0 && len(missing) == 0:
		return validate(out, matched, StepFieldRegex, schema)
	case len(matched) > 0:
		out.Status = StatusSchemaViolation
		out.Step = StepFieldRegex
		out.Record = matched
		out.Diagnostic = fmt.Sprintf("%s matched %d of %d required fields of %q; missing: %s (last parse error at %s: %v)",
			StepFieldRegex, len(matched), len(schema.Fields), schema.Name, strings.Join(missing, ", "), lastStep, lastErr)
		return out
	}

	out.Status = StatusUnparseable
	out.Step = StepFieldRegex
	out.Diagnostic = fmt.Sprintf("%s matched no required fields of %q (last parse error at %s: %v)",
		StepFieldRegex, schema.Name, lastStep, lastErr)
	return out
}

// StripFences removes a leading code fence (optionally language-tagged) and
// a trailing fence, then trims surrounding whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func braceBounded(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func parseObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %s, not an object", kindOf(v))
	}
	return obj, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case float64, json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
