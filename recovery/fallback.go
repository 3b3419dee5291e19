package recovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

func stringFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(name) + `"\s*:\s*"((?:\\.|[^"\\])*?)"`)
}

func listFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(name) + `"\s*:\s*(\[.*?\])`)
}

// extractFields runs the field-level pattern match for every required field
// of schema against raw. It returns the matched values and the names of the
// fields it could not find.
func extractFields(raw string, schema Schema) (map[string]any, []string) {
	matched := map[string]any{}
	var missing []string
	for _, f := range schema.Fields {
		v, ok := extractField(raw, f)
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		matched[f.Name] = v
	}
	return matched, missing
}

func extractField(raw string, f Field) (any, bool) {
	if f.Type == StringList || f.Type == ObjectList {
		if m := listFieldPattern(f.Name).FindStringSubmatch(raw); m != nil {
			if l, ok := decodeList(m[1]); ok {
				return l, true
			}
		}
		if f.Type == ObjectList {
			return nil, false
		}
	}
	m := stringFieldPattern(f.Name).FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	return decodeString(m[1]), true
}

// decodeString unescapes a captured JSON string body; literal control
// characters that made the payload invalid are kept as they are.
func decodeString(body string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &s); err == nil {
		return strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(RepairEscapes(`"`+body+`"`)), &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(body)
}

// decodeList accepts a captured list only when it is valid JSON, directly or
// after RepairEscapes. An unterminated list lets the capture run into later
// fields, so anything else stays unmatched.
func decodeList(text string) ([]any, bool) {
	var l []any
	if err := json.Unmarshal([]byte(text), &l); err == nil {
		return l, true
	}
	if err := json.Unmarshal([]byte(RepairEscapes(text)), &l); err == nil {
		return l, true
	}
	return nil, false
}

func describeMissing(missing []string) string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
}
