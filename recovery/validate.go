package recovery

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// validate checks a parsed record against schema and normalizes typed
// fields in place. The same rules apply whichever step produced record.
func validate(out Outcome, record map[string]any, step Step, schema Schema) Outcome {
	out.Step = step
	out.Record = record

	var missing, wrong []string
	for _, f := range schema.Fields {
		v, ok := record[f.Name]
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		norm, warnings, err := coerce(f, v)
		out.Warnings = append(out.Warnings, warnings...)
		if err != nil {
			wrong = append(wrong, fmt.Sprintf("%s (%v)", f.Name, err))
			delete(record, f.Name)
			continue
		}
		record[f.Name] = norm
	}

	if len(missing) == 0 && len(wrong) == 0 {
		out.Status = StatusOK
		out.Diagnostic = fmt.Sprintf("recovered via %s", step)
		return out
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, describeMissing(missing))
	}
	if len(wrong) > 0 {
		problems = append(problems, "wrong field types: "+strings.Join(wrong, ", "))
	}
	out.Status = StatusSchemaViolation
	out.Diagnostic = fmt.Sprintf("%s succeeded but payload violates schema %q: %s",
		step, schema.Name, strings.Join(problems, "; "))
	return out
}

func coerce(f Field, v any) (any, []string, error) {
	switch f.Type {
	case String:
		s, ok := scalarText(v)
		if !ok {
			return nil, nil, fmt.Errorf("want string, got %s", kindOf(v))
		}
		return s, nil, nil
	case StringList:
		items, ok := v.([]any)
		if !ok {
			if typed, isTyped := v.([]string); isTyped {
				return typed, nil, nil
			}
			return nil, nil, fmt.Errorf("want list-of-string, got %s", kindOf(v))
		}
		list := make([]string, 0, len(items))
		var warnings []string
		for i, item := range items {
			s, ok := scalarText(item)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s[%d]: dropped %s element", f.Name, i, kindOf(item)))
				continue
			}
			list = append(list, s)
		}
		return list, warnings, nil
	case ObjectList:
		items, ok := v.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("want list-of-object, got %s", kindOf(v))
		}
		list := make([]map[string]any, 0, len(items))
		var warnings []string
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s[%d]: dropped %s element", f.Name, i, kindOf(item)))
				continue
			}
			list = append(list, obj)
		}
		return list, warnings, nil
	default:
		return v, nil, nil
	}
}

// scalarText renders strings, numbers and booleans as text.
func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
