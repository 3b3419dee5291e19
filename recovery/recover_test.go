package recovery

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = NewSchema("post",
	Field{Name: "title", Type: String},
	Field{Name: "tags", Type: StringList},
)

const cleanPayload = `{"title": "Rates rise again", "tags": ["economy", "banks"]}`

func cleanRecord() map[string]any {
	return map[string]any{
		"title": "Rates rise again",
		"tags":  []string{"economy", "banks"},
	}
}

func TestRecoverCleanPayload(t *testing.T) {
	out := Recover(cleanPayload, testSchema)
	require.Equal(t, StatusOK, out.Status, out.Diagnostic)
	assert.Equal(t, StepDirect, out.Step)
	assert.Equal(t, cleanPayload, out.Raw)
	if diff := cmp.Diff(cleanRecord(), out.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestRecoverIsIdempotentOnCanonicalForm(t *testing.T) {
	first := Recover(cleanPayload, testSchema)
	require.True(t, first.OK())

	canonical, err := json.Marshal(first.Record)
	require.NoError(t, err)

	second := Recover(string(canonical), testSchema)
	require.True(t, second.OK())
	if diff := cmp.Diff(first.Record, second.Record); diff != "" {
		t.Fatalf("re-recovered record differs (-first +second):\n%s", diff)
	}
}

func TestRecoverFenceStripIsTransparent(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + cleanPayload + "\n```",
		"```\n" + cleanPayload + "\n```",
		"  ```JSON " + cleanPayload + " ```  ",
	} {
		out := Recover(raw, testSchema)
		require.Equal(t, StatusOK, out.Status, raw)
		assert.Equal(t, raw, out.Raw)
		if diff := cmp.Diff(cleanRecord(), out.Record); diff != "" {
			t.Errorf("fenced %q (-want +got):\n%s", raw, diff)
		}
	}
}

func TestRecoverBraceExtractionFromProse(t *testing.T) {
	raw := "Sure! Here is the package you asked for:\n" + cleanPayload + "\nLet me know if you need changes."
	out := Recover(raw, testSchema)
	require.Equal(t, StatusOK, out.Status, out.Diagnostic)
	assert.Equal(t, StepBraceExtract, out.Step)
	if diff := cmp.Diff(cleanRecord(), out.Record); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestRecoverEscapeRepairKeepsNewlines(t *testing.T) {
	raw := "{\"title\": \"Line one\nLine two\r\nLine three\", \"tags\": [\"a\", \"b\",],}"
	out := Recover(raw, testSchema)
	require.Equal(t, StatusOK, out.Status, out.Diagnostic)
	assert.Equal(t, StepEscapeRepair, out.Step)
	assert.Equal(t, "Line one\nLine two\nLine three", out.Text("title"))
	assert.Equal(t, []string{"a", "b"}, out.List("tags"))
}

func TestRecoverMissingFieldIsNeverOK(t *testing.T) {
	cases := map[string]string{
		"direct":  `{"title": "Only a title"}`,
		"fenced":  "```json\n{\"title\": \"Only a title\"}\n```",
		"prose":   `Result: {"title": "Only a title"} done`,
		"repair":  "{\"title\": \"Only\na title\",}",
		"pattern": `garbage "title": "Only a title" and nothing else`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			out := Recover(raw, testSchema)
			assert.Equal(t, StatusSchemaViolation, out.Status)
			assert.Contains(t, out.Diagnostic, "tags")
			assert.NotEmpty(t, out.Text("title"))
		})
	}
}

func TestRecoverProseIsUnparseable(t *testing.T) {
	raw := "I'm sorry, I can't produce that article today."
	out := Recover(raw, testSchema)
	assert.Equal(t, StatusUnparseable, out.Status)
	assert.Equal(t, raw, out.Raw)
	assert.Nil(t, out.Record)
	assert.Equal(t, StepFieldRegex, out.Step)
	assert.Contains(t, out.Diagnostic, string(StepDirect))
}

func TestRecoverEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   \n", "```json\n```"} {
		out := Recover(raw, testSchema)
		assert.Equal(t, StatusUnparseable, out.Status)
		assert.Equal(t, StepFenceStrip, out.Step)
		assert.Equal(t, raw, out.Raw)
	}
}

func TestRecoverNonObjectPayload(t *testing.T) {
	out := Recover(`["economy", "banks"]`, testSchema)
	assert.Equal(t, StatusUnparseable, out.Status)
	assert.Contains(t, out.Diagnostic, "not an object")
}

func TestRecoverFieldRegexFallback(t *testing.T) {
	// truncated reply: no closing brace, so only the field patterns can help
	raw := `{"title": "Markets \"calm\" after vote", "tags": ["politics", "markets"], "content": "The vote was`
	out := Recover(raw, testSchema)
	require.Equal(t, StatusOK, out.Status, out.Diagnostic)
	assert.Equal(t, StepFieldRegex, out.Step)
	assert.Equal(t, `Markets "calm" after vote`, out.Text("title"))
	assert.Equal(t, []string{"politics", "markets"}, out.List("tags"))
}

func TestRecoverUnterminatedListIsNotSalvaged(t *testing.T) {
	// 列表缺少 "]"，捕获会跨到下一个字段的 key
	raw := `{"title": "T", "tags": ["a", "b", "content": "see [1] ref`
	out := Recover(raw, testSchema)
	assert.Equal(t, StatusSchemaViolation, out.Status)
	assert.Equal(t, StepFieldRegex, out.Step)
	assert.Contains(t, out.Diagnostic, "missing: tags")
	assert.Equal(t, "T", out.Text("title"))
	_, present := out.Record["tags"]
	assert.False(t, present)
}

func TestRecoverCoercesListElements(t *testing.T) {
	raw := `{"title": 2025, "tags": ["a", 1, 2.5, true, {"x": 1}, null, ["nested"]]}`
	out := Recover(raw, testSchema)
	require.Equal(t, StatusOK, out.Status, out.Diagnostic)
	assert.Equal(t, "2025", out.Text("title"))
	assert.Equal(t, []string{"a", "1", "2.5", "true"}, out.List("tags"))
	assert.Len(t, out.Warnings, 3)
}

func TestRecoverRejectsScalarForList(t *testing.T) {
	out := Recover(`{"title": "T", "tags": "economy, banks"}`, testSchema)
	assert.Equal(t, StatusSchemaViolation, out.Status)
	assert.Contains(t, out.Diagnostic, "wrong field types")
	_, present := out.Record["tags"]
	assert.False(t, present, "a scalar must never stand in for a list field")
}

func TestRecoverObjectList(t *testing.T) {
	schema := NewSchema("plan", Field{Name: "sections", Type: ObjectList})
	out := Recover(`{"sections": [{"h": "Intro"}, "stray", {"h": "Outro"}]}`, schema)
	require.True(t, out.OK(), out.Diagnostic)
	want := []map[string]any{{"h": "Intro"}, {"h": "Outro"}}
	if diff := cmp.Diff(want, out.Record["sections"]); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	assert.Len(t, out.Warnings, 1)
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```\n{}```", "{}"},
		{"  {}  ", "{}"},
		{"```\r\n{\"a\":1}\r\n```", `{"a":1}`},
		{"no fences", "no fences"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StripFences(c.in), c.in)
	}
}

func TestRepairEscapes(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{
			name: "keeps existing escapes",
			in:   "{\"a\":\"x \\\"q\\\" \\n y\nz\",}",
			want: "{\"a\":\"x \\\"q\\\" \\n y\\nz\"}",
		},
		{
			name: "escaped backslash before quote",
			in:   `{"p":"C:\\","q":[1,2,]}`,
			want: `{"p":"C:\\","q":[1,2]}`,
		},
		{
			name: "comma inside string untouched",
			in:   `{"a":"x, }"}`,
			want: `{"a":"x, }"}`,
		},
		{
			name: "placeholder-like text survives",
			in:   "{\"a\":\"__RECOVERY_ESC_NEWLINE__ x\ny\"}",
			want: `{"a":"__RECOVERY_ESC_NEWLINE__ x\ny"}`,
		},
		{
			name: "tab inside string",
			in:   "{\"a\":\"x\ty\"}",
			want: `{"a":"x\ty"}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, RepairEscapes(c.in))
		})
	}
}

func TestFieldTypeString(t *testing.T) {
	assert.Equal(t, "string", String.String())
	assert.Equal(t, "list-of-string", StringList.String())
	assert.Equal(t, "list-of-object", ObjectList.String())
	assert.Equal(t, "FieldType(9)", FieldType(9).String())
}
