package recovery

// Status is the definitive result of one recovery attempt.
type Status string

const (
	StatusOK              Status = "ok"
	StatusSchemaViolation Status = "schema-violation"
	StatusUnparseable     Status = "unparseable"
)

// Step names a recovery strategy, from strict to lenient.
type Step string

const (
	StepFenceStrip   Step = "fence-strip"
	StepDirect       Step = "direct-parse"
	StepBraceExtract Step = "brace-extraction"
	StepEscapeRepair Step = "escape-repair"
	StepFieldRegex   Step = "field-regex"
)

// Outcome is what Recover reports for one raw text blob. Raw is always the
// untouched input, whatever the status.
type Outcome struct {
	Status     Status         `json:"status"`
	Record     map[string]any `json:"record,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	Raw        string         `json:"raw"`
	Step       Step           `json:"step,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

// Text returns a string field of the record, or "" when absent.
func (o Outcome) Text(field string) string {
	s, _ := o.Record[field].(string)
	return s
}

// List returns a list-of-string field of the record, or nil when absent.
func (o Outcome) List(field string) []string {
	l, _ := o.Record[field].([]string)
	return l
}
