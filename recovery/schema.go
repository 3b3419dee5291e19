package recovery

import "fmt"

// FieldType is the semantic type a schema field must have after recovery.
type FieldType int

const (
	String FieldType = iota
	StringList
	ObjectList
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case StringList:
		return "list-of-string"
	case ObjectList:
		return "list-of-object"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field is one required key of a structured model response.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the named set of required fields for one pipeline stage.
type Schema struct {
	Name   string
	Fields []Field
}

func NewSchema(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}
