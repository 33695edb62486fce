package slots

import (
	"github.com/khawajanaqeeb/taskchat/internal/intent"
)

// Type names the value shape a slot carries.
type Type string

const (
	TypeText      Type = "text"
	TypeDate      Type = "date"
	TypeEnum      Type = "enum"
	TypeReference Type = "reference"
)

// Well-known slot names shared by the schemas below.
const (
	SlotContent       = "content"
	SlotItemReference = "itemReference"
	SlotDueDate       = "dueDate"
	SlotPriority      = "priority"
)

// Slot is one extracted argument with its per-slot confidence.
type Slot struct {
	Name       string  `json:"name"`
	Type       Type    `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Field declares one slot in an intent schema.
type Field struct {
	Name     string
	Type     Type
	Required bool
}

// Schema is the slot contract an intent's handler expects.
type Schema struct {
	Intent intent.Intent
	Fields []Field
}

// Required lists the names of all required fields.
func (s Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Field returns the declared field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var schemas = map[intent.Intent]Schema{
	intent.IntentAdd: {
		Intent: intent.IntentAdd,
		Fields: []Field{
			{Name: SlotContent, Type: TypeText, Required: true},
			{Name: SlotDueDate, Type: TypeDate},
			{Name: SlotPriority, Type: TypeEnum},
		},
	},
	intent.IntentList: {
		Intent: intent.IntentList,
	},
	intent.IntentComplete: {
		Intent: intent.IntentComplete,
		Fields: []Field{
			{Name: SlotItemReference, Type: TypeReference, Required: true},
		},
	},
	intent.IntentDelete: {
		Intent: intent.IntentDelete,
		Fields: []Field{
			{Name: SlotItemReference, Type: TypeReference, Required: true},
		},
	},
	intent.IntentUpdate: {
		Intent: intent.IntentUpdate,
		Fields: []Field{
			{Name: SlotItemReference, Type: TypeReference, Required: true},
			{Name: SlotContent, Type: TypeText},
			{Name: SlotDueDate, Type: TypeDate},
			{Name: SlotPriority, Type: TypeEnum},
		},
	},
	intent.IntentChat: {
		Intent: intent.IntentChat,
	},
}

// SchemaFor returns the slot schema declared for the given intent.
func SchemaFor(in intent.Intent) (Schema, bool) {
	s, ok := schemas[in]
	return s, ok
}
