package slots

import (
	"testing"
	"time"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
)

// fixedNow is a Monday so weekday resolution is deterministic.
var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newFixedExtractor() *Extractor {
	e := NewExtractor()
	e.Now = func() time.Time { return fixedNow }
	return e
}

func TestExtractAdd(t *testing.T) {
	e := newFixedExtractor()
	tests := []struct {
		name         string
		utterance    string
		wantContent  string
		wantDue      string
		wantPriority string
	}{
		{
			name:        "plain",
			utterance:   "add buy milk",
			wantContent: "buy milk",
		},
		{
			name:        "reminder form",
			utterance:   "remind me to call mom",
			wantContent: "call mom",
		},
		{
			name:        "trailing bare date",
			utterance:   "add buy milk tomorrow",
			wantContent: "buy milk",
			wantDue:     "2025-03-11",
		},
		{
			name:         "priority and due date",
			utterance:    "please add urgent call mom by friday",
			wantContent:  "call mom",
			wantDue:      "2025-03-14",
			wantPriority: "high",
		},
		{
			name:        "quoted content",
			utterance:   `add "water the plants"`,
			wantContent: "water the plants",
		},
		{
			name:        "task noun prefix",
			utterance:   "create a new task to book flights",
			wantContent: "book flights",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.utterance, intent.IntentAdd, nil)
			if len(got.Unresolved) != 0 {
				t.Fatalf("Unresolved = %v, want none", got.Unresolved)
			}
			if got.Slots[SlotContent].Value != tt.wantContent {
				t.Fatalf("content = %q, want %q", got.Slots[SlotContent].Value, tt.wantContent)
			}
			if got.Slots[SlotDueDate].Value != tt.wantDue {
				t.Fatalf("dueDate = %q, want %q", got.Slots[SlotDueDate].Value, tt.wantDue)
			}
			if got.Slots[SlotPriority].Value != tt.wantPriority {
				t.Fatalf("priority = %q, want %q", got.Slots[SlotPriority].Value, tt.wantPriority)
			}
		})
	}
}

func TestExtractAddMissingContent(t *testing.T) {
	e := newFixedExtractor()
	got := e.Extract("add", intent.IntentAdd, nil)
	if len(got.Unresolved) != 1 || got.Unresolved[0] != SlotContent {
		t.Fatalf("Unresolved = %v, want [%s]", got.Unresolved, SlotContent)
	}
}

func TestResolveReferenceAgainstHistory(t *testing.T) {
	e := newFixedExtractor()
	history := []HistoryTurn{
		{
			Input: "show my list",
			Candidates: []Candidate{
				{ID: "i1", Label: "buy milk"},
				{ID: "i2", Label: "call dentist"},
				{ID: "i3", Label: "water plants"},
			},
		},
	}

	tests := []struct {
		name      string
		utterance string
		in        intent.Intent
		wantValue string
	}{
		{"ordinal first", "delete the first one", intent.IntentDelete, "i1"},
		{"ordinal last", "delete the last one", intent.IntentDelete, "i3"},
		{"number", "complete #2", intent.IntentComplete, "i2"},
		{"label fragment", "delete the milk one", intent.IntentDelete, "i1"},
		{"exact label", "complete call dentist", intent.IntentComplete, "i2"},
		{"quoted label", `delete "water plants"`, intent.IntentDelete, "i3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.utterance, tt.in, history)
			slot, ok := got.Slots[SlotItemReference]
			if !ok {
				t.Fatalf("itemReference missing, Unresolved = %v", got.Unresolved)
			}
			if slot.Value != tt.wantValue {
				t.Fatalf("itemReference = %q, want %q", slot.Value, tt.wantValue)
			}
		})
	}
}

func TestResolveReferencePronoun(t *testing.T) {
	e := newFixedExtractor()

	// One candidate on the table: "it" is unambiguous.
	one := []HistoryTurn{{Candidates: []Candidate{{ID: "i1", Label: "buy milk"}}}}
	got := e.Extract("delete it", intent.IntentDelete, one)
	if got.Slots[SlotItemReference].Value != "i1" {
		t.Fatalf("itemReference = %q, want i1", got.Slots[SlotItemReference].Value)
	}

	// Several candidates: a pronoun must not guess.
	many := []HistoryTurn{{Candidates: []Candidate{
		{ID: "i1", Label: "buy milk"},
		{ID: "i2", Label: "call dentist"},
	}}}
	got = e.Extract("delete it", intent.IntentDelete, many)
	if _, ok := got.Slots[SlotItemReference]; ok {
		t.Fatal("pronoun resolved against multiple candidates, want unresolved")
	}
	if len(got.Unresolved) != 1 || got.Unresolved[0] != SlotItemReference {
		t.Fatalf("Unresolved = %v, want [%s]", got.Unresolved, SlotItemReference)
	}

	// No history at all: same outcome.
	got = e.Extract("delete it", intent.IntentDelete, nil)
	if _, ok := got.Slots[SlotItemReference]; ok {
		t.Fatal("pronoun resolved with no history, want unresolved")
	}
}

func TestResolveReferenceUsesMostRecentCandidates(t *testing.T) {
	e := newFixedExtractor()
	history := []HistoryTurn{
		{Candidates: []Candidate{{ID: "old1", Label: "stale item"}}},
		{Candidates: []Candidate{{ID: "new1", Label: "fresh item"}, {ID: "new2", Label: "other item"}}},
	}
	got := e.Extract("delete the first one", intent.IntentDelete, history)
	if got.Slots[SlotItemReference].Value != "new1" {
		t.Fatalf("itemReference = %q, want new1 from the latest listing", got.Slots[SlotItemReference].Value)
	}
}

func TestLabelFormFallsThroughWithoutCandidates(t *testing.T) {
	e := newFixedExtractor()
	slot, ok := e.ExtractSlot(Field{Name: SlotItemReference, Type: TypeReference}, "the milk one", nil)
	if !ok {
		t.Fatal("ExtractSlot() resolved nothing, want the label as a content fragment")
	}
	if slot.Value != "milk" {
		t.Fatalf("itemReference = %q, want the bare label", slot.Value)
	}
	if slot.Confidence >= 0.85 {
		t.Fatalf("Confidence = %v, want lower for an unmatched label", slot.Confidence)
	}
}

func TestPlainTextFallsThroughAsLabelReference(t *testing.T) {
	e := newFixedExtractor()
	got := e.Extract("delete buy milk", intent.IntentDelete, nil)
	slot, ok := got.Slots[SlotItemReference]
	if !ok {
		t.Fatalf("itemReference missing, Unresolved = %v", got.Unresolved)
	}
	if slot.Value != "buy milk" {
		t.Fatalf("itemReference = %q, want the label text", slot.Value)
	}
	if slot.Confidence >= 0.85 {
		t.Fatalf("Confidence = %v, want lower for an unmatched label", slot.Confidence)
	}
}

func TestExtractUpdate(t *testing.T) {
	e := newFixedExtractor()

	got := e.Extract("rename buy milk to buy oat milk", intent.IntentUpdate, nil)
	if got.Slots[SlotItemReference].Value != "buy milk" {
		t.Fatalf("itemReference = %q, want %q", got.Slots[SlotItemReference].Value, "buy milk")
	}
	if got.Slots[SlotContent].Value != "buy oat milk" {
		t.Fatalf("content = %q, want %q", got.Slots[SlotContent].Value, "buy oat milk")
	}

	got = e.Extract("reschedule dentist to friday", intent.IntentUpdate, nil)
	if got.Slots[SlotDueDate].Value != "2025-03-14" {
		t.Fatalf("dueDate = %q, want 2025-03-14", got.Slots[SlotDueDate].Value)
	}
	if got.Slots[SlotItemReference].Value != "dentist" {
		t.Fatalf("itemReference = %q, want %q", got.Slots[SlotItemReference].Value, "dentist")
	}

	got = e.Extract("change groceries to high priority", intent.IntentUpdate, nil)
	if got.Slots[SlotPriority].Value != "high" {
		t.Fatalf("priority = %q, want high", got.Slots[SlotPriority].Value)
	}
	if got.Slots[SlotItemReference].Value != "groceries" {
		t.Fatalf("itemReference = %q, want %q", got.Slots[SlotItemReference].Value, "groceries")
	}
}

func TestExtractMarkDone(t *testing.T) {
	e := newFixedExtractor()
	got := e.Extract("mark laundry as done", intent.IntentComplete, nil)
	if got.Slots[SlotItemReference].Value != "laundry" {
		t.Fatalf("itemReference = %q, want %q", got.Slots[SlotItemReference].Value, "laundry")
	}
}

func TestExtractSlot(t *testing.T) {
	e := newFixedExtractor()

	slot, ok := e.ExtractSlot(Field{Name: SlotDueDate, Type: TypeDate}, "tomorrow", nil)
	if !ok || slot.Value != "2025-03-11" {
		t.Fatalf("ExtractSlot(date) = %+v, %v; want 2025-03-11", slot, ok)
	}
	if _, ok := e.ExtractSlot(Field{Name: SlotDueDate, Type: TypeDate}, "whenever", nil); ok {
		t.Fatal("ExtractSlot(date) resolved an unparsable answer")
	}

	slot, ok = e.ExtractSlot(Field{Name: SlotPriority, Type: TypeEnum}, "urgent", nil)
	if !ok || slot.Value != "high" {
		t.Fatalf("ExtractSlot(enum) = %+v, %v; want high", slot, ok)
	}

	history := []HistoryTurn{{Candidates: []Candidate{{ID: "i1", Label: "buy milk"}}}}
	slot, ok = e.ExtractSlot(Field{Name: SlotItemReference, Type: TypeReference}, "the milk one", history)
	if !ok || slot.Value != "i1" {
		t.Fatalf("ExtractSlot(reference) = %+v, %v; want i1", slot, ok)
	}

	slot, ok = e.ExtractSlot(Field{Name: SlotContent, Type: TypeText}, "buy oat milk", nil)
	if !ok || slot.Value != "buy oat milk" {
		t.Fatalf("ExtractSlot(text) = %+v, %v", slot, ok)
	}
	if _, ok := e.ExtractSlot(Field{Name: SlotContent, Type: TypeText}, "  ", nil); ok {
		t.Fatal("ExtractSlot(text) resolved an empty answer")
	}
}

func TestParseDue(t *testing.T) {
	e := newFixedExtractor()
	tests := []struct {
		word string
		want string
		ok   bool
	}{
		{"today", "2025-03-10", true},
		{"tonight", "2025-03-10", true},
		{"tomorrow", "2025-03-11", true},
		{"next week", "2025-03-17", true},
		{"friday", "2025-03-14", true},
		// Same weekday as "now" means next week's occurrence.
		{"monday", "2025-03-17", true},
		{"2025-04-01", "2025-04-01", true},
		{"someday", "", false},
	}
	for _, tt := range tests {
		got, ok := e.parseDue(tt.word)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("parseDue(%q) = %q, %v; want %q, %v", tt.word, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSchemaFor(t *testing.T) {
	schema, ok := SchemaFor(intent.IntentAdd)
	if !ok {
		t.Fatal("SchemaFor(add) not found")
	}
	required := schema.Required()
	if len(required) != 1 || required[0] != SlotContent {
		t.Fatalf("Required() = %v, want [%s]", required, SlotContent)
	}

	schema, ok = SchemaFor(intent.IntentDelete)
	if !ok {
		t.Fatal("SchemaFor(delete) not found")
	}
	if _, ok := schema.Field(SlotItemReference); !ok {
		t.Fatal("delete schema missing itemReference")
	}

	schema, ok = SchemaFor(intent.IntentChat)
	if !ok {
		t.Fatal("SchemaFor(chat) not found")
	}
	if len(schema.Required()) != 0 {
		t.Fatalf("chat Required() = %v, want none", schema.Required())
	}
}
