package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
)

// Candidate is an item a prior turn surfaced to the user, available for
// follow-up references like "the first one".
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// HistoryTurn is the minimal view of a past turn the extractor consults:
// what the user said and which items that turn's outcome listed.
type HistoryTurn struct {
	Input      string
	Candidates []Candidate
}

// Extraction is the extractor output: resolved slots plus the names of
// required slots it declined to guess.
type Extraction struct {
	Slots      map[string]Slot
	Unresolved []string
}

// Extractor pulls structured arguments out of an utterance for a classified
// intent. Item references are the one context-dependent case: they resolve
// against the most recent history turn that listed candidates.
type Extractor struct {
	// Now is injectable so date resolution stays deterministic in tests.
	Now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{Now: time.Now}
}

var (
	leadVerbRe = regexp.MustCompile(`(?i)^(please\s+)?(add|create|delete|remove|drop|trash|scratch|complete|finish|close|update|change|edit|rename|modify|reschedule|postpone|list|show)\b:?\s*`)
	leadTaskRe = regexp.MustCompile(`(?i)^(a\s+)?(new\s+)?(task|todo|item)(\s+(to|for|about))?\s*:?\s*`)
	leadAskRe  = regexp.MustCompile(`(?i)^(remind\s+me\s+to|remember\s+to|i\s+need\s+to|i\s+have\s+to)\s+`)
	markDoneRe = regexp.MustCompile(`(?i)^mark\s+(.*?)(\s+(as\s+)?(done|complete|completed|finished))?\s*$`)
	checkOffRe = regexp.MustCompile(`(?i)^(check|tick)\s+off\s+`)
	getRidRe   = regexp.MustCompile(`(?i)^get\s+rid\s+of\s+`)

	quotedRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	ordinalRe = regexp.MustCompile(`(?i)^(?:the\s+)?(first|second|third|fourth|fifth|last)\s*(?:one|item|task|todo)?$`)
	numberRe  = regexp.MustCompile(`(?i)^(?:the\s+)?(?:#|number\s+|item\s+|task\s+)(\d+)$`)
	labelRe   = regexp.MustCompile(`(?i)^(?:the\s+)?(.+?)\s+(?:one|item|task|todo)$`)
	pronounRe = regexp.MustCompile(`(?i)^(it|that|this|that\s+one|this\s+one|them)$`)

	changeToRe = regexp.MustCompile(`(?i)^(.*?)\s+to\s+(?:say\s+|be\s+)?(.+)$`)

	priorityHighRe = regexp.MustCompile(`(?i)\b(high\s+priority|urgent(ly)?|important|asap)\b`)
	priorityLowRe  = regexp.MustCompile(`(?i)\b(low\s+priority|whenever|no\s+rush|someday)\b`)
	priorityNormRe = regexp.MustCompile(`(?i)\b(normal|medium)\s+priority\b`)

	dueTailRe = regexp.MustCompile(`(?i)\s+(?:by|on|to|due|before|for)\s+(today|tonight|tomorrow|next\s+week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s*$`)
	dueBareRe = regexp.MustCompile(`(?i)\s+(today|tonight|tomorrow)\s*$`)
)

var ordinalIndex = map[string]int{
	"first":  0,
	"second": 1,
	"third":  2,
	"fourth": 3,
	"fifth":  4,
}

// Extract maps the utterance onto the intent's schema. Required slots it
// cannot resolve come back in Unresolved; it never fabricates a value.
func (e *Extractor) Extract(utterance string, in intent.Intent, history []HistoryTurn) Extraction {
	out := Extraction{Slots: make(map[string]Slot)}
	schema, ok := SchemaFor(in)
	if !ok {
		return out
	}

	text := strings.TrimSpace(utterance)
	switch in {
	case intent.IntentAdd:
		e.extractAdd(text, &out)
	case intent.IntentComplete, intent.IntentDelete:
		e.extractReferenceOnly(text, history, &out)
	case intent.IntentUpdate:
		e.extractUpdate(text, history, &out)
	}

	for _, name := range schema.Required() {
		if _, ok := out.Slots[name]; !ok {
			out.Unresolved = append(out.Unresolved, name)
		}
	}
	return out
}

// ExtractSlot resolves a single named slot from a clarification answer.
func (e *Extractor) ExtractSlot(field Field, utterance string, history []HistoryTurn) (Slot, bool) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Slot{}, false
	}
	switch field.Type {
	case TypeReference:
		return e.resolveReference(text, history)
	case TypeDate:
		if due, ok := e.parseDue(text); ok {
			return Slot{Name: field.Name, Type: TypeDate, Value: due, Confidence: 0.9}, true
		}
		return Slot{}, false
	case TypeEnum:
		if p, ok := parsePriorityWord(text); ok {
			return Slot{Name: field.Name, Type: TypeEnum, Value: p, Confidence: 0.9}, true
		}
		return Slot{}, false
	default:
		return Slot{Name: field.Name, Type: TypeText, Value: text, Confidence: 0.85}, true
	}
}

func (e *Extractor) extractAdd(text string, out *Extraction) {
	body := leadVerbRe.ReplaceAllString(text, "")
	body = leadTaskRe.ReplaceAllString(body, "")
	if body == text {
		body = leadAskRe.ReplaceAllString(body, "")
	}
	body = strings.TrimSpace(body)

	if p, span := e.priorityIn(body); p != "" {
		out.Slots[SlotPriority] = Slot{Name: SlotPriority, Type: TypeEnum, Value: p, Confidence: 0.9}
		body = strings.TrimSpace(strings.Replace(body, span, "", 1))
	}
	if due, rest, ok := e.dueIn(body); ok {
		out.Slots[SlotDueDate] = Slot{Name: SlotDueDate, Type: TypeDate, Value: due, Confidence: 0.9}
		body = rest
	}

	body = strings.Trim(strings.TrimSpace(body), `"'`)
	if body == "" {
		return
	}
	out.Slots[SlotContent] = Slot{Name: SlotContent, Type: TypeText, Value: body, Confidence: 0.9}
}

func (e *Extractor) extractReferenceOnly(text string, history []HistoryTurn, out *Extraction) {
	body := text
	if m := markDoneRe.FindStringSubmatch(body); m != nil && strings.TrimSpace(m[1]) != "" {
		body = m[1]
	}
	body = checkOffRe.ReplaceAllString(body, "")
	body = getRidRe.ReplaceAllString(body, "")
	body = leadVerbRe.ReplaceAllString(body, "")
	body = strings.TrimSpace(body)

	if slot, ok := e.resolveReference(body, history); ok {
		out.Slots[SlotItemReference] = slot
	}
}

func (e *Extractor) extractUpdate(text string, history []HistoryTurn, out *Extraction) {
	body := leadVerbRe.ReplaceAllString(text, "")
	body = strings.TrimSpace(body)

	if p, span := e.priorityIn(body); p != "" {
		out.Slots[SlotPriority] = Slot{Name: SlotPriority, Type: TypeEnum, Value: p, Confidence: 0.9}
		body = strings.TrimSpace(strings.Replace(body, span, "", 1))
		body = strings.TrimSuffix(strings.TrimSpace(body), " to")
	}
	if due, rest, ok := e.dueIn(body); ok {
		out.Slots[SlotDueDate] = Slot{Name: SlotDueDate, Type: TypeDate, Value: due, Confidence: 0.9}
		body = strings.TrimSuffix(strings.TrimSpace(rest), " to")
	}

	reference := body
	if _, hasDue := out.Slots[SlotDueDate]; !hasDue {
		if _, hasPriority := out.Slots[SlotPriority]; !hasPriority {
			if m := changeToRe.FindStringSubmatch(body); m != nil {
				reference = strings.TrimSpace(m[1])
				replacement := strings.Trim(strings.TrimSpace(m[2]), `"'`)
				if replacement != "" {
					out.Slots[SlotContent] = Slot{Name: SlotContent, Type: TypeText, Value: replacement, Confidence: 0.85}
				}
			}
		}
	}

	if slot, ok := e.resolveReference(strings.TrimSpace(reference), history); ok {
		out.Slots[SlotItemReference] = slot
	}
}

// resolveReference turns a textual mention into an item reference. Pronouns,
// ordinals and "the X one" forms need listed candidates from history; plain
// text falls through as a label reference the handler matches by content.
func (e *Extractor) resolveReference(text string, history []HistoryTurn) (Slot, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Slot{}, false
	}

	if m := quotedRe.FindStringSubmatch(text); m != nil {
		label := m[1]
		if label == "" {
			label = m[2]
		}
		if c, ok := matchCandidate(label, history); ok {
			return referenceSlot(c.ID, 0.95), true
		}
		return referenceSlot(label, 0.9), true
	}

	candidates := latestCandidates(history)

	if pronounRe.MatchString(text) {
		// A bare pronoun is only unambiguous when exactly one item is on
		// the table; anything else must go back to the user.
		if len(candidates) == 1 {
			return referenceSlot(candidates[0].ID, 0.9), true
		}
		return Slot{}, false
	}

	if m := ordinalRe.FindStringSubmatch(text); m != nil {
		word := strings.ToLower(m[1])
		if len(candidates) == 0 {
			return Slot{}, false
		}
		if word == "last" {
			return referenceSlot(candidates[len(candidates)-1].ID, 0.9), true
		}
		idx, ok := ordinalIndex[word]
		if !ok || idx >= len(candidates) {
			return Slot{}, false
		}
		return referenceSlot(candidates[idx].ID, 0.9), true
	}

	if m := numberRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(candidates) {
			return Slot{}, false
		}
		return referenceSlot(candidates[n-1].ID, 0.9), true
	}

	if m := labelRe.FindStringSubmatch(text); m != nil {
		if c, ok := matchCandidate(m[1], history); ok {
			return referenceSlot(c.ID, 0.85), true
		}
		// No listed candidates match; the extracted label still names the
		// item, so hand it to the handler as a content fragment.
		return referenceSlot(m[1], 0.7), true
	}

	if c, ok := matchCandidate(text, history); ok {
		return referenceSlot(c.ID, 0.85), true
	}
	return referenceSlot(text, 0.7), true
}

func referenceSlot(value string, confidence float64) Slot {
	return Slot{Name: SlotItemReference, Type: TypeReference, Value: value, Confidence: confidence}
}

// latestCandidates returns the candidate list from the most recent turn that
// surfaced one, scanning newest-first.
func latestCandidates(history []HistoryTurn) []Candidate {
	for i := len(history) - 1; i >= 0; i-- {
		if len(history[i].Candidates) > 0 {
			return history[i].Candidates
		}
	}
	return nil
}

// matchCandidate finds the unique candidate whose label contains the given
// fragment. Zero or multiple matches resolve nothing.
func matchCandidate(fragment string, history []HistoryTurn) (Candidate, bool) {
	candidates := latestCandidates(history)
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" || len(candidates) == 0 {
		return Candidate{}, false
	}

	var found Candidate
	matches := 0
	for _, c := range candidates {
		label := strings.ToLower(c.Label)
		if label == fragment {
			return c, true
		}
		if strings.Contains(label, fragment) {
			found = c
			matches++
		}
	}
	if matches == 1 {
		return found, true
	}
	return Candidate{}, false
}

func (e *Extractor) priorityIn(text string) (value, span string) {
	if m := priorityHighRe.FindString(text); m != "" {
		return "high", m
	}
	if m := priorityLowRe.FindString(text); m != "" {
		return "low", m
	}
	if m := priorityNormRe.FindString(text); m != "" {
		return "normal", m
	}
	return "", ""
}

func parsePriorityWord(text string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "high", "urgent", "important":
		return "high", true
	case "low", "someday":
		return "low", true
	case "normal", "medium":
		return "normal", true
	}
	return "", false
}

// dueIn strips a trailing due phrase from text, returning the resolved date
// and the remaining text.
func (e *Extractor) dueIn(text string) (due, rest string, ok bool) {
	if m := dueTailRe.FindStringSubmatch(text); m != nil {
		if d, ok := e.parseDue(m[1]); ok {
			return d, strings.TrimSpace(strings.TrimSuffix(text, m[0])), true
		}
	}
	if m := dueBareRe.FindStringSubmatch(text); m != nil {
		if d, ok := e.parseDue(m[1]); ok {
			return d, strings.TrimSpace(strings.TrimSuffix(text, m[0])), true
		}
	}
	return "", text, false
}

// parseDue resolves a relative date word to a YYYY-MM-DD value.
func (e *Extractor) parseDue(word string) (string, bool) {
	now := e.Now().UTC()
	day := func(t time.Time) string { return t.Format("2006-01-02") }

	switch strings.ToLower(strings.Join(strings.Fields(word), " ")) {
	case "today", "tonight":
		return day(now), true
	case "tomorrow":
		return day(now.AddDate(0, 0, 1)), true
	case "next week":
		return day(now.AddDate(0, 0, 7)), true
	}

	weekdays := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	if wd, ok := weekdays[strings.ToLower(strings.TrimSpace(word))]; ok {
		delta := (int(wd) - int(now.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return day(now.AddDate(0, 0, delta)), true
	}

	if t, err := time.Parse("2006-01-02", strings.TrimSpace(word)); err == nil {
		return day(t), true
	}
	return "", false
}

// String renders a slot for logs and error messages.
func (s Slot) String() string {
	return fmt.Sprintf("%s=%s (%.2f)", s.Name, s.Value, s.Confidence)
}
