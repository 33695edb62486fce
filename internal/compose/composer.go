package compose

import (
	"fmt"
	"strings"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/registry"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// templateKey selects a reply template. Template choice is a pure function of
// (intent, outcome kind); handler reasons fill the %s, nothing else leaks in.
type templateKey struct {
	Intent intent.Intent
	Kind   registry.ResultKind
}

var successTemplates = map[templateKey]string{
	{intent.IntentAdd, registry.ResultSuccess}:      "Added %s.",
	{intent.IntentComplete, registry.ResultSuccess}: "Marked %s as done.",
	{intent.IntentDelete, registry.ResultSuccess}:   "Deleted %s.",
	{intent.IntentUpdate, registry.ResultSuccess}:   "Updated %s.",
}

var failureTemplates = map[registry.ResultKind]string{
	registry.ResultNotFound:        "I couldn't find that item: %s",
	registry.ResultValidationError: "That didn't work: %s",
	registry.ResultConflict:        "I can't do that: %s",
}

var clarificationPrompts = map[string]string{
	slots.SlotItemReference: "Which item do you mean?",
	slots.SlotContent:       "What should the task say?",
	slots.SlotDueDate:       "When is it due?",
	slots.SlotPriority:      "Which priority should it have: high, normal, or low?",
}

const (
	rephraseReply = "Sorry, I didn't catch that. Could you rephrase?"
	fallbackChat  = "I can add, list, complete, update, or delete your todos. What would you like to do?"
)

// Composer renders user-facing replies. It holds no state.
type Composer struct{}

func New() *Composer {
	return &Composer{}
}

// Result renders a handler result for the given intent.
func (c *Composer) Result(in intent.Intent, result registry.Result) string {
	if result.Kind == registry.ResultSuccess {
		return c.success(in, result)
	}
	template, ok := failureTemplates[result.Kind]
	if !ok {
		template = failureTemplates[registry.ResultValidationError]
	}
	reason := strings.TrimSpace(result.Reason)
	if reason == "" {
		reason = "the handler declined the request"
	}
	return fmt.Sprintf(template, reason)
}

func (c *Composer) success(in intent.Intent, result registry.Result) string {
	if in == intent.IntentList {
		return c.listReply(result.Items)
	}
	message := strings.TrimSpace(result.Message)
	template, ok := successTemplates[templateKey{Intent: in, Kind: registry.ResultSuccess}]
	if !ok {
		if message != "" {
			return message
		}
		return "Done."
	}
	if message == "" {
		message = "that"
	}
	return fmt.Sprintf(template, message)
}

func (c *Composer) listReply(items []slots.Candidate) string {
	if len(items) == 0 {
		return "Your list is empty. Nice work!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d item(s):", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item.Label)
	}
	return b.String()
}

// Clarification asks the user for the first missing slot. One question per
// turn keeps the exchange simple and the pending state single-valued.
func (c *Composer) Clarification(_ intent.Intent, missing []string) string {
	for _, name := range missing {
		if prompt, ok := clarificationPrompts[name]; ok {
			return prompt
		}
	}
	return "Could you give me a bit more detail?"
}

// Confirmation asks the user to confirm a low-confidence routing decision.
func (c *Composer) Confirmation(in intent.Intent, args map[string]string) string {
	subject := strings.TrimSpace(args[slots.SlotContent])
	if subject == "" {
		subject = strings.TrimSpace(args[slots.SlotItemReference])
	}
	if subject == "" {
		return fmt.Sprintf("Just to confirm: you want me to %s that?", in)
	}
	return fmt.Sprintf("Just to confirm: you want me to %s %q?", in, subject)
}

// Chat produces a direct reply for non-actionable utterances.
func (c *Composer) Chat(utterance string) string {
	text := strings.ToLower(strings.TrimSpace(utterance))
	switch {
	case strings.Contains(text, "thank"):
		return "You're welcome!"
	case strings.HasPrefix(text, "hi") || strings.HasPrefix(text, "hello") || strings.HasPrefix(text, "hey"):
		return "Hi! " + fallbackChat
	case text == "":
		return fallbackChat
	default:
		return fallbackChat
	}
}

// Rephrase is the degraded reply after classifier retries are exhausted.
func (c *Composer) Rephrase() string {
	return rephraseReply
}
