package intent

import (
	"context"
	"regexp"
	"strings"
)

// cue is a single lexical signal for an intent. Leading cues anchor at the
// start of the utterance and score higher than cues found anywhere.
type cue struct {
	pattern *regexp.Regexp
	weight  float64
}

var ruleCues = map[Intent][]cue{
	IntentDelete: {
		{regexp.MustCompile(`(?i)^(please\s+)?(delete|remove|drop|trash|scratch)\b`), 0.92},
		{regexp.MustCompile(`(?i)\bget\s+rid\s+of\b`), 0.88},
		{regexp.MustCompile(`(?i)\b(delete|remove)\b`), 0.75},
	},
	IntentComplete: {
		{regexp.MustCompile(`(?i)^(please\s+)?(complete|finish|close)\b`), 0.92},
		{regexp.MustCompile(`(?i)\bmark\b.*\b(done|complete|completed|finished)\b`), 0.9},
		{regexp.MustCompile(`(?i)\b(check|tick)\s+off\b`), 0.88},
		{regexp.MustCompile(`(?i)\b(i\s+)?(did|finished|completed)\b`), 0.7},
		{regexp.MustCompile(`(?i)\bdone\b`), 0.62},
	},
	IntentUpdate: {
		{regexp.MustCompile(`(?i)^(please\s+)?(update|change|edit|rename|modify|reschedule|postpone)\b`), 0.92},
		{regexp.MustCompile(`(?i)\bset\b.*\b(priority|due|deadline)\b`), 0.88},
		{regexp.MustCompile(`(?i)\bmove\b.*\bto\b`), 0.7},
		{regexp.MustCompile(`(?i)\b(update|change|rename)\b`), 0.72},
	},
	IntentAdd: {
		{regexp.MustCompile(`(?i)^(please\s+)?(add|create)\b`), 0.92},
		{regexp.MustCompile(`(?i)^(remind\s+me\s+to|remember\s+to|i\s+need\s+to|i\s+have\s+to)\b`), 0.85},
		{regexp.MustCompile(`(?i)\bnew\s+(task|todo|item)\b`), 0.82},
		{regexp.MustCompile(`(?i)\bput\b.*\bon\s+(my\s+)?list\b`), 0.8},
		{regexp.MustCompile(`(?i)\badd\b`), 0.72},
	},
	IntentList: {
		{regexp.MustCompile(`(?i)^(please\s+)?(list|show)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bwhat('s| is| do i have)?\s+(on\s+my\s+(list|plate)|due|left|pending)\b`), 0.85},
		{regexp.MustCompile(`(?i)\b(my|the)\s+(tasks|todos|list|items)\b`), 0.72},
		{regexp.MustCompile(`(?i)\banything\s+(due|left|pending)\b`), 0.8},
	},
}

// RuleClassifier scores utterances against fixed lexical cues. It is the
// deterministic default backend and the reference for classifier tests.
type RuleClassifier struct {
	floor   float64
	epsilon float64
}

func NewRuleClassifier(floor, epsilon float64) *RuleClassifier {
	if floor <= 0 {
		floor = 0.55
	}
	if epsilon <= 0 {
		epsilon = 0.05
	}
	return &RuleClassifier{floor: floor, epsilon: epsilon}
}

func (c *RuleClassifier) Classify(_ context.Context, utterance string, _ []string) (Prediction, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Prediction{Intent: IntentChat, Confidence: 1}, nil
	}

	scores := make(map[Intent]float64, len(ruleCues)+1)
	for in, cues := range ruleCues {
		for _, cu := range cues {
			if cu.pattern.MatchString(text) && cu.weight > scores[in] {
				scores[in] = cu.weight
			}
		}
	}
	// Chat is the default interpretation, not a scored one: it only carries
	// weight when no action cue fired at all.
	if len(scores) == 0 {
		scores[IntentChat] = 0.9
	}

	return Resolve(scores, c.floor, c.epsilon), nil
}
