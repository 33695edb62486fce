package intent

import (
	"context"
	"errors"
)

// Intent is the closed set of action classes inferred from a user utterance.
type Intent string

const (
	IntentAdd      Intent = "add"
	IntentList     Intent = "list"
	IntentComplete Intent = "complete"
	IntentDelete   Intent = "delete"
	IntentUpdate   Intent = "update"
	IntentChat     Intent = "chat"
)

// ErrUnavailable marks transient backend failures (model down, rate limited).
// Callers may retry; all other classifier errors are terminal for the turn.
var ErrUnavailable = errors.New("intent backend unavailable")

// Prediction is a resolved intent with its confidence in [0,1].
type Prediction struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps an utterance plus a recent-history window onto an intent.
// Implementations must be deterministic for deterministic inputs.
type Classifier interface {
	Classify(ctx context.Context, utterance string, history []string) (Prediction, error)
}

// tieBreakOrder ranks intents when scores land within epsilon of each other.
// Destructive and terminal actions win so they are never silently downgraded
// to a weaker interpretation.
var tieBreakOrder = []Intent{
	IntentDelete,
	IntentComplete,
	IntentUpdate,
	IntentAdd,
	IntentList,
	IntentChat,
}

// Resolve picks the final prediction from raw per-intent scores. Scores within
// epsilon of the top candidate tie-break by fixed priority, and anything below
// the confidence floor collapses to chat so low-confidence actions never run.
func Resolve(scores map[Intent]float64, floor, epsilon float64) Prediction {
	best := Prediction{Intent: IntentChat}
	for _, candidate := range tieBreakOrder {
		score := scores[candidate]
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		// Iteration follows priority order, so the incumbent keeps ties
		// within epsilon and a later candidate must win outright.
		if score > best.Confidence+epsilon {
			best = Prediction{Intent: candidate, Confidence: score}
		}
	}
	if best.Intent != IntentChat && best.Confidence < floor {
		return Prediction{Intent: IntentChat, Confidence: best.Confidence}
	}
	return best
}

// Valid reports whether in names a member of the closed intent enumeration.
func Valid(in Intent) bool {
	switch in {
	case IntentAdd, IntentList, IntentComplete, IntentDelete, IntentUpdate, IntentChat:
		return true
	default:
		return false
	}
}
