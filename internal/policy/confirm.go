package policy

import (
	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// Thresholds govern when the orchestrator asks the user before acting.
type Thresholds struct {
	// ConfirmDestructiveBelow marks destructive intents for confirmation when
	// classified below this confidence.
	ConfirmDestructiveBelow float64
	// SlotAcceptance is the floor below which an extracted slot is treated as
	// unresolved rather than trusted.
	SlotAcceptance float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ConfirmDestructiveBelow: 0.75,
		SlotAcceptance:          0.5,
	}
}

// destructive intents remove or irreversibly change user data.
func destructive(in intent.Intent) bool {
	switch in {
	case intent.IntentDelete, intent.IntentComplete, intent.IntentUpdate:
		return true
	default:
		return false
	}
}

// NeedsConfirmation reports whether a routing decision should pause for an
// explicit go-ahead before dispatch.
func NeedsConfirmation(in intent.Intent, confidence float64, t Thresholds) bool {
	return destructive(in) && confidence < t.ConfirmDestructiveBelow
}

// AcceptSlot reports whether an extracted slot is confident enough to use.
func AcceptSlot(s slots.Slot, t Thresholds) bool {
	return s.Confidence >= t.SlotAcceptance
}
