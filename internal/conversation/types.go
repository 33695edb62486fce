package conversation

import (
	"time"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// Outcome records how a turn ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// RoutingDecision is the dispatch plan computed for one turn: which
// capability acts, with which resolved arguments.
type RoutingDecision struct {
	Intent            intent.Intent     `json:"intent"`
	Capability        string            `json:"capability"`
	Args              map[string]string `json:"args,omitempty"`
	NeedsConfirmation bool              `json:"needs_confirmation,omitempty"`
}

// Clone returns a deep copy so decisions stay value-like across components.
func (d RoutingDecision) Clone() RoutingDecision {
	out := d
	if d.Args != nil {
		out.Args = make(map[string]string, len(d.Args))
		for k, v := range d.Args {
			out.Args[k] = v
		}
	}
	return out
}

// Turn is the immutable record of a single inbound message's processing.
type Turn struct {
	Seq        int                  `json:"seq"`
	Input      string               `json:"input"`
	Intent     intent.Intent        `json:"intent"`
	Confidence float64              `json:"confidence"`
	Slots      map[string]slots.Slot `json:"slots,omitempty"`
	Routing    RoutingDecision      `json:"routing"`
	Outcome    Outcome              `json:"outcome"`
	Reply      string               `json:"reply"`
	Candidates []slots.Candidate    `json:"candidates,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// PendingClarification is a stalled RoutingDecision awaiting one or more
// slot values from the user. A conversation holds at most one.
type PendingClarification struct {
	Routing RoutingDecision `json:"routing"`
	// Confidence is the stalled prediction's confidence, carried so resumed
	// turns record the value the decision was actually made with.
	Confidence float64   `json:"confidence"`
	Missing    []string  `json:"missing"`
	Prompt     string    `json:"prompt"`
	AskedAt    time.Time `json:"asked_at"`
}

func (p *PendingClarification) Clone() *PendingClarification {
	if p == nil {
		return nil
	}
	out := *p
	out.Routing = p.Routing.Clone()
	if p.Missing != nil {
		out.Missing = append([]string(nil), p.Missing...)
	}
	return &out
}

// Conversation owns its append-only turn log. It is mutated only through the
// Store and never deleted by the core.
type Conversation struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Turns     []Turn                `json:"turns"`
	Pending   *PendingClarification `json:"pending,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Turns != nil {
		out.Turns = make([]Turn, len(c.Turns))
		copy(out.Turns, c.Turns)
	}
	out.Pending = c.Pending.Clone()
	return &out
}

// RecentTurns returns up to n most recent turns, oldest first.
func (c *Conversation) RecentTurns(n int) []Turn {
	if c == nil || n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	if n > len(c.Turns) {
		n = len(c.Turns)
	}
	out := make([]Turn, n)
	copy(out, c.Turns[len(c.Turns)-n:])
	return out
}
