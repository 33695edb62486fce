package conversation

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("conversation not found")
	ErrConflictSeq = errors.New("turn sequence conflict")
)

// Store persists conversations and their append-only turn logs. A
// conversation with no prior turns is created implicitly on first access.
type Store interface {
	// GetOrCreate loads the conversation, creating it when conversationID is
	// empty or unknown. A conversation owned by a different user is not found.
	GetOrCreate(ctx context.Context, userID, conversationID string) (*Conversation, error)
	Get(ctx context.Context, conversationID string) (*Conversation, error)
	// Append adds the turn (assigning the next sequence number when unset)
	// and returns the updated snapshot.
	Append(ctx context.Context, conversationID string, turn Turn) (*Conversation, error)
	SetPendingClarification(ctx context.Context, conversationID string, pending *PendingClarification) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
