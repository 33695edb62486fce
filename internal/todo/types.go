package todo

import (
	"context"
	"errors"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

var (
	ErrStoreNotFound = errors.New("todo item not found in store")
)

// Item is one todo record. Handlers own this store entirely; the
// orchestration core never reads or writes items directly.
type Item struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Content     string     `json:"content"`
	Priority    Priority   `json:"priority"`
	DueDate     string     `json:"due_date,omitempty"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store persists todo items per user.
type Store interface {
	SaveItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, userID, itemID string) (Item, error)
	ListItems(ctx context.Context, userID string, includeDone bool, limit int) ([]Item, error)
	DeleteItem(ctx context.Context, userID, itemID string) error
	// FindByContent returns the user's open or done items whose content
	// contains the fragment, oldest first.
	FindByContent(ctx context.Context, userID, fragment string) ([]Item, error)
	Close() error
}

// ParsePriority normalizes a priority argument, defaulting to normal.
func ParsePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(raw)
	default:
		return PriorityNormal
	}
}
