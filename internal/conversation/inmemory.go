package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps conversations in a process-local map. It is safe for
// concurrent access and suits tests and single-node deployments.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, userID, conversationID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID != "" {
		if c, ok := s.conversations[conversationID]; ok {
			if c.UserID != userID {
				return nil, ErrNotFound
			}
			return c.Clone(), nil
		}
	}

	now := time.Now().UTC()
	c := &Conversation{
		ID:        conversationID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.conversations[c.ID] = c
	return c.Clone(), nil
}

func (s *InMemoryStore) Get(_ context.Context, conversationID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, turn Turn) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	next := len(c.Turns) + 1
	if turn.Seq == 0 {
		turn.Seq = next
	} else if turn.Seq != next {
		return nil, ErrConflictSeq
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	c.Turns = append(c.Turns, turn)
	c.UpdatedAt = turn.CreatedAt
	return c.Clone(), nil
}

func (s *InMemoryStore) SetPendingClarification(_ context.Context, conversationID string, pending *PendingClarification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Pending = pending.Clone()
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
