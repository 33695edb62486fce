package todo

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore is a process-local item store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string][]Item
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string][]Item)}
}

func (s *InMemoryStore) SaveItem(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.items[item.UserID]
	for i := range arr {
		if arr[i].ID == item.ID {
			arr[i] = item
			return nil
		}
	}
	s.items[item.UserID] = append(arr, item)
	return nil
}

func (s *InMemoryStore) GetItem(_ context.Context, userID, itemID string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items[userID] {
		if item.ID == itemID {
			return item, nil
		}
	}
	return Item{}, ErrStoreNotFound
}

func (s *InMemoryStore) ListItems(_ context.Context, userID string, includeDone bool, limit int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.items[userID]
	out := make([]Item, 0, len(arr))
	for _, item := range arr {
		if !includeDone && item.Done {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteItem(_ context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.items[userID]
	for i := range arr {
		if arr[i].ID == itemID {
			s.items[userID] = append(arr[:i:i], arr[i+1:]...)
			return nil
		}
	}
	return ErrStoreNotFound
}

func (s *InMemoryStore) FindByContent(_ context.Context, userID, fragment string) ([]Item, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Item
	for _, item := range s.items[userID] {
		if strings.Contains(strings.ToLower(item.Content), fragment) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
