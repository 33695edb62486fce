package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
)

func TestGetOrCreate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	created, err := s.GetOrCreate(ctx, "u1", "")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("ID = empty, want generated id")
	}
	if created.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", created.UserID)
	}

	same, err := s.GetOrCreate(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if same.ID != created.ID {
		t.Fatalf("ID = %q, want %q", same.ID, created.ID)
	}

	// A conversation id from another user is indistinguishable from a
	// missing one.
	if _, err := s.GetOrCreate(ctx, "u2", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user GetOrCreate() error = %v, want ErrNotFound", err)
	}
}

func TestGetOrCreateWithUnknownIDCreates(t *testing.T) {
	s := NewInMemoryStore()
	conv, err := s.GetOrCreate(context.Background(), "u1", "pinned-id")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if conv.ID != "pinned-id" {
		t.Fatalf("ID = %q, want pinned-id", conv.ID)
	}
}

func TestAppendAssignsContiguousSeq(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, err := s.GetOrCreate(ctx, "u1", "")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		snapshot, err := s.Append(ctx, conv.ID, Turn{Input: "hello", Intent: intent.IntentChat})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		last := snapshot.Turns[len(snapshot.Turns)-1]
		if last.Seq != i+1 {
			t.Fatalf("Seq = %d, want %d", last.Seq, i+1)
		}
		if last.CreatedAt.IsZero() {
			t.Fatal("CreatedAt = zero, want stamped")
		}
	}
}

func TestAppendRejectsSeqConflict(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreate(ctx, "u1", "")

	if _, err := s.Append(ctx, conv.ID, Turn{Seq: 1, Input: "a"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := s.Append(ctx, conv.ID, Turn{Seq: 5, Input: "b"}); !errors.Is(err, ErrConflictSeq) {
		t.Fatalf("Append() error = %v, want ErrConflictSeq", err)
	}
	if _, err := s.Append(ctx, "missing", Turn{Input: "c"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Append() error = %v, want ErrNotFound", err)
	}
}

func TestSetPendingClarification(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreate(ctx, "u1", "")

	pending := &PendingClarification{
		Routing: RoutingDecision{Intent: intent.IntentDelete},
		Missing: []string{"itemReference"},
		Prompt:  "Which item do you mean?",
	}
	if err := s.SetPendingClarification(ctx, conv.ID, pending); err != nil {
		t.Fatalf("SetPendingClarification() error = %v", err)
	}
	got, err := s.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Pending == nil || got.Pending.Prompt != pending.Prompt {
		t.Fatalf("Pending = %+v, want stored clarification", got.Pending)
	}

	if err := s.SetPendingClarification(ctx, conv.ID, nil); err != nil {
		t.Fatalf("SetPendingClarification(nil) error = %v", err)
	}
	got, _ = s.Get(ctx, conv.ID)
	if got.Pending != nil {
		t.Fatalf("Pending = %+v, want cleared", got.Pending)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreate(ctx, "u1", "")
	if _, err := s.Append(ctx, conv.ID, Turn{Input: "a", Slots: nil}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	snapshot, _ := s.Get(ctx, conv.ID)
	snapshot.Turns[0].Input = "mutated"
	snapshot.UserID = "someone-else"

	fresh, _ := s.Get(ctx, conv.ID)
	if fresh.Turns[0].Input != "a" {
		t.Fatalf("Input = %q, stored state leaked through a snapshot", fresh.Turns[0].Input)
	}
	if fresh.UserID != "u1" {
		t.Fatalf("UserID = %q, stored state leaked through a snapshot", fresh.UserID)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreate(ctx, "u1", "")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Append(ctx, conv.ID, Turn{Input: "x"}); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, conv.ID)
	if len(got.Turns) != n {
		t.Fatalf("len(Turns) = %d, want %d", len(got.Turns), n)
	}
	for i, turn := range got.Turns {
		if turn.Seq != i+1 {
			t.Fatalf("Turns[%d].Seq = %d, want %d", i, turn.Seq, i+1)
		}
	}
}

func TestRecentTurns(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreate(ctx, "u1", "")
	inputs := []string{"one", "two", "three", "four"}
	for _, in := range inputs {
		if _, err := s.Append(ctx, conv.ID, Turn{Input: in}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, _ := s.Get(ctx, conv.ID)
	recent := got.RecentTurns(2)
	if len(recent) != 2 {
		t.Fatalf("len(RecentTurns(2)) = %d, want 2", len(recent))
	}
	if recent[0].Input != "three" || recent[1].Input != "four" {
		t.Fatalf("RecentTurns(2) = [%q, %q], want oldest-first tail", recent[0].Input, recent[1].Input)
	}
	if len(got.RecentTurns(10)) != len(inputs) {
		t.Fatalf("RecentTurns(10) = %d turns, want %d", len(got.RecentTurns(10)), len(inputs))
	}
}
