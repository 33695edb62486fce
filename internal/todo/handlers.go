package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/registry"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// Handlers implements the task-handler capabilities over a todo store. All
// item storage stays behind this boundary; the orchestration core reaches it
// only through registry dispatch.
type Handlers struct {
	store Store
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Register binds every capability to its intent in the registry.
func (h *Handlers) Register(r *registry.Registry) error {
	bindings := []struct {
		in         intent.Intent
		capability string
		fn         registry.HandlerFunc
	}{
		{intent.IntentAdd, "todo.add", h.Add},
		{intent.IntentList, "todo.list", h.List},
		{intent.IntentComplete, "todo.complete", h.Complete},
		{intent.IntentDelete, "todo.delete", h.Delete},
		{intent.IntentUpdate, "todo.update", h.Update},
	}
	for _, b := range bindings {
		if err := r.Register(b.in, b.capability, b.fn); err != nil {
			return fmt.Errorf("register %s: %w", b.capability, err)
		}
	}
	return nil
}

func (h *Handlers) Add(ctx context.Context, userID string, args map[string]string) registry.Result {
	content := strings.TrimSpace(args[slots.SlotContent])
	if content == "" {
		return registry.ValidationError("the task text is empty")
	}

	now := time.Now().UTC()
	item := Item{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Priority:  ParsePriority(args[slots.SlotPriority]),
		DueDate:   strings.TrimSpace(args[slots.SlotDueDate]),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.SaveItem(ctx, item); err != nil {
		return registry.ValidationError("saving the item failed, please try again")
	}
	return registry.Success(fmt.Sprintf("%q", item.Content))
}

func (h *Handlers) List(ctx context.Context, userID string, _ map[string]string) registry.Result {
	items, err := h.store.ListItems(ctx, userID, false, 50)
	if err != nil {
		return registry.ValidationError("loading your list failed, please try again")
	}
	candidates := make([]slots.Candidate, 0, len(items))
	for _, item := range items {
		label := item.Content
		if item.DueDate != "" {
			label += " (due " + item.DueDate + ")"
		}
		candidates = append(candidates, slots.Candidate{ID: item.ID, Label: label})
	}
	return registry.SuccessItems(fmt.Sprintf("%d open item(s)", len(candidates)), candidates)
}

func (h *Handlers) Complete(ctx context.Context, userID string, args map[string]string) registry.Result {
	item, res := h.resolveItem(ctx, userID, args[slots.SlotItemReference])
	if res != nil {
		return *res
	}
	if item.Done {
		return registry.Conflict(fmt.Sprintf("%q is already completed", item.Content))
	}

	now := time.Now().UTC()
	item.Done = true
	item.UpdatedAt = now
	item.CompletedAt = &now
	if err := h.store.SaveItem(ctx, item); err != nil {
		return registry.ValidationError("saving the item failed, please try again")
	}
	return registry.Success(fmt.Sprintf("%q", item.Content))
}

func (h *Handlers) Delete(ctx context.Context, userID string, args map[string]string) registry.Result {
	item, res := h.resolveItem(ctx, userID, args[slots.SlotItemReference])
	if res != nil {
		return *res
	}
	if err := h.store.DeleteItem(ctx, userID, item.ID); err != nil {
		if err == ErrStoreNotFound {
			return registry.NotFound(fmt.Sprintf("%q no longer exists", item.Content))
		}
		return registry.ValidationError("deleting the item failed, please try again")
	}
	return registry.Success(fmt.Sprintf("%q", item.Content))
}

func (h *Handlers) Update(ctx context.Context, userID string, args map[string]string) registry.Result {
	item, res := h.resolveItem(ctx, userID, args[slots.SlotItemReference])
	if res != nil {
		return *res
	}

	changed := false
	if content := strings.TrimSpace(args[slots.SlotContent]); content != "" {
		item.Content = content
		changed = true
	}
	if due := strings.TrimSpace(args[slots.SlotDueDate]); due != "" {
		item.DueDate = due
		changed = true
	}
	if priority := strings.TrimSpace(args[slots.SlotPriority]); priority != "" {
		item.Priority = ParsePriority(priority)
		changed = true
	}
	if !changed {
		return registry.ValidationError("nothing to change; give me new text, a due date, or a priority")
	}

	item.UpdatedAt = time.Now().UTC()
	if err := h.store.SaveItem(ctx, item); err != nil {
		return registry.ValidationError("saving the item failed, please try again")
	}
	return registry.Success(fmt.Sprintf("%q", item.Content))
}

// resolveItem turns an itemReference argument (item id or content fragment)
// into a concrete item. The failure result, when non-nil, goes straight back
// to the orchestrator.
func (h *Handlers) resolveItem(ctx context.Context, userID, reference string) (Item, *registry.Result) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		res := registry.ValidationError("no item reference given")
		return Item{}, &res
	}

	if item, err := h.store.GetItem(ctx, userID, reference); err == nil {
		return item, nil
	}

	matches, err := h.store.FindByContent(ctx, userID, reference)
	if err != nil {
		res := registry.ValidationError("looking up the item failed, please try again")
		return Item{}, &res
	}
	switch len(matches) {
	case 0:
		res := registry.NotFound(fmt.Sprintf("no item matches %q", reference))
		return Item{}, &res
	case 1:
		return matches[0], nil
	default:
		res := registry.Conflict(fmt.Sprintf("%d items match %q, please be more specific", len(matches), reference))
		return Item{}, &res
	}
}
