package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

func okHandler(message string) Handler {
	return HandlerFunc(func(_ context.Context, _ string, _ map[string]string) Result {
		return Success(message)
	})
}

func TestRegisterRejectsBadInput(t *testing.T) {
	r := New()

	if err := r.Register(intent.IntentChat, "chat", okHandler("x")); err == nil {
		t.Fatal("Register(chat) error = nil, want error")
	}
	if err := r.Register(intent.Intent("archive"), "archive", okHandler("x")); err == nil {
		t.Fatal("Register(archive) error = nil, want error")
	}
	if err := r.Register(intent.IntentAdd, "todo.add", nil); err == nil {
		t.Fatal("Register(nil handler) error = nil, want error")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	if err := r.Register(intent.IntentAdd, "todo.add", okHandler("x")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(intent.IntentAdd, "todo.add2", okHandler("x")); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestCapability(t *testing.T) {
	r := New()
	if err := r.Register(intent.IntentDelete, "todo.delete", okHandler("x")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, ok := r.Capability(intent.IntentDelete)
	if !ok || got != "todo.delete" {
		t.Fatalf("Capability() = %q, %v; want todo.delete, true", got, ok)
	}
	if _, ok := r.Capability(intent.IntentAdd); ok {
		t.Fatal("Capability(add) = true, want false for unregistered intent")
	}
}

func TestValidate(t *testing.T) {
	r := New()
	if err := r.Register(intent.IntentUpdate, "todo.update", okHandler("x")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.Validate(intent.IntentUpdate, map[string]string{slots.SlotItemReference: "i1"}); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	err := r.Validate(intent.IntentUpdate, map[string]string{slots.SlotContent: "new text"})
	if err == nil || !strings.Contains(err.Error(), slots.SlotItemReference) {
		t.Fatalf("Validate() error = %v, want missing itemReference", err)
	}
	err = r.Validate(intent.IntentUpdate, map[string]string{
		slots.SlotItemReference: "i1",
		"color":                 "blue",
	})
	if err == nil || !strings.Contains(err.Error(), "color") {
		t.Fatalf("Validate() error = %v, want undeclared argument rejection", err)
	}
	if err := r.Validate(intent.IntentAdd, nil); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Validate() error = %v, want ErrNoHandler", err)
	}
}

func TestDispatch(t *testing.T) {
	r := New()
	var gotUser string
	var gotArgs map[string]string
	err := r.Register(intent.IntentDelete, "todo.delete", HandlerFunc(
		func(_ context.Context, userID string, args map[string]string) Result {
			gotUser = userID
			gotArgs = args
			return Success("the item")
		}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := r.Dispatch(context.Background(), intent.IntentDelete, "u1", map[string]string{slots.SlotItemReference: "i1"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Kind != ResultSuccess || result.Message != "the item" {
		t.Fatalf("Dispatch() = %+v, want success", result)
	}
	if gotUser != "u1" || gotArgs[slots.SlotItemReference] != "i1" {
		t.Fatalf("handler saw user %q args %v", gotUser, gotArgs)
	}
}

func TestDispatchValidationFailureIsResultNotError(t *testing.T) {
	r := New()
	if err := r.Register(intent.IntentDelete, "todo.delete", okHandler("x")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := r.Dispatch(context.Background(), intent.IntentDelete, "u1", nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if result.Kind != ResultValidationError {
		t.Fatalf("Kind = %q, want validation_error", result.Kind)
	}
	if !strings.Contains(result.Reason, slots.SlotItemReference) {
		t.Fatalf("Reason = %q, want it to name the missing argument", result.Reason)
	}
}

func TestDispatchUnregisteredIntent(t *testing.T) {
	r := New()
	if _, err := r.Dispatch(context.Background(), intent.IntentList, "u1", nil); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Dispatch() error = %v, want ErrNoHandler", err)
	}
}

func TestDispatchContainsPanic(t *testing.T) {
	r := New()
	err := r.Register(intent.IntentList, "todo.list", HandlerFunc(
		func(_ context.Context, _ string, _ map[string]string) Result {
			panic("boom")
		}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := r.Dispatch(context.Background(), intent.IntentList, "u1", nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil after recovered panic", err)
	}
	if result.Kind != ResultValidationError {
		t.Fatalf("Kind = %q, want validation_error", result.Kind)
	}
	if !strings.Contains(result.Reason, "todo.list") {
		t.Fatalf("Reason = %q, want capability name", result.Reason)
	}
}
