package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	raw := []byte(`{"type":"client_message","conversation_id":"c1","text":"add buy milk","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.ConversationID != "c1" || msg.Text != "add buy milk" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.TSMs != 123 {
		t.Fatalf("TSMs = %d, want 123", msg.TSMs)
	}
}

func TestParseClientMessageAllowsMissingConversation(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_message","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.ConversationID != "" {
		t.Fatalf("ConversationID = %q, want empty", msg.ConversationID)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_message","text":"   "}`)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatal("expected envelope error")
	}
}
