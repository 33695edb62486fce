package policy

import (
	"strings"
	"testing"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

func TestNeedsConfirmation(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name       string
		in         intent.Intent
		confidence float64
		want       bool
	}{
		{"confident delete", intent.IntentDelete, 0.9, false},
		{"shaky delete", intent.IntentDelete, 0.6, true},
		{"shaky complete", intent.IntentComplete, 0.6, true},
		{"shaky update", intent.IntentUpdate, 0.6, true},
		{"shaky add is not destructive", intent.IntentAdd, 0.6, false},
		{"list never confirms", intent.IntentList, 0.1, false},
		{"exactly at threshold", intent.IntentDelete, 0.75, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsConfirmation(tt.in, tt.confidence, th); got != tt.want {
				t.Fatalf("NeedsConfirmation(%s, %v) = %v, want %v", tt.in, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestAcceptSlot(t *testing.T) {
	th := DefaultThresholds()
	if !AcceptSlot(slots.Slot{Confidence: 0.7}, th) {
		t.Fatal("AcceptSlot(0.7) = false, want true")
	}
	if !AcceptSlot(slots.Slot{Confidence: 0.5}, th) {
		t.Fatal("AcceptSlot(0.5) = false, want true at the floor")
	}
	if AcceptSlot(slots.Slot{Confidence: 0.4}, th) {
		t.Fatal("AcceptSlot(0.4) = true, want false")
	}
}

func TestSanitizeReason(t *testing.T) {
	tests := []struct {
		name    string
		reason  string
		changed bool
	}{
		{"plain reason untouched", `no item matches "socks"`, false},
		{"panic detail", "panic: runtime error: index out of range", true},
		{"source location", "failed at store/postgres.go:142", true},
		{"database detail", "pgx: connection refused to host db", true},
		{"credential", "request rejected, api_key=sk-123 invalid", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := SanitizeReason(tt.reason)
			if changed != tt.changed {
				t.Fatalf("SanitizeReason(%q) changed = %v, want %v", tt.reason, changed, tt.changed)
			}
			if !tt.changed && got != tt.reason {
				t.Fatalf("SanitizeReason(%q) = %q, want unchanged", tt.reason, got)
			}
			if tt.changed && !strings.Contains(got, "[internal]") {
				t.Fatalf("SanitizeReason(%q) = %q, want [internal] marker", tt.reason, got)
			}
		})
	}
}

func TestSanitizeReasonHidesSpecifics(t *testing.T) {
	got, _ := SanitizeReason("pgx: SQLSTATE 23505 duplicate key")
	if strings.Contains(strings.ToLower(got), "sqlstate") {
		t.Fatalf("SanitizeReason() = %q, backend detail leaked", got)
	}
}
