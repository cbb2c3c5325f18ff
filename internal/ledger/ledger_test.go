package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/hubd/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestMarkOnce_FirstWriterWins(t *testing.T) {
	l := openLedger(t)

	first, err := l.MarkOnce(EventWakeDismissed, "wake/2026-10-17", "test", nil)
	if err != nil {
		t.Fatalf("MarkOnce() error = %v", err)
	}
	if !first {
		t.Fatal("first MarkOnce should record the entry")
	}

	second, err := l.MarkOnce(EventWakeDismissed, "wake/2026-10-17", "test", nil)
	if err != nil {
		t.Fatalf("MarkOnce() error = %v", err)
	}
	if second {
		t.Error("second MarkOnce with the same key should be ignored")
	}

	if !l.Has(EventWakeDismissed, "wake/2026-10-17") {
		t.Error("Has() = false after MarkOnce")
	}
	if l.Has(EventWakeStarted, "wake/2026-10-17") {
		t.Error("keys are scoped by event type")
	}
}

func TestMarkOnce_EmptyKey(t *testing.T) {
	l := openLedger(t)
	if _, err := l.MarkOnce(EventScheduleFired, "", "test", nil); err == nil {
		t.Error("expected error for empty idempotency key")
	}
}

func TestAppend_AllowsDuplicates(t *testing.T) {
	l := openLedger(t)
	corr := NewCorrelationID()

	for i := 0; i < 3; i++ {
		if err := l.AppendCorrelated(EventDisarmRejected, "hall", corr, map[string]any{"reason": "invalid_nonce"}); err != nil {
			t.Fatalf("AppendCorrelated() error = %v", err)
		}
	}

	entries, err := l.GetByType(EventDisarmRejected, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].CorrelationID != corr {
		t.Errorf("CorrelationID = %q, want %q", entries[0].CorrelationID, corr)
	}
	if entries[0].Payload["reason"] != "invalid_nonce" {
		t.Errorf("Payload reason = %v", entries[0].Payload["reason"])
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	past := time.Now().Add(-48 * time.Hour)
	l.now = func() time.Time { return past }
	if err := l.Append(EventSecurityChanged, "test", nil); err != nil {
		t.Fatal(err)
	}
	l.now = time.Now
	if err := l.Append(EventSecurityChanged, "test", nil); err != nil {
		t.Fatal(err)
	}

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
