package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"voiceclick/internal/domain"
)

func openMemoryStore(t *testing.T, max int) *Store {
	t.Helper()
	store, err := Open(Options{MaxEntries: max})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecentReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t, 10)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		record := domain.HistoryRecord{Text: text, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Add(ctx, record); err != nil {
			t.Fatalf("add %q failed: %v", text, err)
		}
	}

	records, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Text != "third" || records[2].Text != "first" {
		t.Fatalf("unexpected order: %+v", records)
	}

	limited, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Text != "third" || limited[1].Text != "second" {
		t.Fatalf("unexpected limited records: %+v", limited)
	}
}

func TestStoreAssignsIDs(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t, 10)
	ctx := context.Background()
	if err := store.Add(ctx, domain.HistoryRecord{Text: "hello"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	records, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if _, err := uuid.Parse(records[0].ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", records[0].ID)
	}
	if records[0].CreatedAt.IsZero() {
		t.Fatalf("expected creation time to be filled")
	}
}

func TestStoreTrimsOldestBeyondMax(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t, 2)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"a", "b", "c", "d"} {
		if err := store.Add(ctx, domain.HistoryRecord{Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	records, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 2 || records[0].Text != "d" || records[1].Text != "c" {
		t.Fatalf("expected only the newest two records, got %+v", records)
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t, 10)
	ctx := context.Background()
	if err := store.Add(ctx, domain.HistoryRecord{Text: "gone soon"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	records, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %+v", records)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "history")
	ctx := context.Background()

	store, err := Open(Options{Path: dir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Add(ctx, domain.HistoryRecord{Text: "kept", Inserted: true}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(Options{Path: dir})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	records, err := reopened.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Text != "kept" || !records[0].Inserted {
		t.Fatalf("unexpected records after reopen: %+v", records)
	}
}

func TestStoreRespectsCanceledContext(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Add(ctx, domain.HistoryRecord{Text: "late"}); err == nil {
		t.Fatalf("expected canceled context to fail add")
	}
}
