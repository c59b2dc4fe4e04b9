package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCallRecordRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCallRecordRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	first, err := domain.NewCallRecord("alice", "bob", domain.CallVideo, base)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, _ := domain.NewCallRecord("bob", "alice", domain.CallVoice, base.Add(time.Minute))
	if err := repo.Create(ctx, second); err != nil {
		t.Fatal(err)
	}
	other, _ := domain.NewCallRecord("carol", "dave", domain.CallVoice, base.Add(2*time.Minute))
	if err := repo.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	if err := first.Answer("bob", base.Add(5*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := first.End("alice", base.Add(65*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, first); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RecordEnded || got.Duration != 60 || got.Type != domain.CallVideo {
		t.Fatalf("got %+v", got)
	}
	if !got.CreatedAt.Equal(base) || got.AnsweredAt == nil || !got.AnsweredAt.Equal(base.Add(5*time.Second)) {
		t.Fatalf("timestamps %+v", got)
	}

	list, err := repo.ListForUser(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list %+v", list)
	}
	if list[0].AnsweredAt != nil || list[0].EndedAt != nil {
		t.Fatalf("unanswered record has timestamps %+v", list[0])
	}

	limited, err := repo.ListForUser(ctx, "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited list %d", len(limited))
	}
}

func TestCallRecordRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCallRecordRepository(openTestDB(t))

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get = %v", err)
	}
	rec := &domain.CallRecord{ID: "missing", Status: domain.RecordEnded}
	if err := repo.Update(ctx, rec); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update = %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.Conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("schema_migrations has %d rows", n)
	}
}
