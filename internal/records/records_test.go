package records

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/notes-bin/aigallery/internal/model"
)

func ptr(s string) *string { return &s }

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	full := &model.Image{
		UserID:       "u1",
		FilePath:     "u1/first.png",
		FileName:     "first.png",
		Description:  ptr("A red barn."),
		ColorPalette: []string{"#FF0000", "#FFFFFF"},
		Embedding:    []float32{0.1, 0.2, 0.3},
	}
	inserted, err := s.Insert(ctx, full)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted.ID == "" || inserted.CreatedAt.IsZero() {
		t.Fatalf("store should assign id and created_at: %+v", inserted)
	}

	time.Sleep(2 * time.Millisecond)
	bare := &model.Image{UserID: "u1", FilePath: "u1/second.png", FileName: "second.png", Description: ptr("Dusk.")}
	if _, err := s.Insert(ctx, bare); err != nil {
		t.Fatalf("insert without embedding: %v", err)
	}
	if _, err := s.Insert(ctx, &model.Image{UserID: "u2", FilePath: "u2/x.png", FileName: "x.png"}); err != nil {
		t.Fatalf("insert other user: %v", err)
	}

	if _, err := s.Insert(ctx, full); !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("expected ErrDuplicatePath, got %v", err)
	}

	got, err := s.FindByPath(ctx, "u1/first.png")
	if err != nil {
		t.Fatalf("find by path: %v", err)
	}
	if got.ID != inserted.ID || *got.Description != "A red barn." {
		t.Fatalf("unexpected record %+v", got)
	}
	if len(got.ColorPalette) != 2 || got.ColorPalette[0] != "#FF0000" {
		t.Fatalf("palette not preserved: %v", got.ColorPalette)
	}
	if len(got.Embedding) != 3 || got.Embedding[2] != 0.3 {
		t.Fatalf("embedding not preserved: %v", got.Embedding)
	}

	second, err := s.FindByPath(ctx, "u1/second.png")
	if err != nil {
		t.Fatalf("find second: %v", err)
	}
	if second.Embedding != nil || second.ColorPalette != nil {
		t.Fatalf("absent annotations should stay nil: %+v", second)
	}

	if _, err := s.FindByPath(ctx, "u1/nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if byID, err := s.Get(ctx, inserted.ID); err != nil || byID.FilePath != "u1/first.png" {
		t.Fatalf("get by id: %v %v", byID, err)
	}

	list, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records for u1, got %d", len(list))
	}
	if list[0].FilePath != "u1/second.png" {
		t.Fatalf("expected newest first, got %s", list[0].FilePath)
	}

	empty, err := s.ListByUser(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, newSQLite(t))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AIGALLERY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AIGALLERY_TEST_POSTGRES_DSN not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	if _, err := s.DB.Exec(ctx, `TRUNCATE images`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	storeContract(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
