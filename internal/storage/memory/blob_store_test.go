package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "reports/scraped_1.json", "application/json", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://reports/scraped_1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Object("reports/scraped_1.json")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreRefusesOverwrite(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	if _, err := store.PutObject(ctx, "a.json", "application/json", []byte("1")); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	_, err := store.PutObject(ctx, "a.json", "application/json", []byte("2"))
	if !errors.Is(err, crawler.ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
	stored, _ := store.Object("a.json")
	if string(stored) != "1" {
		t.Fatalf("object was overwritten: %q", stored)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "a.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
}
