package rag

import (
	"context"
	"errors"
	"testing"

	"pdf-rag/internal/config"
)

func TestManagerSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewManager(config.Default(), newFakeProviders(), MemoryStoreFactory())
	t.Cleanup(func() { _ = m.Close() })

	a, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	b, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatalf("sessions share an id")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Len())
	}

	if _, err := a.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := b.Document(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("a document leaked into another session: %v", err)
	}

	got, err := m.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get returned %v, %v", got, err)
	}
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	m := NewManager(config.Default(), newFakeProviders(), MemoryStoreFactory())

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := m.Delete(s.ID()); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Delete(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
