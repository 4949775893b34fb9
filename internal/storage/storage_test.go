package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	sq, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "practice.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	all := map[string]Storage{
		"memory": NewMemory(),
		"sqlite": sq,
		"bolt":   bolt,
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})
	return all
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Missing key.
			_, err := s.Get(ctx, KeyUserStats)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Set(ctx, KeyUserStats, []byte(`{"totalPractices":1}`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, KeyUserStats)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `{"totalPractices":1}` {
				t.Errorf("unexpected value %q", got)
			}

			// Overwrite.
			if err := s.Set(ctx, KeyUserStats, []byte(`{}`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = s.Get(ctx, KeyUserStats)
			if string(got) != `{}` {
				t.Errorf("expected overwritten value, got %q", got)
			}

			if err := s.Remove(ctx, KeyUserStats); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, err := s.Get(ctx, KeyUserStats); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after remove, got %v", err)
			}

			// Removing an absent key is not an error.
			if err := s.Remove(ctx, "never-set"); err != nil {
				t.Errorf("Remove absent key: %v", err)
			}
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	if err := m.Set(ctx, "k", buf); err != nil {
		t.Fatalf("Set: %v", err)
	}
	buf[0] = 'x'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("expected stored copy 'abc', got %q", got)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := Open("redis", ""); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestOpenBoltRequiresPath(t *testing.T) {
	if _, err := OpenBolt("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	if err := m.Set(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
