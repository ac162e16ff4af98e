package server

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var (
	_ RunStore = (*MemoryStore)(nil)
	_ RunStore = (*SQLiteStore)(nil)
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storeImplementations(t *testing.T) map[string]RunStore {
	return map[string]RunStore{
		"memory": NewMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestRunStore_CRUD(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			for i, id := range []string{"run-1", "run-2", "run-3"} {
				rec := RunRecord{
					ID:           id,
					Source:       SourceNormalize,
					Instruction:  "call the weather api",
					Payload:      json.RawMessage(`{"nodes":[]}`),
					Result:       json.RawMessage(`{"flow":{}}`),
					NodeCount:    2 + i,
					WarningCount: i,
					CreatedAt:    base.Add(time.Duration(i) * time.Minute),
				}
				if err := s.Create(ctx, rec); err != nil {
					t.Fatalf("Create(%s): %v", id, err)
				}
			}

			if err := s.Create(ctx, RunRecord{ID: "run-1", Source: SourceNormalize, Result: json.RawMessage(`{}`)}); err == nil {
				t.Error("Create duplicate: expected error")
			}

			got, ok, err := s.Get(ctx, "run-2")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if got.NodeCount != 3 || got.WarningCount != 1 || got.Instruction != "call the weather api" {
				t.Errorf("Get: got %+v", got)
			}
			if !got.CreatedAt.Equal(base.Add(time.Minute)) {
				t.Errorf("CreatedAt = %v", got.CreatedAt)
			}
			if string(got.Result) != `{"flow":{}}` {
				t.Errorf("Result = %s", got.Result)
			}

			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get missing: ok=%v err=%v", ok, err)
			}

			list, err := s.List(ctx, 2)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 || list[0].ID != "run-3" || list[1].ID != "run-2" {
				t.Errorf("List(2) = %v", runIDs(list))
			}

			if err := s.Delete(ctx, "run-3"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "run-3"); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("Delete again: got %v, want ErrRunNotFound", err)
			}

			n, err := s.DeleteBefore(ctx, base.Add(30*time.Second))
			if err != nil || n != 1 {
				t.Fatalf("DeleteBefore: n=%d err=%v", n, err)
			}
			list, _ = s.List(ctx, 0)
			if len(list) != 1 || list[0].ID != "run-2" {
				t.Errorf("remaining = %v", runIDs(list))
			}
		})
	}
}

func TestSQLiteStore_SubSecondCutoff(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Create(ctx, RunRecord{ID: "a", Source: SourceNormalize, Result: json.RawMessage(`{}`), CreatedAt: at}); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, RunRecord{ID: "b", Source: SourceNormalize, Result: json.RawMessage(`{}`), CreatedAt: at.Add(500 * time.Millisecond)}); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteBefore(ctx, at.Add(250*time.Millisecond))
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore: n=%d err=%v", n, err)
	}
	if _, ok, _ := s.Get(ctx, "b"); !ok {
		t.Error("later run was pruned")
	}
}

func TestNewSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteStoreConfig{DSN: " "}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func runIDs(records []RunRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
