package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"chatppt_studio/generator"
)

type storeUnderTest interface {
	Store
	Catalog
}

func newSQLiteForTest(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storesForTest(t *testing.T) map[string]storeUnderTest {
	return map[string]storeUnderTest{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteForTest(t),
	}
}

func TestStore_GetCreatesOnMiss(t *testing.T) {
	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs, err := s.Get(ctx, "fresh")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(msgs) != 0 {
				t.Fatalf("expected empty history, got %d messages", len(msgs))
			}
			sessions, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(sessions) != 1 || sessions[0].ID != "fresh" {
				t.Errorf("expected session created on first access, got %+v", sessions)
			}
		})
	}
}

func TestStore_ClearKeepingLast(t *testing.T) {
	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Append(ctx, "s1",
				generator.UserMessage("intro to black holes"),
				generator.AssistantMessage("draft one"),
				generator.UserMessage("final deck"),
			)
			if err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if err := s.ClearKeepingLast(ctx, "s1"); err != nil {
				t.Fatalf("ClearKeepingLast failed: %v", err)
			}
			msgs, err := s.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("expected exactly 1 message, got %d", len(msgs))
			}
			if msgs[0] != generator.UserMessage("final deck") {
				t.Errorf("expected last message kept, got %+v", msgs[0])
			}

			// Truncating again keeps the same single message.
			if err := s.ClearKeepingLast(ctx, "s1"); err != nil {
				t.Fatalf("second ClearKeepingLast failed: %v", err)
			}
			msgs, _ = s.Get(ctx, "s1")
			if len(msgs) != 1 || msgs[0].Content != "final deck" {
				t.Errorf("expected idempotent truncation, got %+v", msgs)
			}
		})
	}
}

func TestStore_ClearKeepingLastOnEmpty(t *testing.T) {
	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.ClearKeepingLast(ctx, "never-seen"); err != nil {
				t.Fatalf("ClearKeepingLast on unknown session failed: %v", err)
			}
			if _, err := s.Get(ctx, "empty"); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if err := s.ClearKeepingLast(ctx, "empty"); err != nil {
				t.Fatalf("ClearKeepingLast on empty session failed: %v", err)
			}
			msgs, _ := s.Get(ctx, "empty")
			if len(msgs) != 0 {
				t.Errorf("expected empty history to stay empty, got %+v", msgs)
			}
			sessions, _ := s.List(ctx)
			found := false
			for _, info := range sessions {
				if info.ID == "empty" {
					found = true
				}
			}
			if !found {
				t.Error("empty session must not be discarded by truncation")
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Append(ctx, "gone", generator.UserMessage("x"))
			if err := s.Delete(ctx, "gone"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			sessions, _ := s.List(ctx)
			if len(sessions) != 0 {
				t.Errorf("expected no sessions, got %+v", sessions)
			}
		})
	}
}

func TestMemoryStore_ConcurrentSessions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", n)
			for j := 0; j < 50; j++ {
				s.Append(ctx, id, generator.UserMessage(fmt.Sprintf("m%d", j)))
				if j%10 == 9 {
					s.ClearKeepingLast(ctx, id)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		msgs, _ := s.Get(ctx, fmt.Sprintf("session-%d", i))
		if len(msgs) != 1 || msgs[0].Content != "m49" {
			t.Errorf("session-%d: expected [m49], got %+v", i, msgs)
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Append(ctx, "s", generator.UserMessage("original"))

	msgs, _ := s.Get(ctx, "s")
	msgs[0].Content = "mutated"

	again, _ := s.Get(ctx, "s")
	if again[0].Content != "original" {
		t.Errorf("Get must not expose internal state, got %q", again[0].Content)
	}
}
