package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flightbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestSQLiteStore_CreateAndGetConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	conv := domain.Conversation{ID: "conv-1", Title: "First chat", Provider: "deepseek", Model: "deepseek-chat"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.Title != "First chat" || got.Provider != "deepseek" || got.Model != "deepseek-chat" {
		t.Errorf("unexpected conversation: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be filled in")
	}
}

func TestSQLiteStore_GetConversation_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetConversation(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing conversation, got %+v", got)
	}
}

func TestSQLiteStore_CreateConversation_IgnoresDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1", Title: "Original"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1", Title: "Replacement"}); err != nil {
		t.Fatalf("duplicate create should not error: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Original" {
		t.Errorf("expected original title kept, got %q", got.Title)
	}
}

func TestSQLiteStore_AddAndGetMessages(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Add(-time.Minute)
	inputs := []domain.MessageRecord{
		{Role: "user", Content: "hello", CreatedAt: base},
		{Role: "assistant", Content: "hi there", CreatedAt: base.Add(time.Second)},
		{Role: "user", Content: "what time is it?", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, m := range inputs {
		if err := store.AddMessage(ctx, "conv-1", m); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	msgs, err := store.GetMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != inputs[i].Content || m.Role != inputs[i].Role {
			t.Errorf("message %d: got %q/%q, want %q/%q", i, m.Role, m.Content, inputs[i].Role, inputs[i].Content)
		}
		if m.ConversationID != "conv-1" {
			t.Errorf("message %d: unexpected conversation id %q", i, m.ConversationID)
		}
		if m.ID == 0 {
			t.Errorf("message %d: expected assigned row id", i)
		}
	}
}

func TestSQLiteStore_GetMessages_LimitKeepsNewest(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		msg := domain.MessageRecord{
			Role:      "user",
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AddMessage(ctx, "conv-1", msg); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := store.GetMessages(ctx, "conv-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Oldest two dropped, remainder chronological
	want := []string{"c", "d", "e"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d: got %q, want %q", i, m.Content, want[i])
		}
	}
}

func TestSQLiteStore_AddMessage_TouchesConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-24 * time.Hour)
	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMessage(ctx, "conv-1", domain.MessageRecord{Role: "user", Content: "ping"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.After(old) {
		t.Errorf("expected updated_at bumped past %v, got %v", old, got.UpdatedAt)
	}
}

func TestSQLiteStore_DeleteConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"one", "two"} {
		if err := store.AddMessage(ctx, "conv-1", domain.MessageRecord{Role: "user", Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected conversation gone, got %+v", got)
	}
	msgs, err := store.GetMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected messages gone, got %d", len(msgs))
	}
}

func TestSQLiteStore_ListConversations_NewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"conv-a", "conv-b", "conv-c"} {
		ts := now.Add(-time.Duration(2-i) * time.Hour)
		conv := domain.Conversation{ID: id, CreatedAt: ts, UpdatedAt: ts}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatal(err)
		}
	}

	convs, err := store.ListConversations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}
	if convs[0].ID != "conv-c" || convs[2].ID != "conv-a" {
		t.Errorf("unexpected order: %s, %s, %s", convs[0].ID, convs[1].ID, convs[2].ID)
	}

	limited, err := store.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 conversations with limit, got %d", len(limited))
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store, dbPath := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-old"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMessage(ctx, "conv-old", domain.MessageRecord{Role: "user", Content: "stale"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-new"}); err != nil {
		t.Fatal(err)
	}

	// Backdate the first conversation past the retention window
	raw, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000")
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	stale := time.Now().AddDate(0, 0, -120)
	if _, err := raw.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, stale, "conv-old"); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(ctx, 90)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 conversation pruned, got %d", removed)
	}

	gone, err := store.GetConversation(ctx, "conv-old")
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("expected stale conversation removed")
	}
	msgs, err := store.GetMessages(ctx, "conv-old", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected stale messages removed, got %d", len(msgs))
	}
	kept, err := store.GetConversation(ctx, "conv-new")
	if err != nil {
		t.Fatal(err)
	}
	if kept == nil {
		t.Error("expected recent conversation kept")
	}
}

func TestSQLiteStore_Prune_ZeroRetentionIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected no pruning with zero retention, got %d", removed)
	}
	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("expected conversation untouched")
	}
}

func TestNewSQLiteStore_CreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deep", "history.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected database file created: %v", err)
	}
}
