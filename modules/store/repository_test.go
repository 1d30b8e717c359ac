package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/realtime-chat/domain/chat"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&chat.User{},
		&chat.Channel{},
		&chat.ChannelMember{},
		&chat.Message{},
		&chat.UserPresence{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	fixtures := []any{
		&chat.User{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"},
		&chat.User{ID: "u2", Email: "bob@example.com"},
		&chat.Channel{ID: "general", Name: "General", CreatedAt: time.Now()},
		&chat.Channel{ID: "random", Name: "Random", CreatedAt: time.Now()},
		&chat.ChannelMember{ID: "m1", ChannelID: "general", UserID: "u1", Role: chat.RoleAdmin, JoinedAt: time.Now().Add(-time.Hour)},
		&chat.ChannelMember{ID: "m2", ChannelID: "random", UserID: "u1", Role: chat.RoleMember, JoinedAt: time.Now()},
		&chat.ChannelMember{ID: "m3", ChannelID: "general", UserID: "u2", Role: chat.RoleMember, JoinedAt: time.Now()},
	}
	for _, f := range fixtures {
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("failed to seed fixture %T: %v", f, err)
		}
	}
}

func TestRepository_CreateMessage(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)

	before := time.Now().UTC()
	msg, err := repo.CreateMessage(context.Background(), "general", "u1", "hello")
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if msg.ID == "" {
		t.Error("expected a server-assigned message id")
	}
	if msg.SentAt.Before(before) {
		t.Errorf("expected server-assigned sent_at >= %v, got %v", before, msg.SentAt)
	}

	var found chat.Message
	if err := db.First(&found, "id = ?", msg.ID).Error; err != nil {
		t.Fatalf("failed to find created message: %v", err)
	}
	if found.Content != "hello" {
		t.Errorf("expected content %q, got %q", "hello", found.Content)
	}
	if found.SenderID != "u1" {
		t.Errorf("expected sender %q, got %q", "u1", found.SenderID)
	}
}

func TestRepository_ChannelIDsOf(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)

	ids, err := repo.ChannelIDsOf(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ChannelIDsOf() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(ids))
	}
	// Ordered by join time: general was joined an hour before random.
	if ids[0] != "general" || ids[1] != "random" {
		t.Errorf("expected [general random], got %v", ids)
	}

	ids, err = repo.ChannelIDsOf(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ChannelIDsOf() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no channels for unknown user, got %v", ids)
	}
}

func TestRepository_IsMember(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	member, err := repo.IsMember(ctx, "u2", "general")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if !member {
		t.Error("expected u2 to be a member of general")
	}

	member, err = repo.IsMember(ctx, "u2", "random")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if member {
		t.Error("expected u2 not to be a member of random")
	}

	_, err = repo.IsMember(ctx, "u1", "missing")
	if !errors.Is(err, chat.ErrChannelNotFound) {
		t.Errorf("expected ErrChannelNotFound for missing channel, got %v", err)
	}
}

func TestRepository_IsAdmin(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	admin, err := repo.IsAdmin(ctx, "u1", "general")
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if !admin {
		t.Error("expected u1 to be an admin of general")
	}

	admin, err = repo.IsAdmin(ctx, "u2", "general")
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if admin {
		t.Error("expected u2 not to be an admin of general")
	}

	admin, err = repo.IsAdmin(ctx, "u1", "missing")
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if admin {
		t.Error("expected no admin role in a missing channel")
	}
}

func TestRepository_UserByID(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)

	user, err := repo.UserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserByID() error = %v", err)
	}
	if user.Name() != "Alice" {
		t.Errorf("expected display name, got %q", user.Name())
	}

	user, err = repo.UserByID(context.Background(), "u2")
	if err != nil {
		t.Fatalf("UserByID() error = %v", err)
	}
	if user.Name() != "bob@example.com" {
		t.Errorf("expected email fallback, got %q", user.Name())
	}

	_, err = repo.UserByID(context.Background(), "missing")
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRepository_UpsertPresence(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if _, err := repo.UpsertPresence(ctx, "u1", chat.StatusOnline, first); err != nil {
		t.Fatalf("UpsertPresence() error = %v", err)
	}

	second := first.Add(time.Hour)
	if _, err := repo.UpsertPresence(ctx, "u1", chat.StatusOffline, second); err != nil {
		t.Fatalf("UpsertPresence() update error = %v", err)
	}

	// One row per user, holding the latest state.
	var count int64
	if err := db.Model(&chat.UserPresence{}).Where("user_id = ?", "u1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count presence rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected a single presence row, got %d", count)
	}

	record, err := repo.Presence(ctx, "u1")
	if err != nil {
		t.Fatalf("Presence() error = %v", err)
	}
	if record.Status != chat.StatusOffline {
		t.Errorf("expected status %q, got %q", chat.StatusOffline, record.Status)
	}
	if !record.LastSeenAt.Equal(second) {
		t.Errorf("expected last seen %v, got %v", second, record.LastSeenAt)
	}

	_, err = repo.Presence(ctx, "missing")
	if !errors.Is(err, chat.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
