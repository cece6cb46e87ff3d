package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stocklog/stocklog/internal/db"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "alice@example.com", "alice", "hash123", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected email 'alice@example.com', got %q", user.Email)
	}
	if user.IsAdmin {
		t.Error("expected non-admin user")
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected username 'alice', got %q", got.Username)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "dup@example.com", "first", "hash", false); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := CreateUser(ctx, database, "dup@example.com", "second", "hash", false)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "bob@example.com", "bob", "hash", true)

	user, err := GetUserByEmail(ctx, database, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if !user.IsAdmin {
		t.Error("expected admin flag to persist")
	}

	missing, err := GetUserByEmail(ctx, database, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a@example.com", "a", "hash", false)
	CreateUser(ctx, database, "b@example.com", "b", "hash", true)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "gone@example.com", "gone", "hash", false)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	// Soft-deleted users stay resolvable by ID for the change log.
	got, _ := GetUser(ctx, database, user.ID)
	if got == nil {
		t.Error("expected soft-deleted user to still be fetchable by ID")
	}

	// The freed email can be registered again.
	if _, err := CreateUser(ctx, database, "gone@example.com", "again", "hash", false); err != nil {
		t.Errorf("expected reuse of soft-deleted email, got %v", err)
	}
}

func TestUserMutationsNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := DeleteUser(ctx, database, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting missing user, got %v", err)
	}
	if err := UpdateUser(ctx, database, 404, "ghost", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing user, got %v", err)
	}
	if err := UpdateUserPassword(ctx, database, 404, "hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing user's password, got %v", err)
	}

	// A soft-deleted user is gone for mutation purposes too.
	user, _ := CreateUser(ctx, database, "twice@example.com", "twice", "hash", false)
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := DeleteUser(ctx, database, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting user twice, got %v", err)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pw@example.com", "pw", "oldhash", false)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
