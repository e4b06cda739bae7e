package auth

import (
	"context"
	"errors"
	"testing"
)

// ===== Create =====

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testDB(t))

	u := &User{
		Username:     "alice",
		DisplayName:  "Alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$stub",
		Role:         RoleUser,
		IsActive:     true,
	}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(u.ID) != 12 || u.ID[:4] != "usr-" {
		t.Errorf("ID = %q, want usr-xxxxxxxx", u.ID)
	}

	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "alice" || byID.Email != "alice@example.com" || byID.Role != RoleUser || !byID.IsActive {
		t.Errorf("GetByID() = %+v", byID)
	}
	if !byID.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", byID.CreatedAt, u.CreatedAt)
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != u.ID {
		t.Errorf("GetByUsername().ID = %q, want %q", byName.ID, u.ID)
	}
}

func TestUserRepository_CreateValidation(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	tests := []struct {
		name string
		user User
	}{
		{"bad username", User{Username: "a b", PasswordHash: "h", Role: RoleUser}},
		{"bad role", User{Username: "bob", PasswordHash: "h", Role: "owner"}},
		{"no hash", User{Username: "bob", Role: RoleUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			if err := repo.Create(context.Background(), &u); !errors.Is(err, ErrInvalidUser) {
				t.Errorf("Create() error = %v, want ErrInvalidUser", err)
			}
		})
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	createTestUser(t, repo, "alice", "pw", RoleUser)

	dup := &User{Username: "alice", PasswordHash: "h", Role: RoleUser}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create() error = %v, want ErrUsernameExists", err)
	}
}

// ===== Queries =====

func TestUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testDB(t))

	if _, err := repo.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.SetActive(ctx, "usr-missing", false); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetActive() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testDB(t))

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("List() on empty table = %v, want empty slice", users)
	}

	createTestUser(t, repo, "bob", "pw", RoleUser)
	createTestUser(t, repo, "alice", "pw", RoleAdmin)

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("List() len = %d, want 2", len(users))
	}
	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v; want 2", n, err)
	}
}

func TestUserRepository_SetActive(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testDB(t))
	u := createTestUser(t, repo, "alice", "pw", RoleUser)

	if err := repo.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, u.ID)
	if got.IsActive {
		t.Error("IsActive = true after SetActive(false)")
	}
}
