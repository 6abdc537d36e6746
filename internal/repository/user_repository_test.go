package repository

import (
	"database/sql"
	"testing"
	"time"

	"medminder/internal/models"
)

func TestUserRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	tests := []struct {
		name        string
		user        *models.User
		expectError bool
	}{
		{
			name: "Valid user with email",
			user: &models.User{
				Username:     "testuser",
				PasswordHash: "hashedpassword123",
				Email:        sql.NullString{String: "test@example.com", Valid: true},
				IsActive:     true,
			},
			expectError: false,
		},
		{
			name: "Valid user without email",
			user: &models.User{
				Username:     "testuser2",
				PasswordHash: "hashedpassword456",
				IsActive:     true,
			},
			expectError: false,
		},
		{
			name: "Duplicate username",
			user: &models.User{
				Username:     "testuser",
				PasswordHash: "hashedpassword789",
				IsActive:     true,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(tt.user)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if tt.user.ID == "" {
				t.Error("Expected generated ID after creation")
			}

			// Verify user was created
			retrieved, err := repo.GetByID(tt.user.ID)
			if err != nil {
				t.Errorf("Failed to retrieve created user: %v", err)
				return
			}

			if retrieved.Username != tt.user.Username {
				t.Errorf("Expected username %s, got %s", tt.user.Username, retrieved.Username)
			}
		})
	}
}

func TestUserRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		Email:        sql.NullString{String: "test@example.com", Valid: true},
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	tests := []struct {
		name        string
		id          string
		expectError bool
	}{
		{
			name:        "Valid ID",
			id:          user.ID,
			expectError: false,
		},
		{
			name:        "Non-existent ID",
			id:          "does-not-exist",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrieved, err := repo.GetByID(tt.id)

			if tt.expectError {
				if err != ErrNotFound {
					t.Errorf("Expected ErrNotFound, got %v", err)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if retrieved.ID != tt.id {
				t.Errorf("Expected ID %s, got %s", tt.id, retrieved.ID)
			}
		})
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "TestUser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	tests := []struct {
		name        string
		username    string
		expectError bool
	}{
		{
			name:        "Exact match",
			username:    "TestUser",
			expectError: false,
		},
		{
			name:        "Case insensitive - lowercase",
			username:    "testuser",
			expectError: false,
		},
		{
			name:        "Case insensitive - uppercase",
			username:    "TESTUSER",
			expectError: false,
		},
		{
			name:        "Non-existent user",
			username:    "nonexistent",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrieved, err := repo.GetByUsername(tt.username)

			if tt.expectError {
				if err != ErrNotFound {
					t.Errorf("Expected ErrNotFound, got %v", err)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if retrieved.Username != user.Username {
				t.Errorf("Expected username %s, got %s", user.Username, retrieved.Username)
			}
		})
	}
}

func TestUserRepository_UpdateLastLogin(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// Update last login
	if err := repo.UpdateLastLogin(user.ID); err != nil {
		t.Fatalf("Failed to update last login: %v", err)
	}

	// Verify last login was updated
	retrieved, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve user: %v", err)
	}

	if !retrieved.LastLogin.Valid {
		t.Error("Expected LastLogin to be set")
	}

	if time.Since(retrieved.LastLogin.Time) > 5*time.Second {
		t.Error("LastLogin timestamp is too old")
	}
}

func TestUserRepository_FailedLoginAttempts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// Increment failed logins
	for i := 1; i <= 3; i++ {
		if err := repo.IncrementFailedLogins(user.ID); err != nil {
			t.Fatalf("Failed to increment failed logins: %v", err)
		}

		retrieved, err := repo.GetByID(user.ID)
		if err != nil {
			t.Fatalf("Failed to retrieve user: %v", err)
		}

		if retrieved.FailedLoginAttempts != i {
			t.Errorf("Expected %d failed attempts, got %d", i, retrieved.FailedLoginAttempts)
		}
	}

	// Reset failed logins
	if err := repo.ResetFailedLogins(user.ID); err != nil {
		t.Fatalf("Failed to reset failed logins: %v", err)
	}

	retrieved, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve user: %v", err)
	}

	if retrieved.FailedLoginAttempts != 0 {
		t.Errorf("Expected 0 failed attempts after reset, got %d", retrieved.FailedLoginAttempts)
	}
}

func TestUserRepository_LockAccount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// Lock account
	lockUntil := time.Now().Add(15 * time.Minute)
	if err := repo.LockAccount(user.ID, lockUntil); err != nil {
		t.Fatalf("Failed to lock account: %v", err)
	}

	// Check if account is locked
	isLocked, err := repo.IsAccountLocked(user.ID)
	if err != nil {
		t.Fatalf("Failed to check account lock: %v", err)
	}

	if !isLocked {
		t.Error("Expected account to be locked")
	}

	// Verify locked_until time
	retrieved, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve user: %v", err)
	}

	if !retrieved.LockedUntil.Valid {
		t.Error("Expected LockedUntil to be set")
	}

	if retrieved.LockedUntil.Time.Sub(lockUntil).Abs() > 1*time.Second {
		t.Error("LockedUntil time doesn't match expected value")
	}
}

func TestUserRepository_IsAccountLocked_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create test user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// Lock account with past time
	lockUntil := time.Now().Add(-1 * time.Hour)
	if err := repo.LockAccount(user.ID, lockUntil); err != nil {
		t.Fatalf("Failed to lock account: %v", err)
	}

	// Check if account is locked
	isLocked, err := repo.IsAccountLocked(user.ID)
	if err != nil {
		t.Fatalf("Failed to check account lock: %v", err)
	}

	if isLocked {
		t.Error("Expected account to NOT be locked (lock expired)")
	}
}

func TestUserRepository_Exists(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	exists, err := repo.Exists()
	if err != nil {
		t.Fatalf("Failed to check users: %v", err)
	}
	if exists {
		t.Error("Expected no users in a fresh database")
	}

	if err := repo.Create(&models.User{Username: "testuser", PasswordHash: "hash", IsActive: true}); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	exists, err = repo.Exists()
	if err != nil {
		t.Fatalf("Failed to check users: %v", err)
	}
	if !exists {
		t.Error("Expected a registered user")
	}
}

// Test concurrent operations
func TestUserRepository_ConcurrentOperations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db)

	// Create base user
	user := &models.User{
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		IsActive:     true,
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// Test concurrent reads
	const goroutines = 50
	done := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			_, err := repo.GetByID(user.ID)
			if err != nil {
				t.Errorf("Concurrent read failed: %v", err)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		<-done
	}
}
