// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password is the plain-text password of every user made by CreateUser.
const Password = "secret-password"

// NewTestDatabase opens an in-memory SQLite database with the full schema.
// A single connection keeps the in-memory database alive and makes units of
// work run one at a time. It is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.Database {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := database.NewDatabase(gdb)
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test database: %v", err)
		}
	})

	return db
}

// CreateUser stores a user named name with the shared test Password.
func CreateUser(t *testing.T, db *database.Database, name string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &models.User{
		Username:     name,
		Email:        fmt.Sprintf("%s@example.com", name),
		PasswordHash: string(hash),
	}
	if err := db.SaveUser(context.Background(), user); err != nil {
		t.Fatalf("creating user %q: %v", name, err)
	}
	return user
}

// CreateUsers stores one user per name and returns their ids in order.
func CreateUsers(t *testing.T, db *database.Database, names ...string) []uuid.UUID {
	t.Helper()

	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = CreateUser(t, db, name).ID
	}
	return ids
}
