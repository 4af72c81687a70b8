package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/models"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Security: config.SecurityConfig{
			SecretKey:  strings.Repeat("k", 32),
			BcryptCost: bcrypt.MinCost,
		},
		Upload: config.UploadConfig{
			Path:       t.TempDir(),
			MaxSize:    10 << 20,
			PublicRoot: "/uploads",
		},
		Share: config.ShareConfig{
			UnlockTTL:        time.Hour,
			UnlockRatePerMin: 600,
			UnlockBurst:      100,
			DefaultListLimit: 20,
			MaxListLimit:     100,
		},
	}
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

var testUserSeq int

func createTestUser(t *testing.T, db *database.DB) *models.User {
	t.Helper()

	testUserSeq++
	now := time.Now().UTC()
	user := &models.User{
		Username:     fmt.Sprintf("user%d", testUserSeq),
		Email:        fmt.Sprintf("user%d@example.com", testUserSeq),
		PasswordHash: "x",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func createTestFile(t *testing.T, db *database.DB, ownerID int64, name string, uploadedAt time.Time) *models.File {
	t.Helper()

	id, err := newID()
	require.NoError(t, err)

	file := &models.File{
		ID:               id,
		OwnerID:          ownerID,
		OriginalFilename: name,
		ContentType:      "application/octet-stream",
		FileSize:         int64(len(name)),
		StorageKey:       "blob-" + id,
		UploadedAt:       uploadedAt.UTC(),
	}
	require.NoError(t, db.CreateFile(context.Background(), file))
	return file
}
