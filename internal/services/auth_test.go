package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaUnAkKS/fileshare/internal/models"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, newTestConfig(t))
	ctx := context.Background()

	user, err := svc.Register(ctx, models.UserCreate{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	// Email lookup is case-insensitive.
	got, err := svc.Authenticate(ctx, "ALICE@example.COM", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, newTestConfig(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, models.UserCreate{
		Username: "alice", Email: "alice@example.com", Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = svc.Register(ctx, models.UserCreate{
		Username: "alice2", Email: "ALICE@example.com", Password: "correct horse",
	})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegisterValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, newTestConfig(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		input models.UserCreate
		want  error
	}{
		{"short username", models.UserCreate{Username: "ab", Email: "a@example.com", Password: "password1"}, ErrInvalidUsername},
		{"long username", models.UserCreate{Username: strings.Repeat("x", 33), Email: "a@example.com", Password: "password1"}, ErrInvalidUsername},
		{"bad email", models.UserCreate{Username: "alice", Email: "not-an-email", Password: "password1"}, ErrInvalidEmail},
		{"short password", models.UserCreate{Username: "alice", Email: "a@example.com", Password: "short"}, ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
