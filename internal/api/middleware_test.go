package api

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaUnAkKS/fileshare/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	secret := strings.Repeat("s", 32)
	user := &models.User{ID: 42, Username: "alice", Email: "alice@example.com"}

	token, err := GenerateJWT(user, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Subject)
}

func TestJWTWrongSecret(t *testing.T) {
	user := &models.User{ID: 42}

	token, err := GenerateJWT(user, strings.Repeat("a", 32), time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, strings.Repeat("b", 32))
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	secret := strings.Repeat("s", 32)
	user := &models.User{ID: 42}

	token, err := GenerateJWT(user, secret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, secret)
	assert.Error(t, err)
}

func TestAuthRateLimiter(t *testing.T) {
	rl := newAuthRateLimiter(3, time.Minute)

	assert.True(t, rl.check("10.0.0.1"))
	for i := 0; i < 3; i++ {
		rl.recordFailure("10.0.0.1")
	}
	assert.False(t, rl.check("10.0.0.1"))

	// Other clients are unaffected.
	assert.True(t, rl.check("10.0.0.2"))
}
