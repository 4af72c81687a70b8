package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	token := encodeCursor(at, "AbC-123_xyz")

	gotAt, gotID, err := decodeCursor(token)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, "AbC-123_xyz", gotID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	at, id, err := decodeCursor("")
	require.NoError(t, err)
	assert.True(t, at.IsZero())
	assert.Empty(t, id)
}

func TestDecodeCursorInvalid(t *testing.T) {
	for _, token := range []string{
		"not base64!!",
		"YWJj",          // no separator
		"fDEyMw",        // "|123": empty timestamp
		"MTcwMDAwMDAwfA", // "170000000|": empty id
		"eHx5",          // "x|y": non-numeric timestamp
	} {
		_, _, err := decodeCursor(token)
		assert.Error(t, err, "token %q", token)
	}
}
