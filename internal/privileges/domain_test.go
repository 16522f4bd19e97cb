package privileges

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEffectiveAtBoundary(t *testing.T) {
	until := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grant := TemporaryPrivilege{IsActive: true, ValidUntil: until}

	require.True(t, grant.EffectiveAt(until.Add(-time.Second)))
	require.False(t, grant.EffectiveAt(until))
	require.False(t, grant.EffectiveAt(until.Add(time.Second)))

	grant.IsActive = false
	require.False(t, grant.EffectiveAt(until.Add(-time.Second)))
}

func TestStatusLabelPrecedence(t *testing.T) {
	until := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grant := TemporaryPrivilege{IsActive: true, ValidUntil: until}

	require.Equal(t, StatusActive, grant.StatusLabel(until.Add(-time.Hour)))
	require.Equal(t, StatusExpired, grant.StatusLabel(until))
	require.Equal(t, StatusExpired, grant.StatusLabel(until.Add(time.Hour)))

	grant.IsActive = false
	require.Equal(t, StatusRevoked, grant.StatusLabel(until.Add(-time.Hour)))
	require.Equal(t, StatusRevoked, grant.StatusLabel(until.Add(time.Hour)))
}
