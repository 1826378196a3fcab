package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceToken_RoundTrip(t *testing.T) {
	mgr := NewServiceAuthManager("service-secret")

	token, err := mgr.GenerateServiceToken("attendance", []string{ScopeTrackActions}, time.Hour)
	require.NoError(t, err)

	tok, err := mgr.ValidateServiceToken(token)
	require.NoError(t, err)
	assert.Equal(t, "attendance", tok.Sub)
	assert.True(t, tok.HasScope(ScopeTrackActions))
	assert.False(t, tok.HasScope("actions:admin"))
	assert.NotEmpty(t, tok.Jti)
}

func TestServiceToken_Rejects(t *testing.T) {
	mgr := NewServiceAuthManager("service-secret")
	good, err := mgr.GenerateServiceToken("documents", []string{ScopeTrackActions}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"no separator", "abc", "format"},
		{"bad signature", good[:len(good)-2] + "xx", "signature"},
		{"other secret", mustServiceToken(t, NewServiceAuthManager("other")), "invalid signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.ValidateServiceToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServiceToken_Expired(t *testing.T) {
	mgr := NewServiceAuthManager("service-secret")
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return base }

	token, err := mgr.GenerateServiceToken("events", []string{ScopeTrackActions}, time.Minute)
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = mgr.ValidateServiceToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestServiceToken_ModuleRequired(t *testing.T) {
	_, err := NewServiceAuthManager("s").GenerateServiceToken("", nil, time.Hour)
	assert.Error(t, err)
}

func mustServiceToken(t *testing.T, mgr *ServiceAuthManager) string {
	t.Helper()
	token, err := mgr.GenerateServiceToken("attendance", []string{ScopeTrackActions}, time.Hour)
	require.NoError(t, err)
	return token
}
