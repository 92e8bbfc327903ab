package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("short", time.Hour, "")
	assert.Error(t, err)

	s, err := NewTokenService(testSecret, time.Hour, "japi")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestIssueAndVerify(t *testing.T) {
	s, err := NewTokenService(testSecret, time.Hour, "japi")
	require.NoError(t, err)

	token, err := s.Issue("u1", []string{"editor"})
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "japi", claims.Issuer)
	assert.Equal(t, []string{"editor"}, claims.Roles)
	require.NotNil(t, claims.ExpiresAt)

	p, err := s.Principal(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, p.HasRole("editor"))
	assert.False(t, p.HasRole("admin"))
}

func TestIssue_EmptySubject(t *testing.T) {
	s, err := NewTokenService(testSecret, time.Hour, "")
	require.NoError(t, err)
	_, err = s.Issue("", nil)
	assert.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	s, err := NewTokenService(testSecret, time.Hour, "japi")
	require.NoError(t, err)

	other, err := NewTokenService(strings.Repeat("x", 32), time.Hour, "japi")
	require.NoError(t, err)
	wrongSecret, err := other.Issue("u1", nil)
	require.NoError(t, err)

	otherIssuer, err := NewTokenService(testSecret, time.Hour, "someone-else")
	require.NoError(t, err)
	wrongIssuer, err := otherIssuer.Issue("u1", nil)
	require.NoError(t, err)

	expiredService, err := NewTokenService(testSecret, time.Minute, "japi")
	require.NoError(t, err)
	expiredService.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredService.Issue("u1", nil)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "japi"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"simple", "password123", false},
		{"empty", "", false},
		{"at limit", strings.Repeat("a", MaxPasswordLength), false},
		{"too long", strings.Repeat("a", MaxPasswordLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, CheckPassword(tt.password, hash))
			assert.False(t, CheckPassword(tt.password+"x", hash))
		})
	}
}

func TestCheckPassword_TooLong(t *testing.T) {
	stored := strings.Repeat("b", MaxPasswordLength)
	hash, err := HashPassword(stored)
	require.NoError(t, err)

	assert.True(t, CheckPassword(stored, hash))
	assert.False(t, CheckPassword(stored+"b", hash))
	assert.False(t, CheckPassword(stored+strings.Repeat("c", 100), hash))
	assert.False(t, CheckPassword(stored, "not-a-hash"))
}
