package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/config"
)

var testAuthCfg = config.AuthConfig{
	JWTSecretKey: "test-secret",
	JWTExpiry:    time.Hour,
}

// stubBlacklist is an in-memory TokenBlacklist for tests.
type stubBlacklist struct {
	revoked map[string]bool
	err     error
}

func (s *stubBlacklist) Add(ctx context.Context, jti string, exp time.Time) error {
	if s.revoked == nil {
		s.revoked = make(map[string]bool)
	}
	s.revoked[jti] = true
	return s.err
}

func (s *stubBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.revoked[jti], nil
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("user-1", "Alice", testAuthCfg)
	require.NoError(t, err)

	claims, err := ValidateToken(context.Background(), token, testAuthCfg.JWTSecretKey, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
}

func TestValidateTokenWrongKey(t *testing.T) {
	token, err := GenerateToken("user-1", "Alice", testAuthCfg)
	require.NoError(t, err)

	_, err = ValidateToken(context.Background(), token, "other-secret", nil)
	assert.Error(t, err)
}

func TestValidateTokenRevoked(t *testing.T) {
	token, err := GenerateToken("user-1", "Alice", testAuthCfg)
	require.NoError(t, err)

	claims, err := ValidateToken(context.Background(), token, testAuthCfg.JWTSecretKey, nil)
	require.NoError(t, err)

	bl := &stubBlacklist{}
	require.NoError(t, bl.Add(context.Background(), claims.ID, claims.ExpiresAt.Time))

	_, err = ValidateToken(context.Background(), token, testAuthCfg.JWTSecretKey, bl)
	assert.Error(t, err)
}

func TestValidateTokenBlacklistUnreachableFailsClosed(t *testing.T) {
	token, err := GenerateToken("user-1", "Alice", testAuthCfg)
	require.NoError(t, err)

	bl := &stubBlacklist{err: errors.New("redis down")}
	_, err = ValidateToken(context.Background(), token, testAuthCfg.JWTSecretKey, bl)
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
