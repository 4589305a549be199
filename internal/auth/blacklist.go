package auth

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked token ids (jti) until their original
// expiry, so a logged-out token stops validating immediately.
type TokenBlacklist interface {
	// Add blacklists jti until originalTokenExpTime.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted reports whether jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
