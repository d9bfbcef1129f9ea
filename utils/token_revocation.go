package utils

import (
	"context"
	"sync"
	"time"
)

const revokedKeyPrefix = "auth:revoked:"

var (
	revoked   = map[string]time.Time{}
	revokedMu sync.Mutex
)

// RevokeToken marks a session token as logged out until it would have expired anyway.
func RevokeToken(ctx context.Context, token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, revokedKeyPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	revokedMu.Lock()
	revoked[token] = expiresAt
	revokedMu.Unlock()
}

// IsTokenRevoked reports whether RevokeToken was called for token. Redis
// errors fail open.
func IsTokenRevoked(ctx context.Context, token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, revokedKeyPrefix+token).Result(); err == nil && n > 0 {
			return true
		}
	}

	now := time.Now()
	revokedMu.Lock()
	defer revokedMu.Unlock()
	for t, exp := range revoked {
		if now.After(exp) {
			delete(revoked, t)
		}
	}
	_, ok := revoked[token]
	return ok
}
