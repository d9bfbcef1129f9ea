package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/betareaderbr/betareader/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the reader's e-mail inside Gin context.
	ContextEmailKey = "email"
	// ContextTokenKey stores the raw session token, used by logout.
	ContextTokenKey = "token"
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "session"
	// IdentityHeader optionally repeats the reader's e-mail next to the credential.
	IdentityHeader = "X-User-Email"
)

// AuthRequired ensures the request carries a valid session, either as a
// bearer token or as the session cookie.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := extractToken(ctx)
		if token == "" {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}
		if !authenticate(ctx, token) {
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// OptionalAuth attaches the reader when a valid session is present and lets
// anonymous requests through.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, _, _ := extractToken(ctx)
		if token == "" {
			ctx.Next()
			return
		}
		if claims, err := utils.ParseToken(token); err == nil && !utils.IsTokenRevoked(ctx.Request.Context(), token) {
			ctx.Set(ContextUserIDKey, claims.UserID)
			ctx.Set(ContextEmailKey, claims.Email)
		}
		ctx.Next()
	}
}

func extractToken(ctx *gin.Context) (string, int, string) {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", 40102, "invalid authorization header format"
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", 40103, "empty bearer token"
		}
		return token, 0, ""
	}
	if cookie, err := ctx.Cookie(SessionCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie), 0, ""
	}
	return "", 40101, "authorization missing"
}

func authenticate(ctx *gin.Context, token string) bool {
	if utils.IsTokenRevoked(ctx.Request.Context(), token) {
		utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
		return false
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return false
	}

	if email := strings.TrimSpace(ctx.GetHeader(IdentityHeader)); email != "" && !strings.EqualFold(email, claims.Email) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "identity mismatch")
		return false
	}

	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextEmailKey, claims.Email)
	ctx.Set(ContextTokenKey, token)
	return true
}
