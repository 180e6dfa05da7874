package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/common/auth"
)

const (
	UserContextKey  = "userID"
	EmailContextKey = "userEmail"
)

// OptionalAuth attaches the caller's identity when a valid bearer token is
// present and lets anonymous requests through. A present but invalid token is
// treated as anonymous, so checkout still works for guests.
func OptionalAuth(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identify(c, parser); id != nil {
			setIdentity(c, id)
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identify(c, parser)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

func identify(c *gin.Context, parser *auth.TokenParser) *auth.Identity {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	id, err := parser.Identify(strings.TrimSpace(token))
	if err != nil {
		return nil
	}
	if _, err := uuid.Parse(id.UserID); err != nil {
		return nil
	}
	return id
}

func setIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(UserContextKey, id.UserID)
	c.Set(EmailContextKey, id.Email)
}

// GetUserID returns the authenticated user, if any.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString(UserContextKey)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func GetUserEmail(c *gin.Context) string {
	return c.GetString(EmailContextKey)
}
