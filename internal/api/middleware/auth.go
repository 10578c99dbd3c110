package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/utils"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyIsAdmin holds the key for admin status in Gin context.
	ContextKeyIsAdmin = "isAdmin"
	// ContextKeySession holds the verified *auth.Session.
	ContextKeySession = "session"
)

var errMalformedHeader = apperrors.New(apperrors.KindUnauthenticated, "malformed_header", "Authorization header format must be Bearer {token}")

// bearerToken extracts the token from the Authorization header. An absent
// header yields auth.ErrMissingToken.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errMalformedHeader
	}
	return parts[1], nil
}

func setSession(c *gin.Context, session *auth.Session) {
	c.Set(ContextKeyUserID, session.UserID)
	c.Set(ContextKeyIsAdmin, session.IsAdmin)
	c.Set(ContextKeySession, session)
}

func abortUnauthenticated(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "Invalid or missing session token",
		"code":  apperrors.CodeOf(err),
	})
}

// AuthMiddleware creates a Gin middleware for session token authentication.
func AuthMiddleware(sessions auth.ISessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}

		session, err := sessions.Verify(token)
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}

		setSession(c, session)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the session when a valid token is present
// and lets anonymous requests through. A bad token is still rejected.
func OptionalAuthMiddleware(sessions auth.ISessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == auth.ErrMissingToken {
			c.Next()
			return
		}
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}

		session, err := sessions.Verify(token)
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}

		setSession(c, session)
		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
// Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required", "code": "admin_required"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id, if any.
func UserID(c *gin.Context) (utils.SixID, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return utils.SixID{}, false
	}
	id, ok := v.(utils.SixID)
	return id, ok
}

// Session returns the verified session, or nil for anonymous requests.
func Session(c *gin.Context) *auth.Session {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return nil
	}
	session, _ := v.(*auth.Session)
	return session
}
