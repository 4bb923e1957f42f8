package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taxfiler/internal/logging"
)

const (
	userIDContextKey    = "auth_user_id"
	authTokenContextKey = "auth_token"
	authSourceKey       = "auth_source"
)

// TokenSource records where the request's token came from. Only cookie
// sessions are subject to CSRF checks.
type TokenSource string

const (
	SourceBearer TokenSource = "bearer"
	SourceCookie TokenSource = "cookie"
)

// Middleware resolves the session token to a user id. Unknown or expired
// tokens get 401; store failures are logged and answered with a generic 500.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken, source := s.extractToken(c)
		if authToken == "" {
			abortUnauthorized(c)
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), authToken)
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenRequired), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
			abortUnauthorized(c)
			return
		default:
			logging.FromContext(c.Request.Context()).Error("validate auth token", "source", source, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, authToken)
		c.Set(authSourceKey, source)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	userID, ok := c.Value(userIDContextKey).(int64)
	return userID, ok
}

// AuthTokenFromContext retrieves the token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	token, ok := c.Value(authTokenContextKey).(string)
	return token, ok && token != ""
}

// SourceFromContext reports how the request authenticated.
func SourceFromContext(c *gin.Context) (TokenSource, bool) {
	source, ok := c.Value(authSourceKey).(TokenSource)
	return source, ok
}

// extractToken prefers an explicit bearer header over the session cookie.
func (s *Service) extractToken(c *gin.Context) (string, TokenSource) {
	if token, ok := bearerToken(c.GetHeader(s.headerName)); ok {
		return token, SourceBearer
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token, SourceCookie
	}
	return "", ""
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
