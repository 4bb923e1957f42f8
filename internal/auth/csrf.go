package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CSRFMiddleware enforces the double-submit check on state-changing requests
// that authenticated with the session cookie. It must run after Middleware.
func (s *Service) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if source, ok := SourceFromContext(c); ok && source == SourceBearer {
			c.Next()
			return
		}
		if !s.csrfMatches(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

func (s *Service) csrfMatches(c *gin.Context) bool {
	header := c.GetHeader(s.csrfHeaderName)
	cookie, err := c.Cookie(s.csrfCookieName)
	if err != nil || header == "" || cookie == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) == 1
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
