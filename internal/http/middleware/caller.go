package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller's directory user id. Authentication happens
// upstream of this service; the header is trusted as-is.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// Caller copies X-User-ID into the Gin context so rate limiting, logging and
// idempotency can key on it.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			c.Set(ctxKeyUserID, id)
		}
		c.Next()
	}
}

// CallerID returns the caller id stored by Caller, or "".
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
