// Package auth guards the /v1 routes with a single shared key.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	keyHeader = "X-API-Key"
	// Browsers cannot set headers on a WebSocket handshake.
	keyParam = "api_key"
)

// RequireKey rejects requests that do not carry key. Camera uploaders send it
// in X-API-Key; live dashboards pass it as ?api_key= when opening a socket.
// An empty key leaves the routes open, which is how local setups run.
func RequireKey(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(key)

	return func(c *gin.Context) {
		got, ok := requestKey(c)
		switch {
		case !ok:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
		default:
			c.Next()
		}
	}
}

func requestKey(c *gin.Context) (string, bool) {
	if k := c.GetHeader(keyHeader); k != "" {
		return k, true
	}
	if k, ok := c.GetQuery(keyParam); ok && k != "" {
		return k, true
	}
	return "", false
}
