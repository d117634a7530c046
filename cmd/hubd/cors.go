package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware applies the same origin allowlist used by the
// WebSocket upgrader to the plain HTTP surface (blob upload/download,
// /invoke), adapted from the teacher's cmd/main.go corsMiddleware: an
// empty allowedOrigins list allows any origin (development mode),
// otherwise only an exact Origin match is echoed back.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (len(allowed) == 0 || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
