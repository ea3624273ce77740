package middleware

import "github.com/gin-gonic/gin"

// ResponseHeaders returns Gin middleware that sets the JSON API's security
// headers and advertises the server version.
func ResponseHeaders(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")

		if version != "" {
			c.Header("X-Tracksync-Version", version)
		}

		c.Next()
	}
}
