package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/tracksync/internal/httputil"
)

// MaxBodySize returns middleware that limits request body size. Requests that
// declare an oversized Content-Length are refused before the handler runs;
// the rest are capped while being read.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
