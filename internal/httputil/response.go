// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// ErrorBody is the JSON shape of every error response. Detail carries the
// partial outcome of an operation that failed part way.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Detail    any    `json:"detail,omitempty"`
}

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	RespondErrorDetail(c, status, code, message, nil)
}

// RespondErrorDetail is RespondError with a detail payload.
func RespondErrorDetail(c *gin.Context, status int, code, message string, detail any) {
	body := ErrorBody{Code: code, Message: message, Detail: detail}

	if rid, exists := c.Get("request_id"); exists {
		if s, ok := rid.(string); ok {
			body.RequestID = s
		}
	}

	c.AbortWithStatusJSON(status, body)
}
