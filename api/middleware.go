package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxUploadBytes bounds a single multipart request.
const MaxUploadBytes = 64 << 20

// BodyLimit caps request bodies so a runaway upload cannot exhaust memory.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			respondError(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Upload is too large.")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
