package api

import (
	"github.com/gin-gonic/gin"
)

// SubmitOCR handles POST /api/ocr (multipart "file", optional "lang")
func (h *Handlers) SubmitOCR(c *gin.Context) {
	f, ok := formFile(c, "file")
	if !ok {
		return
	}
	op := h.server.Track(h.server.OCR().Submit(c.Request.Context(), f.Data, c.PostForm("lang")))
	RespondAccepted(c, op)
}
