package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/tools/pdf"
)

// GetPDFImages handles GET /api/pdf/images
func (h *Handlers) GetPDFImages(c *gin.Context) {
	RespondList(c, h.server.PDF().Images())
}

// AddPDFImages handles POST /api/pdf/images (multipart "files"). Every file
// is staged or the whole request fails.
func (h *Handlers) AddPDFImages(c *gin.Context) {
	files, ok := formFiles(c, "files")
	if !ok {
		return
	}
	adapter := h.server.PDF()
	for _, f := range files {
		if _, err := adapter.Add(f.Name, f.Data); err != nil {
			RespondError(c, err)
			return
		}
	}
	RespondList(c, adapter.Images())
}

// RemovePDFImage handles DELETE /api/pdf/images/:index
func (h *Handlers) RemovePDFImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		RespondError(c, fmt.Errorf("%w: %w: %q", tools.ErrInvalidInput, pdf.ErrBadIndex, c.Param("index")))
		return
	}
	if err := h.server.PDF().Remove(index); err != nil {
		RespondError(c, err)
		return
	}
	RespondList(c, h.server.PDF().Images())
}

// ResetPDFImages handles DELETE /api/pdf/images
func (h *Handlers) ResetPDFImages(c *gin.Context) {
	h.server.PDF().Reset()
	RespondNoContent(c)
}

// CommitPDF handles POST /api/pdf/commit
func (h *Handlers) CommitPDF(c *gin.Context) {
	op, err := h.server.PDF().Commit(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondAccepted(c, h.server.Track(op))
}
