package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/utils"
)

// DownloadArtifact handles GET /api/artifacts/:id. The file is served once
// and then released.
func (h *Handlers) DownloadArtifact(c *gin.Context) {
	art, data, err := h.server.Artifacts().Take(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", utils.AttachmentHeader(art.Name))
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, art.MimeType, data)
}
