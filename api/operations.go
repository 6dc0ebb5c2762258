package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

func (h *Handlers) operation(c *gin.Context) (*tools.Operation, bool) {
	op, ok := h.server.Operations().Get(c.Param("id"))
	if !ok {
		RespondNotFound(c, "Operation not found")
	}
	return op, ok
}

// GetOperation handles GET /api/operations/:id
func (h *Handlers) GetOperation(c *gin.Context) {
	op, ok := h.operation(c)
	if !ok {
		return
	}
	RespondData(c, op.Status())
}

// OperationEvents handles GET /api/operations/:id/events (SSE). The stream
// replays from the first event and ends after the terminal one.
func (h *Handlers) OperationEvents(c *gin.Context) {
	op, ok := h.operation(c)
	if !ok {
		return
	}
	sseHeaders(c)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for e := range op.Events(ctx) {
		if err := writeSSE(c.Writer, string(e.Type), e); err != nil {
			notifLogger.Debug().Err(err).Str("op", op.ID()).Msg("operation stream closed")
			return
		}
		c.Writer.Flush()
	}
}

// CancelOperation handles DELETE /api/operations/:id. Canceling a finished
// operation changes nothing.
func (h *Handlers) CancelOperation(c *gin.Context) {
	op, ok := h.operation(c)
	if !ok {
		return
	}
	op.Cancel()
	RespondData(c, op.Status())
}
