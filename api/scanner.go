package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/session"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

var scannerLogger = log.GetLogger("ApiScanner")

// DecodeScannerImage handles POST /api/scanner/decode (multipart "file")
func (h *Handlers) DecodeScannerImage(c *gin.Context) {
	if !h.server.Config().FileInput {
		RespondBadRequest(c, "File scanning is disabled")
		return
	}
	f, ok := formFile(c, "file")
	if !ok {
		return
	}
	op := h.server.Track(h.server.Scanner().DecodeImage(c.Request.Context(), f.Data))
	RespondAccepted(c, op)
}

type scannerStateResponse struct {
	Active   bool                    `json:"active"`
	Settings vendors.ScannerSettings `json:"settings"`
	Session  *session.Snapshot       `json:"session,omitempty"`
	Camera   cameraState             `json:"camera"`
	Latest   *tools.Status           `json:"latest,omitempty"`
}

type cameraState struct {
	Open bool `json:"open"`
}

// GetScannerState handles GET /api/scanner/state
func (h *Handlers) GetScannerState(c *gin.Context) {
	resp := scannerStateResponse{
		Active:   h.server.Sessions().Active() == tools.Scanner,
		Settings: h.server.Config().ToScannerSettings(),
		Camera:   cameraState{Open: h.server.Guard().Open() > 0},
	}
	if snap, ok := h.server.Sessions().Scan(); ok {
		resp.Session = &snap
	}
	if op := h.server.Scanner().Latest(); op != nil {
		st := op.Status()
		resp.Latest = &st
	}
	RespondData(c, resp)
}

// RetryScanner handles POST /api/scanner/retry
func (h *Handlers) RetryScanner(c *gin.Context) {
	if err := h.server.Sessions().Retry(c.Request.Context()); err != nil {
		RespondError(c, err)
		return
	}
	snap, _ := h.server.Sessions().Scan()
	RespondData(c, snap)
}

// ScannerStream handles GET /api/scanner/stream. The page connects once
// mounted and serves as both the camera and the rendering surface: the
// server asks it to start and stop the camera and receives frames.
func (h *Handlers) ScannerStream(c *gin.Context) {
	if !h.server.Config().CameraInput {
		RespondBadRequest(c, "Camera scanning is disabled")
		return
	}

	log.MarkHijacked(c)

	// gin refuses to hijack once the 101 status went through its wrapper,
	// so hand the raw writer to the websocket library.
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Served from the same local origin
	})
	if err != nil {
		scannerLogger.Error().Err(err).Msg("websocket accept failed")
		return
	}

	// Abort gin context to prevent middleware from writing to hijacked connection
	c.Abort()

	// Frames are whole JPEGs
	conn.SetReadLimit(8 << 20)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Monitor server shutdown
	go func() {
		select {
		case <-h.server.ShutdownContext().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg := h.server.Config()
	dev := camera.NewRemoteDevice(uuid.NewString(), conn, cfg.ReleaseTimeout)
	served := make(chan error, 1)
	go func() { served <- dev.Serve(ctx) }()

	sessions := h.server.Sessions()
	if err := sessions.AttachSurface(ctx, dev); err != nil {
		scannerLogger.Warn().Err(err).Str("device", dev.ID()).Msg("failed to attach surface")
	} else {
		scannerLogger.Info().Str("device", dev.ID()).Msg("camera surface connected")
	}

	if err := <-served; err != nil {
		scannerLogger.Debug().Err(err).Str("device", dev.ID()).Msg("surface read loop ended")
	}

	detachCtx, detachCancel := context.WithTimeout(context.Background(), cfg.ReleaseTimeout+time.Second)
	defer detachCancel()
	if err := sessions.DetachSurface(detachCtx, dev); err != nil {
		scannerLogger.Warn().Err(err).Str("device", dev.ID()).Msg("surface detached without release confirmation")
	}
	conn.Close(websocket.StatusNormalClosure, "")
	scannerLogger.Info().Str("device", dev.ID()).Msg("camera surface disconnected")
}
