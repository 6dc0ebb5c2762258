package api

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/prefs"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/web"
)

var shellLogger = log.GetLogger("ApiShell")

func staticFS() http.FileSystem { return web.Static() }

// ShellPage handles GET /
func (h *Handlers) ShellPage(c *gin.Context) {
	ctrl := h.server.Shell()
	state := ctrl.State()

	settings, err := json.Marshal(h.server.Config().ToScannerSettings())
	if err != nil {
		settings = []byte("{}")
	}

	page := web.Page{
		Theme:      string(state.Theme),
		ActiveTool: string(state.ActiveTool),
		ShowClear:  ctrl.ShowClearAll(),
		Settings:   template.JS(settings),
	}
	for _, k := range tools.Kinds {
		page.Tabs = append(page.Tabs, web.Tab{Kind: string(k), Label: k.Label(), Active: k == state.ActiveTool})
	}
	for _, it := range ctrl.History() {
		page.History = append(page.History, web.Entry{Kind: string(it.Kind), Data: it.Payload, At: it.CreatedAt})
	}

	var buf bytes.Buffer
	if err := web.Render(&buf, page); err != nil {
		shellLogger.Error().Err(err).Msg("failed to render shell page")
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// GetHistory handles GET /api/history
func (h *Handlers) GetHistory(c *gin.Context) {
	RespondList(c, h.server.Shell().History())
}

// ClearAllData handles DELETE /api/data?confirm=true
func (h *Handlers) ClearAllData(c *gin.Context) {
	confirmed := c.Query("confirm") == "true"
	if err := h.server.Shell().ClearAllData(c.Request.Context(), confirmed); err != nil {
		RespondError(c, err)
		return
	}
	RespondNoContent(c)
}

// GetPreferences handles GET /api/preferences
func (h *Handlers) GetPreferences(c *gin.Context) {
	RespondData(c, h.server.Prefs().Get())
}

type preferencesRequest struct {
	ActiveTool *string `json:"activeTool"`
	Theme      *string `json:"theme"`
	LastCamera *string `json:"lastCamera"`
}

// UpdatePreferences handles PUT /api/preferences. Absent fields are left
// unchanged.
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var body preferencesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	ctrl := h.server.Shell()
	if body.Theme != nil {
		t, err := prefs.ParseTheme(*body.Theme)
		if err != nil {
			RespondError(c, err)
			return
		}
		if err := ctrl.SetTheme(t); err != nil {
			RespondError(c, err)
			return
		}
	}
	if body.ActiveTool != nil {
		k, err := tools.ParseKind(*body.ActiveTool)
		if err != nil {
			RespondError(c, err)
			return
		}
		if err := ctrl.SetActiveTool(c.Request.Context(), k); err != nil {
			RespondError(c, err)
			return
		}
	}
	if body.LastCamera != nil {
		h.server.Prefs().SetLastCamera(*body.LastCamera)
	}
	RespondData(c, h.server.Prefs().Get())
}

// ToggleTheme handles POST /api/preferences/theme/toggle
func (h *Handlers) ToggleTheme(c *gin.Context) {
	if _, err := h.server.Shell().ToggleTheme(); err != nil {
		RespondError(c, err)
		return
	}
	RespondData(c, h.server.Prefs().Get())
}

type activeToolResponse struct {
	ActiveTool   tools.Kind `json:"activeTool"`
	Label        string     `json:"label"`
	ShowClearAll bool       `json:"showClearAll"`
}

func (h *Handlers) activeTool() activeToolResponse {
	ctrl := h.server.Shell()
	k := ctrl.State().ActiveTool
	return activeToolResponse{ActiveTool: k, Label: k.Label(), ShowClearAll: ctrl.ShowClearAll()}
}

// GetActiveTool handles GET /api/tools/active
func (h *Handlers) GetActiveTool(c *gin.Context) {
	RespondData(c, h.activeTool())
}

// SetActiveTool handles PUT /api/tools/active
func (h *Handlers) SetActiveTool(c *gin.Context) {
	var body struct {
		Tool string `json:"tool" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	k, err := tools.ParseKind(body.Tool)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.server.Shell().SetActiveTool(c.Request.Context(), k); err != nil {
		RespondError(c, err)
		return
	}
	RespondData(c, h.activeTool())
}
