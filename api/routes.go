package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// Shell page and client
	r.GET("/", h.ShellPage)
	r.StaticFS("/static", staticFS())

	// API group
	api := r.Group("/api", BodyLimit(MaxUploadBytes))

	// History and clear-all
	api.GET("/history", h.GetHistory)
	api.DELETE("/data", h.ClearAllData)

	// Preferences
	api.GET("/preferences", h.GetPreferences)
	api.PUT("/preferences", h.UpdatePreferences)
	api.POST("/preferences/theme/toggle", h.ToggleTheme)

	// Active tool
	api.GET("/tools/active", h.GetActiveTool)
	api.PUT("/tools/active", h.SetActiveTool)

	// Scanner
	api.POST("/scanner/decode", h.DecodeScannerImage)
	api.GET("/scanner/state", h.GetScannerState)
	api.POST("/scanner/retry", h.RetryScanner)
	api.GET("/scanner/stream", h.ScannerStream)

	// OCR
	api.POST("/ocr", h.SubmitOCR)

	// PDF - static routes first
	api.GET("/pdf/images", h.GetPDFImages)
	api.POST("/pdf/images", h.AddPDFImages)
	api.DELETE("/pdf/images", h.ResetPDFImages)
	api.DELETE("/pdf/images/:index", h.RemovePDFImage)
	api.POST("/pdf/commit", h.CommitPDF)

	// Image optimizer
	api.POST("/image/optimize", h.OptimizeImage)

	// Operations
	api.GET("/operations/:id", h.GetOperation)
	api.GET("/operations/:id/events", h.OperationEvents)
	api.DELETE("/operations/:id", h.CancelOperation)

	// Produced files
	api.GET("/artifacts/:id", h.DownloadArtifact)

	// Notifications (SSE)
	api.GET("/notifications/stream", h.NotificationStream)
}
