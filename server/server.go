package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/artifacts"
	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/config"
	"github.com/xiaoyuanzhu-com/omnitool/db"
	"github.com/xiaoyuanzhu-com/omnitool/history"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/notifications"
	"github.com/xiaoyuanzhu-com/omnitool/prefs"
	"github.com/xiaoyuanzhu-com/omnitool/session"
	"github.com/xiaoyuanzhu-com/omnitool/shell"
	"github.com/xiaoyuanzhu-com/omnitool/storage"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	imagetool "github.com/xiaoyuanzhu-com/omnitool/tools/image"
	"github.com/xiaoyuanzhu-com/omnitool/tools/ocr"
	"github.com/xiaoyuanzhu-com/omnitool/tools/pdf"
	"github.com/xiaoyuanzhu-com/omnitool/tools/scan"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

// Server owns and coordinates all application components
type Server struct {
	cfg *Config

	// Components (owned by server)
	database   *db.DB // nil when running on memory storage
	records    storage.Storage
	blobs      artifacts.Blobs
	history    *history.Store
	prefs      *prefs.Store
	notif      *notifications.Service
	guard      *camera.Guard
	sessions   *session.Manager
	operations *tools.Registry
	artifacts  *artifacts.Registry
	codec      *vendors.ImageCodec
	scanner    *scan.Adapter
	ocr        *ocr.Adapter
	pdf        *pdf.Adapter
	image      *imagetool.Adapter
	shell      *shell.Controller
	watcher    *config.Watcher

	// Shutdown context - cancelled when server is shutting down.
	// Long-running handlers (WebSocket, SSE) should listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// Vendors are the external processing services. Nil fields get the
// built-in implementations.
type Vendors struct {
	Decoder    vendors.Decoder
	Recognizer vendors.Recognizer
}

// New creates a new server with all components initialized
func New(cfg *Config) (*Server, error) {
	return NewWithVendors(cfg, Vendors{})
}

// NewWithVendors is New with the processing services swapped out.
func NewWithVendors(cfg *Config, v Vendors) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	// 1. Open database. A device without usable storage still works, it
	// just forgets everything on restart.
	log.Info().Msg("initializing database")
	database, err := db.Open(cfg.ToDBConfig())
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DatabasePath).Msg("database unavailable, falling back to memory storage")
		s.records = storage.NewMemory()
		s.blobs = artifacts.NewMemoryBlobs()
	} else {
		s.database = database
		s.records = database
		s.blobs = database
	}

	// 2. Notifications
	s.notif = notifications.NewService()

	// 3. Durable records
	s.history = history.New(s.records)
	s.prefs = prefs.Load(s.records, cfg.RememberLastCamera)

	// 4. Processing services
	if v.Decoder == nil {
		v.Decoder = vendors.NewZXingDecoder()
	}
	if v.Recognizer == nil {
		v.Recognizer = vendors.NewTesseractRecognizer()
	}
	s.codec = vendors.NewImageCodec(cfg.ImageWorkers)
	s.operations = tools.NewRegistry(cfg.OperationRetention)
	s.artifacts = artifacts.NewRegistry(s.blobs, cfg.ArtifactTTL)

	// 5. Tool adapters
	s.scanner = scan.New(cfg.ToScanConfig(), v.Decoder, s.codec, s.history, func(r scan.Result) {
		s.notif.NotifyScanResult(r)
	})
	s.ocr = ocr.New(v.Recognizer, cfg.OCRLanguage, s.history)
	s.pdf = pdf.New(vendors.NewPDFAssembler(s.codec), s.artifacts, cfg.PDFPageWidth, cfg.PDFFileName)
	s.image = imagetool.New(s.codec, s.artifacts, cfg.ToImageDefaults(), cfg.ImageQuality)

	// 6. Session lifecycle
	s.guard = camera.NewGuard()
	s.sessions = session.NewManager(s.guard, s.prefs.Get().ActiveTool, session.Options{
		Settings:       cfg.ToCameraSettings(),
		ReleaseTimeout: cfg.ReleaseTimeout + time.Second,
		PreferredCamera: func() string {
			return s.prefs.Get().LastCamera
		},
		OnCameraOpened: s.prefs.SetLastCamera,
		OnState: func(snap session.Snapshot) {
			s.notif.NotifyScanState(snap)
		},
		Runner: func(ctx context.Context, sess *session.ScanSession, h camera.Handle) {
			s.scanner.Run(ctx, h, sess.MarkActive)
		},
	})

	// 7. Shell
	s.shell = shell.New(s.prefs, s.history, s.sessions, s.notif)
	s.shell.OnClear(func() {
		s.pdf.Reset()
		s.artifacts.Clear()
	})

	// 8. Setup HTTP router
	s.setupRouter()

	log.Info().Str("tool", string(s.shell.State().ActiveTool)).Msg("server initialized successfully")
	return s, nil
}

// Track registers op and forwards its status changes to the notification
// stream.
func (s *Server) Track(op *tools.Operation) *tools.Operation {
	s.operations.Add(op)
	go func() {
		for range op.Events(s.shutdownCtx) {
			s.notif.NotifyOperation(op.Status())
		}
	}()
	return op
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	// Set Gin mode
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	s.router = gin.New()

	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	// Security headers (production only)
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	// Gzip compression (skip SSE and WebSocket endpoints)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{
			"/api/notifications/stream", // SSE - needs streaming
			"/api/scanner/stream",       // WebSocket - protocol upgrade
			"/api/artifacts/",           // already compressed files
		}),
		gzip.WithExcludedPathsRegexs([]string{`^/api/operations/[^/]+/events$`}),
	))

	// Trust proxy headers
	s.router.SetTrustedProxies(nil)

	// Ignore .well-known requests
	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	// Note: API routes should be set up by calling code (main.go)
	// to avoid import cycles
}

// securityHeadersMiddleware adds security headers for production
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Clickjacking protection
		c.Header("X-Frame-Options", "SAMEORIGIN")

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// The scanner needs the camera on this origin only.
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(self)")

		c.Next()
	}
}

// Start starts all background services and the HTTP server
func (s *Server) Start() error {
	log.Info().Msg("starting server components")

	s.startWatcher()
	go s.sweepLoop()

	// Create HTTP server
	s.http = &http.Server{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	// Start HTTP server (blocks)
	return s.http.ListenAndServe()
}

func (s *Server) startWatcher() {
	if s.cfg.ConfigFile == "" {
		return
	}
	w, err := config.NewWatcher(s.cfg.ConfigFile, func(c *config.Config) {
		log.SetLevel(c.LogLevel)
		log.Info().Str("level", c.LogLevel).Msg("log level reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Str("path", s.cfg.ConfigFile).Msg("config watcher disabled")
		return
	}
	s.watcher = w
	w.Start()
}

// sweepLoop drops finished operations nobody asked about in a while.
func (s *Server) sweepLoop() {
	interval := s.cfg.OperationRetention / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case <-ticker.C:
			if n := s.operations.Sweep(); n > 0 {
				log.Debug().Int("count", n).Msg("swept finished operations")
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// 1. Cancel the shutdown context to signal all long-running handlers (WebSocket, SSE)
	log.Info().Msg("signaling handlers to stop")
	s.shutdownCancel()

	// Give handlers a moment to process the cancellation and close connections.
	// This prevents "response.WriteHeader on hijacked connection" warnings.
	time.Sleep(100 * time.Millisecond)

	// 2. Release the camera before the surfaces disconnect
	if err := s.sessions.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("camera release during shutdown not confirmed")
	}
	s.operations.CancelAll()

	// 3. Close notification service to cleanly disconnect SSE clients
	s.notif.Shutdown()

	// 4. Shutdown HTTP server (stop accepting new requests and wait for existing ones)
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Stop background services (in reverse order of startup)
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.artifacts.Clear()
	s.codec.Close()

	// Close database last
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for API handlers
func (s *Server) Config() *Config                       { return s.cfg }
func (s *Server) DB() *db.DB                            { return s.database }
func (s *Server) History() *history.Store               { return s.history }
func (s *Server) Prefs() *prefs.Store                   { return s.prefs }
func (s *Server) Notifications() *notifications.Service { return s.notif }
func (s *Server) Sessions() *session.Manager            { return s.sessions }
func (s *Server) Guard() *camera.Guard                  { return s.guard }
func (s *Server) Operations() *tools.Registry           { return s.operations }
func (s *Server) Artifacts() *artifacts.Registry        { return s.artifacts }
func (s *Server) Scanner() *scan.Adapter                { return s.scanner }
func (s *Server) OCR() *ocr.Adapter                     { return s.ocr }
func (s *Server) PDF() *pdf.Adapter                     { return s.pdf }
func (s *Server) Image() *imagetool.Adapter             { return s.image }
func (s *Server) Shell() *shell.Controller              { return s.shell }
func (s *Server) Router() *gin.Engine                   { return s.router }
func (s *Server) ShutdownContext() context.Context      { return s.shutdownCtx }
