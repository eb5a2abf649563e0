// Package api exposes the candidate search, intake, trial and consent operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/consent"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/middleware"
	"github.com/pharmatrace-server/internal/service"
)

// Dependencies are the services the handlers call. Intake and Batch may be nil when no AI key
// is configured; their routes then answer 503.
type Dependencies struct {
	Stores  *domain.Stores
	Filter  *service.CandidateFilter
	Intake  *service.IntakeService
	Batch   *service.BatchRunner
	Trials  *service.TrialService
	Consent *service.ConsentService
	Ledger  consent.Store
}

// Server represents the HTTP server
type Server struct {
	cfg    *domain.Config
	deps   Dependencies
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, cfg *domain.Config, deps Dependencies) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	researcher := middleware.ResearcherAuth(s.cfg.Auth)
	timeout := middleware.RequestTimeout(s.cfg.Server.RequestTimeout)

	api := s.router.Group("/api")
	{
		api.POST("/find-candidates", researcher, timeout, s.handleFindCandidates)

		api.POST("/upload-record", s.handleUploadRecord)
		api.POST("/batch-upload", s.handleBatchUpload)
		api.GET("/batch/:id", s.handleGetBatch)

		api.POST("/trials", researcher, timeout, s.handleCreateTrial)
		api.GET("/trials", timeout, s.handleListTrials)
		api.POST("/trials/:id/match", researcher, s.handleMatchTrial)

		api.POST("/consent/agreement", s.handleAgreement)
		api.POST("/confirm-consent", timeout, s.handleConfirmConsent)
		api.GET("/consent/export", researcher, s.handleExportLedger)

		api.GET("/matches/:user_id", timeout, s.handleListMatches)
		api.GET("/profiles/:user_id", timeout, s.handleGetProfile)
	}
}

// handleHealth pings the configured stores
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	status, code := "healthy", http.StatusOK
	if s.deps.Stores != nil && s.deps.Stores.Ping != nil {
		if err := s.deps.Stores.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Store health check failed")
			checks["storage"] = "unavailable"
			status, code = "unhealthy", http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}
	if s.deps.Ledger != nil {
		if _, err := s.deps.Ledger.Count(ctx); err != nil {
			checks["consent_ledger"] = "unavailable"
			status, code = "unhealthy", http.StatusServiceUnavailable
		} else {
			checks["consent_ledger"] = "ok"
		}
	}
	checks["intake"] = s.deps.Intake != nil

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
