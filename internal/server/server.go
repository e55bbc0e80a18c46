package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/internal/service/authority"
	"github.com/ifuryst/quillflow/internal/service/image"
	"github.com/ifuryst/quillflow/pkg/lock"
	"github.com/ifuryst/quillflow/pkg/storage"
	"github.com/ifuryst/quillflow/pkg/util"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Activity  *service.ActivityService
	Settings  *service.SettingsService
	Quota     *service.QuotaService
	License   *service.LicenseService
	Style     *service.StyleService
	Ideas     *service.IdeaService
	Drafts    *service.DraftService
	Publisher *service.PublisherService
	Scheduler *service.Scheduler

	closers []func() error
}

// NewServer wires every service from cfg. It is also used by the one-shot
// CLI commands, which never call Start.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	srv := &Server{
		Config: cfg,
		DB:     db,
		Router: gin.New(),
		Logger: logger,
	}

	var generator ai.Generator = ai.Disabled{}
	if cfg.AI.APIKey != "" {
		generator, err = ai.NewOpenAIGenerator(&cfg.AI, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ai provider: %w", err)
		}
	} else {
		logger.Warn("No ai.api_key configured, generation is disabled")
	}

	locker, err := srv.newLocker(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := service.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize publisher: %w", err)
	}

	// Initialize services
	srv.Activity = service.NewActivityService(db, logger)
	srv.Settings = service.NewSettingsService(db, logger, srv.Activity)
	srv.License = service.NewLicenseService(&cfg.License, db,
		authority.NewHTTPClient(cfg.License.AuthorityURL, cfg.License.ProductID,
			util.ParseDuration(cfg.License.Timeout, 15*time.Second)),
		logger, srv.Activity)
	srv.Quota = service.NewQuotaService(db, logger, srv.Settings, srv.License, srv.Activity)
	srv.Style = service.NewStyleService(db, logger, generator, srv.Activity, cfg.Scheduler.StyleSampleSize)
	srv.Ideas = service.NewIdeaService(&cfg.Pipeline, db, logger, generator, srv.Quota, srv.Style, srv.Activity)
	srv.Drafts = service.NewDraftService(&cfg.Pipeline, db, logger, generator, srv.Quota, srv.License,
		srv.Style, srv.Settings, srv.Activity)
	srv.Publisher = service.NewPublisherService(db, logger, pub, srv.Activity)

	if err := srv.registerImageProviders(ctx); err != nil {
		return nil, err
	}

	srv.Scheduler = service.NewScheduler(&cfg.Scheduler, logger, service.SchedulerDeps{
		Settings:  srv.Settings,
		Ideas:     srv.Ideas,
		Drafts:    srv.Drafts,
		Publisher: srv.Publisher,
		Style:     srv.Style,
		Quota:     srv.Quota,
		License:   srv.License,
		Activity:  srv.Activity,
		Locker:    locker,
	})
	srv.Settings.OnChange(srv.Scheduler.Reinitialize)

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) newLocker(ctx context.Context) (lock.Locker, error) {
	if s.Config.Redis.Addr == "" {
		return lock.NewMemoryLocker(), nil
	}

	rdb, err := lock.NewRedisClient(ctx, s.Config.Redis.Addr, s.Config.Redis.Password, s.Config.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.closers = append(s.closers, rdb.Close)
	s.Logger.Info("Using redis for job locks", zap.String("addr", s.Config.Redis.Addr))
	return lock.NewRedisLocker(rdb, s.Logger), nil
}

func (s *Server) registerImageProviders(ctx context.Context) error {
	cfg := s.Config.Image
	timeout := util.ParseDuration(cfg.Timeout, 30*time.Second)

	providers := map[models.ImageProvider]image.Provider{}
	if s.Config.AI.APIKey != "" {
		p, err := image.NewOpenAIProvider(s.Config.AI.APIKey, s.Config.AI.BaseURL, cfg.OpenAIModel, timeout)
		if err != nil {
			return fmt.Errorf("failed to initialize image generation: %w", err)
		}
		providers[models.ImageProviderOpenAI] = p
	}
	if cfg.UnsplashKey != "" {
		providers[models.ImageProviderUnsplash] = image.NewUnsplashProvider(cfg.UnsplashURL, cfg.UnsplashKey, timeout)
	}
	if cfg.PexelsKey != "" {
		providers[models.ImageProviderPexels] = image.NewPexelsProvider(cfg.PexelsURL, cfg.PexelsKey, timeout)
	}

	var uploader image.Uploader
	if cfg.MirrorToBucket && s.Config.Storage.Enabled() {
		client, err := storage.NewS3Client(ctx, s.Config.Storage)
		if err != nil {
			return err
		}
		bucket, err := storage.NewBucket(client, s.Config.Storage)
		if err != nil {
			return err
		}
		uploader = bucket
	}

	for name, provider := range providers {
		if uploader != nil {
			provider = image.NewMirroredProvider(provider, uploader, timeout)
		}
		s.Drafts.RegisterImageProvider(name, provider)
		s.Logger.Info("Image provider registered",
			zap.String("provider", string(name)),
			zap.Bool("mirrored", uploader != nil))
	}
	return nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Requests go through zap like everything else.
	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("HTTP request",
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
		api.GET("/style", s.handleGetStyle)
		api.PUT("/style", s.handleUpdateStyle)
	}
}

func (s *Server) handleGetSettings(c *gin.Context) {
	cfg, err := s.Settings.Load(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleUpdateSettings applies a partial update and re-initializes the
// scheduler through the settings hook.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch service.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.Settings.Apply(c.Request.Context(), patch)
	if err != nil {
		s.writeError(c, "Failed to update settings", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleGetStyle(c *gin.Context) {
	guide, err := s.Style.Require(c.Request.Context())
	if err != nil {
		s.writeError(c, "Failed to load style guide", err)
		return
	}
	c.JSON(http.StatusOK, guide)
}

func (s *Server) handleUpdateStyle(c *gin.Context) {
	var patch service.StylePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	guide, err := s.Style.Apply(c.Request.Context(), patch)
	if err != nil {
		s.writeError(c, "Failed to update style guide", err)
		return
	}
	c.JSON(http.StatusOK, guide)
}

// writeError reports user facing errors as 400 and everything else as 500.
func (s *Server) writeError(c *gin.Context, msg string, err error) {
	if service.IsUserFacing(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	status, err := s.Status(ctx)
	if err != nil {
		s.Logger.Error("Failed to build status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Status is the read-only snapshot served on /api/v1/status.
type Status struct {
	Mode          models.WorkingMode        `json:"mode"`
	Backlog       int64                     `json:"backlog"`
	Quota         *service.QuotaUsage       `json:"quota"`
	License       models.LicenseStatus      `json:"license"`
	Jobs          map[string]time.Time      `json:"jobs"`
	RecentActions []models.ActivityLogEntry `json:"recent_activity"`
}

func (s *Server) Status(ctx context.Context) (*Status, error) {
	settings, err := s.Settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	backlog, err := s.Ideas.BacklogCount(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.Quota.Usage(ctx)
	if err != nil {
		return nil, err
	}
	license, err := s.License.State(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.Activity.Recent(ctx, 20)
	if err != nil {
		return nil, err
	}

	return &Status{
		Mode:          settings.WorkingMode,
		Backlog:       backlog,
		Quota:         usage,
		License:       license.CachedStatus,
		Jobs:          s.Scheduler.NextRuns(),
		RecentActions: recent,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()
	defer s.Close()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}

// Close releases connections opened by NewServer.
func (s *Server) Close() {
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.Logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	s.closers = nil

	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
