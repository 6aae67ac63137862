package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-assignment-engine/api/swagger"
	"github.com/noah-isme/sma-assignment-engine/internal/handler"
	"github.com/noah-isme/sma-assignment-engine/internal/middleware"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
	"github.com/noah-isme/sma-assignment-engine/internal/service"
	"github.com/noah-isme/sma-assignment-engine/pkg/cache"
	"github.com/noah-isme/sma-assignment-engine/pkg/config"
	"github.com/noah-isme/sma-assignment-engine/pkg/database"
	"github.com/noah-isme/sma-assignment-engine/pkg/jobs"
	"github.com/noah-isme/sma-assignment-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-assignment-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-assignment-engine/pkg/middleware/requestid"
)

// @title Assignment Engine API
// @version 0.1.0
// @description Teacher workload validation and bulk subject assignment
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	probes := map[string]handler.ReadinessProbe{}

	schoolAPI := repository.NewSchoolAPIRepository(cfg.SchoolAPI, metrics, logr)

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("reference cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)
	reference := service.NewReferenceService(schoolAPI, schoolAPI, cacheSvc, logr)
	gateway := service.NewValidationGateway(schoolAPI, metrics, logr)

	refresher := newRefresher(ctx, reference, cfg.Refresh, logr)
	var (
		submissions *service.SubmissionService
		history     *service.HistoryService
	)
	if cfg.Audit.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck
		probes["postgres"] = db.PingContext

		audits := repository.NewSubmissionAuditRepository(db)
		submissions = service.NewSubmissionService(schoolAPI, audits, refresher, metrics, logr)
		history = service.NewHistoryService(audits, validate, logr)
	} else {
		submissions = service.NewSubmissionService(schoolAPI, nil, refresher, metrics, logr)
		history = service.NewHistoryService(nil, validate, logr)
	}

	exports := service.NewExportService(nil, nil)
	wizards := service.NewWizardService(reference, gateway, submissions, exports, validate, service.WizardConfig{
		SessionTTL:              cfg.Wizard.SessionTTL,
		NearCapacityRatio:       cfg.Wizard.NearCapacityRatio,
		RefreshBaseBeforeCommit: cfg.Wizard.RefreshBaseBeforeCommit,
	}, metrics, logr)
	drafts := service.NewSingleAssignmentService(reference, gateway, submissions, validate, cfg.Wizard.SessionTTL, metrics, logr)
	go wizards.RunJanitor(ctx, cfg.Wizard.SweepInterval)
	go drafts.RunJanitor(ctx, cfg.Wizard.SweepInterval)

	auth := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, probes)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix, middleware.JWT(auth)),
		handler.NewWizardHandler(wizards),
		handler.NewDraftHandler(drafts),
		handler.NewHistoryHandler(history),
		handler.NewReferenceHandler(reference),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// newRefresher starts the post-commit refresh queue. The queue drains when
// ctx is cancelled.
func newRefresher(ctx context.Context, reference *service.ReferenceService, cfg config.RefreshConfig, logr *zap.Logger) *service.RefreshService {
	refresher := service.NewRefreshService(reference, logr)
	queue := jobs.NewQueue("teacher-refresh", refresher.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logr,
	})
	queue.Start(ctx)
	go func() {
		<-ctx.Done()
		queue.Stop()
	}()
	refresher.AttachQueue(queue)
	return refresher
}

func registerRoutes(
	api *gin.RouterGroup,
	wizards *handler.WizardHandler,
	drafts *handler.DraftHandler,
	history *handler.HistoryHandler,
	reference *handler.ReferenceHandler,
) {
	w := api.Group("/assignment-wizards")
	w.POST("", wizards.Open)
	w.GET("/:id", wizards.Get)
	w.DELETE("/:id", wizards.Close)
	w.PUT("/:id/setup", wizards.Setup)
	w.POST("/:id/next", wizards.Next)
	w.POST("/:id/back", wizards.Back)
	w.POST("/:id/select-all", wizards.SelectAll)
	w.PUT("/:id/rows/:subjectId/selection", wizards.ToggleRow)
	w.PATCH("/:id/rows/:subjectId", wizards.UpdateRow)
	w.POST("/:id/rows/:subjectId/repair", wizards.ApplyRepair)
	w.POST("/:id/validate", wizards.ValidateAll)
	w.GET("/:id/review", wizards.Review)
	w.POST("/:id/submit", wizards.Submit)
	w.POST("/:id/retry", wizards.Retry)
	w.GET("/:id/results/export", wizards.Export)

	d := api.Group("/assignment-drafts")
	d.POST("", drafts.Create)
	d.GET("/:id", drafts.Get)
	d.PATCH("/:id", drafts.Edit)
	d.POST("/:id/submit", drafts.Submit)
	d.DELETE("/:id", drafts.Discard)

	api.GET("/teachers/:teacherId/assignment-submissions", history.ListByTeacher)
	api.GET("/teachers/:teacherId/capacity", reference.Capacity)
	api.GET("/academic-years", reference.AcademicYears)
}
