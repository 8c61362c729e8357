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

	_ "github.com/noah-isme/attendify-api/api/swagger"
	"github.com/noah-isme/attendify-api/internal/handler"
	"github.com/noah-isme/attendify-api/internal/middleware"
	"github.com/noah-isme/attendify-api/internal/repository"
	"github.com/noah-isme/attendify-api/internal/service"
	"github.com/noah-isme/attendify-api/pkg/cache"
	"github.com/noah-isme/attendify-api/pkg/clock"
	"github.com/noah-isme/attendify-api/pkg/config"
	"github.com/noah-isme/attendify-api/pkg/database"
	"github.com/noah-isme/attendify-api/pkg/jobs"
	"github.com/noah-isme/attendify-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendify-api/pkg/middleware/requestid"
)

// @title Attendify API
// @version 1.0.0
// @description QR-token class attendance: sessions, token issuance, redemption and summaries.
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Connect(connectCtx, cfg.Database)
	if err != nil {
		cancelConnect()
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(connectCtx, cfg.Redis)
	cancelConnect()
	switch {
	case err != nil:
		logr.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
	case redisClient == nil:
		logr.Info("redis disabled, caching and rate limiting off")
	default:
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	txManager := database.NewTxManager(db)
	sessionClock := service.NewSessionClock(clock.System{}, cfg.Attendance.Location())

	sessionRepo := repository.NewSessionRepository(db)
	offeringRepo := repository.NewOfferingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Summary.CacheTTL, logr, cfg.Summary.CacheEnabled)
	}

	auditSvc := service.NewAuditService(auditRepo, metricsSvc, jobs.QueueConfig{
		Workers:      cfg.Audit.Workers,
		BufferSize:   cfg.Audit.BufferSize,
		MaxRetries:   cfg.Audit.MaxRetries,
		RetryDelay:   cfg.Audit.RetryDelay,
		DrainTimeout: cfg.Audit.DrainTimeout,
		Logger:       logr.Named("audit"),
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
	gate := service.NewEnrollmentGate(enrollmentRepo, logr)
	tokenSvc := service.NewTokenService(tokenRepo, sessionRepo, txManager, sessionClock, cfg.Attendance.TokenTTL, metricsSvc, auditSvc, logr)
	summarySvc := service.NewSummaryService(attendanceRepo, offeringRepo, cacheSvc, cfg.Summary.CacheTTL, clock.System{}, logr)
	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceDeps{
		Repo:      attendanceRepo,
		Sessions:  sessionRepo,
		Access:    offeringRepo,
		Tokens:    tokenSvc,
		Gate:      gate,
		Tx:        txManager,
		Clock:     sessionClock,
		Summaries: summarySvc,
		Policy:    service.GeofencePolicyFromConfig(cfg.Attendance),
		Metrics:   metricsSvc,
		Audit:     auditSvc,
		Validator: validate,
		Logger:    logr,
	})
	sessionSvc := service.NewSessionService(sessionRepo, offeringRepo, tokenSvc, gate, txManager, sessionClock, cfg.Attendance.DefaultGeofenceRadius, auditSvc, validate, logr)

	go tokenSvc.RunReaper(ctx, cfg.Attendance.ReaperInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Auth:       authSvc,
		Limiter:    cache.NewFixedWindowLimiter(redisClient, "ratelimit:redeem", cfg.Attendance.RedeemRateLimit, cfg.Attendance.RedeemRateWindow),
		Sessions:   handler.NewSessionHandler(sessionSvc, tokenSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Summaries:  handler.NewSummaryHandler(summarySvc),
		Logger:     logr,
	}.Register(r.Group(cfg.APIPrefix))

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
