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
	"go.uber.org/zap"

	_ "github.com/noah-isme/classhub-api/api/swagger"
	"github.com/noah-isme/classhub-api/internal/handler"
	"github.com/noah-isme/classhub-api/internal/repository"
	"github.com/noah-isme/classhub-api/internal/router"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/cache"
	"github.com/noah-isme/classhub-api/pkg/config"
	"github.com/noah-isme/classhub-api/pkg/database"
	"github.com/noah-isme/classhub-api/pkg/logger"
)

// @title ClassHub API
// @version 1.0.0
// @description Class sections, enrollment requests, attendance and notices.
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	dependencies := map[string]handler.Pinger{"postgres": db}

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis, 5*time.Second)
		if err != nil {
			logr.Warn("redis unavailable, stats cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
			dependencies["redis"] = handler.PingerFunc(cacheRepo.Ping)
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := service.NewValidator()

	users := repository.NewUserRepository(db)
	sections := repository.NewClassSectionRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	notices := repository.NewNoticeRepository(db)

	policy, err := service.PolicyFromConfig(cfg.Attendance, cfg.Cache)
	if err != nil {
		logr.Fatal("invalid attendance policy", zap.Error(err))
	}

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	identitySvc := service.NewIdentityService(authSvc, users, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.StatsTTL, logr, cacheRepo != nil)
	sectionSvc := service.NewClassSectionService(sections, users, users, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, sections, users, metricsSvc, validate, logr)
	crSvc := service.NewCRService(sections, users, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(attendance, sections, enrollments, cacheSvc, metricsSvc, policy, validate, logr)
	noticeSvc := service.NewNoticeService(notices, sections, enrollments, metricsSvc, validate, logr)

	engine := router.New(router.Deps{
		Config:   cfg,
		Logger:   logr,
		Identity: identitySvc,
		Audit:    users,
		Metrics:  metricsSvc,
	}, router.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Sections:   handler.NewSectionHandler(sectionSvc, crSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Notices:    handler.NewNoticeHandler(noticeSvc),
		Metrics:    handler.NewMetricsHandler(metricsSvc, dependencies),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
