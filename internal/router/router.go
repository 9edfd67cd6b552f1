package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/handler"
	"github.com/noah-isme/classhub-api/internal/middleware"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/config"
	"github.com/noah-isme/classhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/classhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/classhub-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by New.
type Handlers struct {
	Auth       *handler.AuthHandler
	Sections   *handler.SectionHandler
	Enrollment *handler.EnrollmentHandler
	Attendance *handler.AttendanceHandler
	Notices    *handler.NoticeHandler
	Metrics    *handler.MetricsHandler
}

// Deps carries what the middleware chain needs.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Identity middleware.IdentityResolver
	Audit    middleware.AuditWriter
	Metrics  *service.MetricsService
}

// New builds the gin engine with every route of the API.
func New(deps Deps, h Handlers) *gin.Engine {
	cfg := deps.Config
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)

	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Identity))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	teacherOnly := middleware.RequireRoles(models.RoleTeacher)

	secured.GET("/me", h.Auth.Me)
	secured.GET("/me/enrollments", h.Enrollment.ListMine)

	sections := secured.Group("/sections")
	sections.GET("", h.Sections.List)
	sections.POST("", adminOnly, h.Sections.Create)
	sections.GET("/:id", h.Sections.Get)
	sections.PUT("/:id/teacher", adminOnly, h.Sections.AssignTeacher)
	sections.PUT("/:id/cr", adminOnly, h.Sections.PromoteCR)
	sections.DELETE("/:id/cr", adminOnly, h.Sections.DemoteCR)
	sections.POST("/:id/enrollments", studentOnly, h.Enrollment.Request)
	sections.GET("/:id/enrollments", h.Enrollment.ListForSection)
	sections.POST("/:id/attendance", teacherOnly, h.Attendance.Mark)
	sections.GET("/:id/attendance", h.Attendance.Sheet)
	sections.GET("/:id/attendance/summary", h.Attendance.Summary)
	sections.GET("/:id/attendance/export", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionAttendanceExport, "class_section"), h.Attendance.Export)

	secured.POST("/enrollments/:id/decision", h.Enrollment.Decide)
	secured.GET("/students/:id/attendance/stats", h.Attendance.Stats)

	secured.GET("/notices", h.Notices.List)
	secured.POST("/notices", h.Notices.Post)

	return r
}
