package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "github.com/progenxxx/hris-sub006/docs" // swagger 文档注册
	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/service"
	"github.com/progenxxx/hris-sub006/internal/websocket"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config    *config.Config
	DB        *gorm.DB
	Records   service.RecordService
	Exports   service.ExportService
	Audit     service.AuditLogService
	Validator *auth.TokenValidator
	Directory auth.DepartmentDirectory // 可以为 nil
	FGAClient *auth.OpenFGAClient      // 可以为 nil
	Hub       *websocket.Hub           // 可以为 nil
	Logger    logrus.FieldLogger
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing))
	}
	router.Use(HTTPSRedirectMiddleware(cfg.Server.ForceHTTPS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(I18nMiddleware())
	router.Use(ErrorHandlerMiddleware())

	health := NewHealthController(deps.DB, deps.FGAClient)
	router.GET("/health", health.Check)
	router.GET("/metrics", MetricsHandler)

	swaggerHost := cfg.Server.Host
	if swaggerHost == "0.0.0.0" || swaggerHost == "" {
		swaggerHost = "localhost"
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL(fmt.Sprintf("http://%s:%d/swagger/doc.json", swaggerHost, cfg.Server.Port)),
	))

	if deps.Hub != nil && deps.Validator != nil {
		router.GET("/ws/:kind", websocket.WebSocketHandler(websocket.HandlerOptions{
			Hub:            deps.Hub,
			Validator:      deps.Validator,
			Kinds:          deps.Records.Kinds(),
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		}))
	}

	records := NewRecordController(deps.Records, deps.Exports, deps.Audit)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit))
	v1.Use(auth.AuthMiddleware(deps.Validator, deps.Directory, deps.Logger))
	{
		v1.GET("/kinds", records.Kinds)

		// 静态路径优先于 /:kind/:id
		v1.GET("/:kind/list", records.List)
		v1.GET("/:kind/export", records.Export)
		v1.POST("/:kind/bulkUpdateStatus", records.BulkUpdateStatus)

		v1.POST("/:kind", records.Create)
		v1.GET("/:kind/:id", records.Get)
		v1.POST("/:kind/:id", records.Override)
		v1.PUT("/:kind/:id", records.Update)
		v1.DELETE("/:kind/:id", records.Delete)
		v1.POST("/:kind/:id/status", records.UpdateStatus)
		v1.POST("/:kind/:id/reschedule", records.Reschedule)
		v1.GET("/:kind/:id/history", records.History)
		v1.GET("/:kind/:id/audit", auth.CheckRole(auth.GroupHrd), records.Audit)
	}

	// 未匹配的路由返回 JSON 而不是 HTML
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, T(c, "error.not_found"), "the requested route does not exist")
	})

	return router
}
