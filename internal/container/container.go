package container

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/database"
	"github.com/progenxxx/hris-sub006/internal/metrics"
	"github.com/progenxxx/hris-sub006/internal/repository"
	"github.com/progenxxx/hris-sub006/internal/service"
	"github.com/progenxxx/hris-sub006/internal/websocket"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// devSecret 开发环境未配置 auth.secret 时使用
const devSecret = "hris-development-secret"

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、客户端等
type Container struct {
	cfg       *config.Config
	logger    *logrus.Logger
	db        *gorm.DB
	kinds     *workflow.Registry
	validator *auth.TokenValidator
	fgaClient *auth.OpenFGAClient
	directory *auth.CachedDirectory
	hub       *websocket.Hub
	records   service.RecordService
	exports   service.ExportService
	audit     service.AuditLogService
	collector *metrics.Collector
	stopHub   context.CancelFunc
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	kinds, err := LoadKinds(cfg.Workflow)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Workflow.Location()
	if err != nil {
		return nil, err
	}

	validator, err := NewValidator(cfg, logger)
	if err != nil {
		return nil, err
	}

	// 1. 数据库,默认重试 3 次,指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Container{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		kinds:     kinds,
		validator: validator,
	}

	// 2. OpenFGA 部门目录,可选
	if cfg.OpenFGA.Enabled {
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fgaClient
		c.directory = auth.NewCachedDirectory(fgaClient, auth.NewDepartmentCache(cfg.OpenFGA.CacheSize, cfg.OpenFGA.CacheTTL))
	}

	// 3. 推送
	hubCtx, stopHub := context.WithCancel(context.Background())
	c.hub = websocket.NewHub(logger.WithField("component", "websocket"))
	c.stopHub = stopHub
	go c.hub.Run(hubCtx)

	// 4. 服务
	c.audit = service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.records = service.NewRecordService(service.RecordServiceOptions{
		Kinds:       kinds,
		Records:     repository.NewRecordRepository(db),
		History:     repository.NewStateHistoryRepository(db),
		AuditLogSvc: c.audit,
		Publisher:   c.hub,
		Location:    loc,
		Logger:      logger.WithField("component", "records"),
	})
	c.exports = service.NewExportService(c.records, loc)

	// 5. 指标
	c.collector = metrics.NewCollector(db, 30*time.Second)
	c.collector.Start()

	return c, nil
}

// LoadKinds 加载记录类型,未配置文件时使用内置类型
func LoadKinds(cfg config.WorkflowConfig) (*workflow.Registry, error) {
	if cfg.KindsFile == "" {
		return workflow.DefaultRegistry(), nil
	}
	kinds, err := workflow.LoadRegistry(cfg.KindsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load record kinds: %w", err)
	}
	return kinds, nil
}

// NewValidator 创建 Token 验证器; 非生产环境缺少密钥时使用开发密钥
func NewValidator(cfg *config.Config, logger logrus.FieldLogger) (*auth.TokenValidator, error) {
	secret := cfg.Auth.Secret
	if secret == "" && !config.IsProduction(cfg) {
		if logger != nil {
			logger.Warn("auth.secret is not set, using the development secret")
		}
		secret = devSecret
	}
	validator, err := auth.NewTokenValidator(secret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token validator: %w", err)
	}
	return validator, nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Kinds 获取记录类型
func (c *Container) Kinds() *workflow.Registry {
	return c.kinds
}

// Validator 获取 Token 验证器
func (c *Container) Validator() *auth.TokenValidator {
	return c.validator
}

// OpenFGAClient 获取 OpenFGA 客户端,未启用时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// Directory 获取部门目录,未启用 OpenFGA 时为 nil
func (c *Container) Directory() auth.DepartmentDirectory {
	if c.directory == nil {
		return nil
	}
	return c.directory
}

// Hub 获取推送 Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// RecordService 获取记录服务
func (c *Container) RecordService() service.RecordService {
	return c.records
}

// ExportService 获取导出服务
func (c *Container) ExportService() service.ExportService {
	return c.exports
}

// AuditLogService 获取审计日志服务
func (c *Container) AuditLogService() service.AuditLogService {
	return c.audit
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.stopHub != nil {
		c.stopHub()
	}
	if c.db != nil {
		return database.Close(c.db)
	}
	return nil
}
