package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/model"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池默认配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// poolConfigFrom 配置值优先,未设置的使用默认值
func poolConfigFrom(cfg config.DatabaseConfig) *PoolConfig {
	pool := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	return pool
}

// Connect 按驱动连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres", "":
		dialector = postgres.Open(BuildDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := poolConfigFrom(cfg)
	if cfg.Driver == "sqlite" {
		// SQLite 单写者
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb,手动建表
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(
			&model.RecordModel{},
			&model.ParticipantModel{},
			&model.StateHistoryModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// createSQLiteTables 为 SQLite 手动创建表(使用 TEXT 替代 jsonb)
func createSQLiteTables(db *gorm.DB) error {
	statements := []struct {
		table string
		ddl   string
	}{
		{"records", `
			CREATE TABLE IF NOT EXISTS records (
				id VARCHAR(64) PRIMARY KEY,
				kind VARCHAR(32) NOT NULL,
				batch_id VARCHAR(64),
				title VARCHAR(255),
				employee_id VARCHAR(64),
				employee_name VARCHAR(255),
				department VARCHAR(128),
				location VARCHAR(255),
				organizer VARCHAR(255),
				purpose TEXT,
				status VARCHAR(32) NOT NULL,
				start_at DATETIME NOT NULL,
				end_at DATETIME NOT NULL,
				remarks TEXT,
				attributes TEXT,
				created_by VARCHAR(64),
				approved_by VARCHAR(64),
				approved_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`},
		{"record_participants", `
			CREATE TABLE IF NOT EXISTS record_participants (
				id VARCHAR(64) PRIMARY KEY,
				record_id VARCHAR(64) NOT NULL REFERENCES records(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				employee_id VARCHAR(64) NOT NULL,
				name VARCHAR(255),
				attendance VARCHAR(32)
			)`},
		{"state_history", `
			CREATE TABLE IF NOT EXISTS state_history (
				id VARCHAR(64) PRIMARY KEY,
				record_id VARCHAR(64) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				from_state VARCHAR(32),
				to_state VARCHAR(32) NOT NULL,
				remarks TEXT,
				operator VARCHAR(64) NOT NULL,
				forced BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`},
		{"audit_logs", `
			CREATE TABLE IF NOT EXISTS audit_logs (
				id VARCHAR(64) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				action VARCHAR(64) NOT NULL,
				resource_type VARCHAR(32) NOT NULL,
				resource_id VARCHAR(64) NOT NULL,
				request_id VARCHAR(64),
				ip VARCHAR(45),
				user_agent TEXT,
				details TEXT,
				created_at DATETIME NOT NULL
			)`},
	}
	for _, s := range statements {
		if err := db.Exec(s.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}
	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		ddl  string
	}{
		{"idx_records_kind_status", "CREATE INDEX IF NOT EXISTS idx_records_kind_status ON records(kind, status)"},
		{"idx_records_kind_start", "CREATE INDEX IF NOT EXISTS idx_records_kind_start ON records(kind, start_at)"},
		{"idx_records_department", "CREATE INDEX IF NOT EXISTS idx_records_department ON records(department)"},
		{"idx_records_batch_id", "CREATE INDEX IF NOT EXISTS idx_records_batch_id ON records(batch_id)"},
		{"idx_records_created_by", "CREATE INDEX IF NOT EXISTS idx_records_created_by ON records(created_by)"},
		{"idx_participants_record_id", "CREATE INDEX IF NOT EXISTS idx_participants_record_id ON record_participants(record_id)"},
		{"idx_history_record_id", "CREATE INDEX IF NOT EXISTS idx_history_record_id ON state_history(record_id)"},
		{"idx_history_created_at", "CREATE INDEX IF NOT EXISTS idx_history_created_at ON state_history(created_at)"},
		{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
		{"idx_audit_user_id", "CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)"},
		{"idx_audit_created_at", "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)"},
	}
	for _, idx := range indexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_records_attributes_gin ON records USING GIN (attributes)").Error; err != nil {
			return fmt.Errorf("failed to create idx_records_attributes_gin: %w", err)
		}
	}
	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			if !CheckHealth(db) {
				err = fmt.Errorf("database ping failed")
			} else {
				return db, nil
			}
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}

// Close 关闭连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
