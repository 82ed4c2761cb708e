package orm

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/marquee/pkg/logger"
)

// New 创建 GORM 数据库实例；log 为 nil 时不输出 SQL 日志
func New(cfg *Config, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	dial, _ := dialector(cfg.Type, cfg.DSN)
	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: cfg.SkipDefaultTransaction,
		PrepareStmt:            cfg.PrepareStmt,
		Logger:                 NewLogger(log, cfg.LogLevel, cfg.SlowThreshold),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   cfg.TablePrefix,
			SingularTable: cfg.SingularTable,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orm: get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if cfg.ReadWriteSplit != nil {
		if err := useReplicas(db, cfg); err != nil {
			return nil, fmt.Errorf("orm: setup read-write split: %w", err)
		}
	}

	if cfg.Tracing {
		if err := db.Use(NewTracingPlugin(WithSQLTrace(cfg.TraceSQL))); err != nil {
			return nil, fmt.Errorf("orm: register tracing: %w", err)
		}
	}

	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialector(dbType DBType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case MySQL:
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLite:
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("orm: unsupported database type: %q", dbType)
	}
}

// useReplicas 注册只读从库
func useReplicas(db *gorm.DB, cfg *Config) error {
	rw := cfg.ReadWriteSplit
	replicas := make([]gorm.Dialector, 0, len(rw.Sources))
	for _, dsn := range rw.Sources {
		d, err := dialector(cfg.Type, dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, d)
	}

	var policy dbresolver.Policy = dbresolver.RandomPolicy{}
	if rw.Policy == "round_robin" {
		policy = dbresolver.RoundRobinPolicy()
	}

	resolver := dbresolver.Register(dbresolver.Config{Replicas: replicas, Policy: policy})
	if err := db.Use(resolver); err != nil {
		return err
	}

	// 连接池参数需在插件初始化之后设置
	if rw.MaxIdleConns > 0 {
		resolver.SetMaxIdleConns(rw.MaxIdleConns)
	}
	if rw.MaxOpenConns > 0 {
		resolver.SetMaxOpenConns(rw.MaxOpenConns)
	}
	return nil
}
