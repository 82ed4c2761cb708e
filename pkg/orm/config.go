package orm

import (
	"fmt"
	"time"
)

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType `mapstructure:"type"` // mysql, postgres, sqlite, sqlserver
	DSN  string `mapstructure:"dsn"`

	// 连接池
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// GORM
	SkipDefaultTransaction bool `mapstructure:"skip_default_transaction"`
	PrepareStmt            bool `mapstructure:"prepare_stmt"`

	// 日志：silent, error, warn, info
	LogLevel      string        `mapstructure:"log_level"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	// 命名策略
	TablePrefix   string `mapstructure:"table_prefix"`
	SingularTable bool   `mapstructure:"singular_table"`

	// 链路追踪
	Tracing  bool `mapstructure:"tracing"`
	TraceSQL bool `mapstructure:"trace_sql"` // 记录完整 SQL，可能包含敏感数据

	// 读写分离（可选）
	ReadWriteSplit *ReadWriteSplitConfig `mapstructure:"read_write_split"`
}

// ReadWriteSplitConfig 读写分离配置
type ReadWriteSplitConfig struct {
	Sources []string `mapstructure:"sources"` // 从库 DSN 列表
	Policy  string   `mapstructure:"policy"`  // random, round_robin

	MaxIdleConns int `mapstructure:"max_idle_conns"` // 0 表示沿用主库配置
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "file:marquee.db?_foreign_keys=on",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
		Tracing:         true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("orm: dsn is required")
	}
	if _, err := dialector(c.Type, c.DSN); err != nil {
		return err
	}
	if rw := c.ReadWriteSplit; rw != nil && len(rw.Sources) == 0 {
		return fmt.Errorf("orm: read-write split enabled but no sources provided")
	}
	return nil
}
