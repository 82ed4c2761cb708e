package token

import (
	"fmt"
	"time"
)

// Config 令牌配置
type Config struct {
	Secret string        `mapstructure:"secret"` // HS256 密钥，至少 32 字节
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`    // 签发有效期
	Leeway time.Duration `mapstructure:"leeway"` // 时钟偏差容忍

	// 吊销过滤器容量与误判率
	RevocationCapacity uint    `mapstructure:"revocation_capacity"`
	FalsePositiveRate  float64 `mapstructure:"false_positive_rate"`
}

// DefaultConfig 返回默认配置（Secret 需调用方提供）
func DefaultConfig() *Config {
	return &Config{
		Issuer:             "marquee",
		TTL:                24 * time.Hour,
		Leeway:             30 * time.Second,
		RevocationCapacity: 100_000,
		FalsePositiveRate:  0.001,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("token: secret must be at least 32 bytes")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("token: ttl must be positive")
	}
	if c.RevocationCapacity == 0 {
		return fmt.Errorf("token: revocation capacity must be positive")
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		return fmt.Errorf("token: false positive rate must be in (0, 1)")
	}
	return nil
}
