// Package token 签发与校验 HS256 访问令牌，并维护吊销列表
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired 令牌已过期
	ErrExpired = errors.New("token: expired")
	// ErrInvalid 令牌无效（签名、格式、签发方或声明错误）
	ErrInvalid = errors.New("token: invalid")
	// ErrRevoked 令牌已吊销
	ErrRevoked = fmt.Errorf("%w: revoked", ErrInvalid)
)

// Claims 访问令牌声明
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager 令牌管理器
// 吊销集合由 bloom 过滤器做快速否定判断，命中后再查精确集合
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time

	cfg     Config
	mu      sync.RWMutex
	filter  *bloom.BloomFilter
	revoked map[string]time.Time // jti -> 令牌过期时间
}

// Option 管理器选项
type Option func(*Manager)

// WithClock 替换时钟（测试使用）
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建令牌管理器
func NewManager(cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("token: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		now:     time.Now,
		cfg:     *cfg,
		filter:  bloom.NewWithEstimates(cfg.RevocationCapacity, cfg.FalsePositiveRate),
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(m.now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	m.parser = jwt.NewParser(parserOpts...)
	return m, nil
}

// Issue 为用户签发访问令牌
func (m *Manager) Issue(userID, email string) (string, *Claims, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("token: user id is required")
	}
	now := m.now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Verify 校验令牌，返回 ErrExpired、ErrRevoked 或 ErrInvalid
func (m *Manager) Verify(_ context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	if m.isRevoked(claims.ID) {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke 吊销令牌；已过期的令牌无需吊销
func (m *Manager) Revoke(raw string) (*Claims, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	m.RevokeID(claims.ID, claims.ExpiresAt.Time)
	return claims, nil
}

// RevokeID 按 jti 吊销，expiresAt 之后可被清理
func (m *Manager) RevokeID(id string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter.AddString(id)
	m.revoked[id] = expiresAt
}

// Prune 清理已过期的吊销记录并重建过滤器，返回清理数量
func (m *Manager) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, exp := range m.revoked {
		if now.After(exp.Add(m.cfg.Leeway)) {
			delete(m.revoked, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	m.filter = bloom.NewWithEstimates(m.cfg.RevocationCapacity, m.cfg.FalsePositiveRate)
	for id := range m.revoked {
		m.filter.AddString(id)
	}
	return removed
}

// RevokedCount 当前吊销记录数
func (m *Manager) RevokedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.revoked)
}

func (m *Manager) isRevoked(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.filter.TestString(id) {
		return false
	}
	_, ok := m.revoked[id]
	return ok
}

func (m *Manager) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalid)
	}
	return claims, nil
}
