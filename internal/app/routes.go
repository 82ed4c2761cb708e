package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/marquee"
	"github.com/tokmz/marquee/middleware"
	"github.com/tokmz/marquee/pkg/errors"
	"github.com/tokmz/marquee/pkg/socket"
)

// HealthPath 存活探针
const HealthPath = "/healthz"

// HealthResponse 存活探针响应
type HealthResponse struct {
	Status      string                           `json:"status"`
	Uptime      string                           `json:"uptime"`
	Connections int                              `json:"connections"`
	Namespaces  map[string]socket.NamespaceStats `json:"namespaces"`
}

// IssueRequest 签发令牌请求
type IssueRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// IssueResponse 签发令牌响应
type IssueResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RevokeResponse 吊销令牌响应
type RevokeResponse struct {
	Revoked      bool   `json:"revoked"`
	TokenID      string `json:"tokenId"`
	Disconnected int    `json:"disconnected"`
}

func (a *App) routes() error {
	quiet := []string{HealthPath}
	if a.metrics != nil {
		quiet = append(quiet, a.cfg.Metrics.Path)
	}

	a.engine.Use(marquee.Logger(a.log, &marquee.LoggerConfig{ExcludePaths: quiet}))

	tc := middleware.DefaultTracingConfig()
	tc.ExcludePaths = quiet
	tc.ExcludePrefixes = []string{a.socket.Path() + "/"}
	a.engine.Use(middleware.Tracing(tc))

	cc := middleware.DefaultCORSConfig()
	if len(a.cfg.HTTP.CORS.AllowOrigins) > 0 {
		cc.AllowOrigins = a.cfg.HTTP.CORS.AllowOrigins
	}
	cc.AllowCredentials = a.cfg.HTTP.CORS.AllowCredentials
	if a.cfg.HTTP.CORS.MaxAge > 0 {
		cc.MaxAge = a.cfg.HTTP.CORS.MaxAge
	}
	a.engine.Use(middleware.CORS(cc))

	root := a.engine.RouterGroup()
	marquee.GETOnly[HealthResponse](root, HealthPath, a.health)
	if a.metrics != nil {
		root.GET(a.cfg.Metrics.Path, marquee.FromHTTP(a.metrics.Handler()))
	}

	api := a.engine.Group("/api")
	marquee.POSTOnly[RevokeResponse](api, "/sessions/revoke", a.revokeSession)
	if a.cfg.Auth.AllowIssue {
		a.log.Warn("token issuing endpoint enabled", zap.String("path", "/api/sessions"))
		marquee.POST[IssueRequest, IssueResponse](api, "/sessions", a.issueSession)
	}

	var guard []marquee.HandlerFunc
	if rl := a.cfg.HTTP.RateLimit; rl.RequestsPerSecond > 0 {
		guard = append(guard, middleware.RateLimit(&middleware.RateLimiterConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			Idle:              rl.Idle,
			Logger:            a.log,
		}))
	}
	root.Mount(a.socket.Path(), a.socket, guard...)
	return nil
}

// ============ 处理函数 ============

func (a *App) health(*marquee.Context) (*HealthResponse, error) {
	return &HealthResponse{
		Status:      "ok",
		Uptime:      time.Since(a.started).Truncate(time.Second).String(),
		Connections: a.socket.ConnectionCount(),
		Namespaces:  a.socket.Stats(),
	}, nil
}

// revokeSession 吊销请求携带的令牌并断开该用户的全部连接
func (a *App) revokeSession(c *marquee.Context) (*RevokeResponse, error) {
	raw := c.BearerToken()
	if raw == "" {
		return nil, errors.ErrUnauthorized.WithMessage("missing bearer token")
	}
	claims, err := a.tokens.Revoke(raw)
	if err != nil {
		return nil, errors.ErrUnauthorized.WithError(err)
	}
	n := a.socket.DisconnectUser(claims.Subject, "token revoked")
	a.log.InfoContext(c.RequestContext(), "session revoked",
		zap.String("token_id", claims.ID),
		zap.String("user_id", claims.Subject),
		zap.Int("disconnected", n),
	)
	return &RevokeResponse{Revoked: true, TokenID: claims.ID, Disconnected: n}, nil
}

func (a *App) issueSession(_ *marquee.Context, req *IssueRequest) (*IssueResponse, error) {
	raw, claims, err := a.tokens.Issue(req.UserID, req.Email)
	if err != nil {
		return nil, errors.ErrBadRequest.WithError(err)
	}
	return &IssueResponse{Token: raw, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}
