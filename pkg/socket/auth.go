package socket

import (
	"context"
	"errors"
	"strings"
)

// Identity 连接上的已认证用户
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// TokenVerifier 访问令牌校验器
//
// 过期与无效需分别包装 ErrTokenExpired / ErrTokenInvalid 返回。
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*Identity, error)
}

// TokenVerifierFunc 函数适配器
type TokenVerifierFunc func(ctx context.Context, token string) (*Identity, error)

// VerifyAccessToken 实现 TokenVerifier
func (f TokenVerifierFunc) VerifyAccessToken(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// AuthService 连接认证服务
type AuthService struct {
	verifier TokenVerifier
}

// NewAuthService 创建认证服务
func NewAuthService(verifier TokenVerifier) *AuthService {
	return &AuthService{verifier: verifier}
}

// Authenticate 从握手中提取令牌并校验，成功后将身份挂载到连接
func (s *AuthService) Authenticate(ctx context.Context, conn *Conn) error {
	token := ExtractToken(conn.Handshake())
	if token == "" {
		return &AuthError{Message: MsgNoToken}
	}
	if s.verifier == nil {
		return &AuthError{Message: MsgAuthFailed}
	}

	id, err := s.verifier.VerifyAccessToken(ctx, token)
	if err != nil {
		return classifyAuthError(err)
	}
	if id == nil || id.UserID == "" {
		return &AuthError{Message: MsgTokenInvalid}
	}
	conn.SetIdentity(id)
	return nil
}

// classifyAuthError 区分过期、无效与其他失败
func classifyAuthError(err error) error {
	var ae *AuthError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, ErrTokenExpired):
		return &AuthError{Message: MsgTokenExpired, Err: err}
	case errors.Is(err, ErrTokenInvalid):
		return &AuthError{Message: MsgTokenInvalid, Err: err}
	default:
		return &AuthError{Message: MsgAuthFailed, Err: err}
	}
}

// IsAuthenticated 连接是否已挂载身份
func (s *AuthService) IsAuthenticated(conn *Conn) bool {
	return conn.Identity() != nil
}

// GetUser 获取连接身份
func (s *AuthService) GetUser(conn *Conn) (*Identity, bool) {
	id := conn.Identity()
	return id, id != nil
}

// RequireAuth 获取身份，未认证返回 *AuthError
func (s *AuthService) RequireAuth(conn *Conn) (*Identity, error) {
	id := conn.Identity()
	if id == nil {
		return nil, &AuthError{Message: MsgAuthRequired}
	}
	return id, nil
}

// GlobalAuthEventMiddleware 需认证命名空间下，每个事件最先执行的中间件
func (s *AuthService) GlobalAuthEventMiddleware(_ context.Context, conn *Conn, _ any) (bool, error) {
	if conn.Identity() == nil {
		return false, &AuthError{Message: MsgAuthRequired}
	}
	return true, nil
}

// Guard 连接级认证守卫
func (s *AuthService) Guard() Guard {
	return func(ctx context.Context, conn *Conn) error {
		return s.Authenticate(ctx, conn)
	}
}

// ExtractToken 提取握手令牌，显式 token 字段优先于 Authorization 头
func ExtractToken(h Handshake) string {
	if t := strings.TrimSpace(h.Token); t != "" {
		return t
	}
	auth := strings.TrimSpace(h.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
