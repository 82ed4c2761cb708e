package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokmz/marquee/pkg/socket"
	"github.com/tokmz/marquee/pkg/token"
)

// Verifier 将令牌管理器适配为 socket 握手校验器
// 过期映射为 socket.ErrTokenExpired，其余失败（含已吊销）映射为 socket.ErrTokenInvalid
func Verifier(m *token.Manager) socket.TokenVerifier {
	return socket.TokenVerifierFunc(func(ctx context.Context, raw string) (*socket.Identity, error) {
		claims, err := m.Verify(ctx, raw)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, fmt.Errorf("%w: %w", socket.ErrTokenExpired, err)
		case err != nil:
			return nil, fmt.Errorf("%w: %w", socket.ErrTokenInvalid, err)
		}
		return &socket.Identity{UserID: claims.Subject, Email: claims.Email}, nil
	})
}
