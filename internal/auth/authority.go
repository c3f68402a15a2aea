package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
)

// tokenBytes 令牌随机熵长度（256 位）。
const tokenBytes = 32

// Authority 负责令牌的签发、校验与注销。
//
// 每账户状态机：无令牌 -> 存活 -> 过期/被取代 -> 无令牌。
// 签发依赖存储层的 upsert 原子性，使"每账户至多一个存活令牌"
// 成立：新令牌落盘即废弃旧令牌，无论旧令牌是否到期。
type Authority struct {
	tokens storage.TokenRepository
	log    *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthority 创建令牌机构。ttl 为令牌有效期。
func NewAuthority(tokens storage.TokenRepository, ttl time.Duration, log *zap.Logger) *Authority {
	return &Authority{
		tokens: tokens,
		log:    log,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 为已完成凭证校验的账户签发新令牌。
// 凭证比对发生在上一层（LoginService），这里只负责令牌本身。
func (a *Authority) Issue(ctx context.Context, pseudonym string) (*domain.Token, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	issuedAt := a.now()
	token := &domain.Token{
		Value:     base64.StdEncoding.EncodeToString(raw),
		Pseudonym: pseudonym,
		IssuedAt:  issuedAt,
		Expiry:    issuedAt.Add(a.ttl).Format(domain.ISO8601),
	}

	if err := a.tokens.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	a.log.Info("token issued", zap.String("pseudonym", pseudonym))
	return token, nil
}

// Validate 校验 (token, pseudonym) 是否当前有效，返回过期时间。
//
// 认证失败统一返回 domain.ErrUnauthenticated，不泄露失败原因；
// 存储故障原样向上传递，调用方不得将其误报为认证失败。
// 过期或损坏的记录在发现时即删除，避免每次校验重复处理。
func (a *Authority) Validate(ctx context.Context, token, pseudonym string) (time.Time, error) {
	stored, err := a.tokens.GetToken(ctx, pseudonym)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return time.Time{}, domain.ErrUnauthenticated
		}
		return time.Time{}, err
	}

	// 精确比对，顺带抹平时序侧信道
	if subtle.ConstantTimeCompare([]byte(stored.Value), []byte(token)) != 1 {
		return time.Time{}, domain.ErrUnauthenticated
	}

	expiresAt, err := stored.ExpiresAt()
	if err != nil {
		// 记录已损坏：删除而不是当作有效或反复重试
		a.log.Warn("deleting token with unparsable expiry",
			zap.String("pseudonym", pseudonym),
			zap.String("expiry", stored.Expiry),
		)
		if delErr := a.tokens.DeleteToken(ctx, stored.Value); delErr != nil {
			a.log.Error("failed to delete corrupt token", zap.Error(delErr))
		}
		return time.Time{}, domain.ErrUnauthenticated
	}

	if !a.now().Before(expiresAt) {
		a.log.Debug("token expired",
			zap.String("pseudonym", pseudonym),
			zap.Duration("overdue", a.now().Sub(expiresAt)),
		)
		if delErr := a.Invalidate(ctx, stored.Value); delErr != nil {
			a.log.Error("failed to delete expired token", zap.Error(delErr))
		}
		return time.Time{}, domain.ErrUnauthenticated
	}

	return expiresAt, nil
}

// Invalidate 显式注销一个令牌（提前回收，或校验时发现已过期）。
func (a *Authority) Invalidate(ctx context.Context, token string) error {
	return a.tokens.DeleteToken(ctx, token)
}

// SweepExpired 删除所有已过期或损坏的令牌记录，返回删除数量。
// 由 login-server 的后台任务周期调用。
func (a *Authority) SweepExpired(ctx context.Context) (int, error) {
	return a.tokens.DeleteExpiredTokens(ctx, a.now())
}

// WithClock 替换时间源，仅测试使用。
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}
