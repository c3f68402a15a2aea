package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
)

// LoginService 完成凭证校验并委托 Authority 签发令牌。
// 这是唯一接触明文密码的组件，密码只进入 hasher.Verify。
type LoginService struct {
	accounts  storage.AccountRepository
	authority *Authority
	hasher    PasswordHasher
	log       *zap.Logger
}

// NewLoginService 创建登录服务。hasher 为空时拒绝构造，
// 这是对"原系统明文占位"未决问题的硬性回答。
func NewLoginService(accounts storage.AccountRepository, authority *Authority, hasher PasswordHasher, log *zap.Logger) (*LoginService, error) {
	if hasher == nil {
		return nil, ErrNoHasher
	}
	return &LoginService{
		accounts:  accounts,
		authority: authority,
		hasher:    hasher,
		log:       log,
	}, nil
}

// Login 验证邮箱与密码，成功时签发新令牌（旧令牌随之失效）。
//
// 未知账户与密码错误都折叠为 ErrUnauthenticated，
// 不向客户端泄露具体是哪一项未通过；存储故障单独向上传递。
func (s *LoginService) Login(ctx context.Context, email, password string) (*domain.Token, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}

	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		s.log.Info("login rejected", zap.String("pseudonym", account.Pseudonym))
		return nil, domain.ErrUnauthenticated
	}

	return s.authority.Issue(ctx, account.Pseudonym)
}
