package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/MorMundHS-MA/repo-03/internal/config"
)

// ErrNoHasher 未配置密码哈希能力。启动期错误，不允许明文回退。
var ErrNoHasher = errors.New("no password hasher configured")

// PasswordHasher 密码哈希能力。算法选择不在本仓库固化，
// 由部署方通过配置注入；服务只依赖这个接口。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// BcryptHasher 基于 bcrypt 的默认实现。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher 创建 bcrypt 哈希器。cost 超出合法区间时取默认值。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// NewHasherFromConfig 根据配置构造哈希器。
// 配置缺失或方案未知返回 ErrNoHasher，调用方应当终止启动。
func NewHasherFromConfig(cfg config.PasswordConfig) (PasswordHasher, error) {
	switch cfg.Hasher {
	case "bcrypt":
		return NewBcryptHasher(cfg.BcryptCost), nil
	case "":
		return nil, ErrNoHasher
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrNoHasher, cfg.Hasher)
	}
}
