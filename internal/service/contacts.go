package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/auth"
	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
)

// 注册入参约束
const (
	minPasswordLength = 8
	maxPseudonymLen   = 64
)

// registerStore 注册服务需要的存储能力。
type registerStore interface {
	storage.AccountRepository
	storage.MailboxRepository
}

// RegisterService 处理账户注册与联系人管理。
type RegisterService struct {
	store  registerStore
	hasher auth.PasswordHasher
	log    *zap.Logger
}

// NewRegisterService 创建注册服务。与登录服务一致，
// 缺少哈希能力时拒绝构造。
func NewRegisterService(store registerStore, hasher auth.PasswordHasher, log *zap.Logger) (*RegisterService, error) {
	if hasher == nil {
		return nil, auth.ErrNoHasher
	}
	return &RegisterService{
		store:  store,
		hasher: hasher,
		log:    log,
	}, nil
}

// Register 创建新账户并建立其邮箱。
//
// 邮箱地址或化名已被占用时分别返回 ErrEmailExists /
// ErrPseudonymExists；密码只以哈希形式落盘。
func (s *RegisterService) Register(ctx context.Context, email, password, pseudonym string) (*domain.Account, error) {
	email = strings.TrimSpace(email)
	pseudonym = strings.TrimSpace(pseudonym)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrMalformed)
	}
	if pseudonym == "" || len(pseudonym) > maxPseudonymLen || strings.ContainsAny(pseudonym, " /\x00") {
		return nil, fmt.Errorf("%w: invalid pseudonym", domain.ErrMalformed)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrMalformed, minPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Pseudonym:    pseudonym,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	// 邮箱在注册时创建；发送端以此区分"陌生收件人"与"空邮箱"
	if err := s.store.EnsureMailbox(ctx, pseudonym); err != nil {
		return nil, fmt.Errorf("failed to create mailbox: %w", err)
	}

	s.log.Info("account registered", zap.String("pseudonym", pseudonym))
	return account, nil
}

// AddContact 把 contact 加入 pseudonym 的联系人列表。
// contact 必须是已注册的化名；重复添加为幂等。
func (s *RegisterService) AddContact(ctx context.Context, pseudonym, contact string) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return fmt.Errorf("%w: contact is required", domain.ErrMalformed)
	}

	if _, err := s.store.GetAccountByPseudonym(ctx, contact); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrRecipientUnknown
		}
		return fmt.Errorf("failed to look up contact: %w", err)
	}

	if err := s.store.AddContact(ctx, pseudonym, contact); err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

// Contacts 返回 pseudonym 的联系人列表。
func (s *RegisterService) Contacts(ctx context.Context, pseudonym string) ([]string, error) {
	contacts, err := s.store.ListContacts(ctx, pseudonym)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}
