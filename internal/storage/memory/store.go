package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// Store 使用内存保存账户、令牌与邮箱数据，主要用于开发与测试。
//
// 序号分配在每个邮箱自己的互斥锁下完成，不同收件人的流量
// 互不阻塞；外层 RWMutex 只保护 map 结构本身。
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account // pseudonym -> account
	byEmail   map[string]string          // email -> pseudonym
	tokens    map[string]*domain.Token   // pseudonym -> token
	byValue   map[string]string          // token value -> pseudonym
	mailboxes map[string]*mailbox        // recipient -> mailbox
}

// mailbox 单个收件人的消息日志与序号计数器。
type mailbox struct {
	mu       sync.Mutex
	created  bool
	nextSeq  uint64
	messages []domain.Message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*domain.Account),
		byEmail:   make(map[string]string),
		tokens:    make(map[string]*domain.Token),
		byValue:   make(map[string]string),
		mailboxes: make(map[string]*mailbox),
	}
}

// ========== Account Repository ==========

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return domain.ErrEmailExists
	}
	if _, ok := s.accounts[account.Pseudonym]; ok {
		return domain.ErrPseudonymExists
	}

	clone := *account
	clone.Contacts = append([]string(nil), account.Contacts...)
	s.accounts[account.Pseudonym] = &clone
	s.byEmail[account.Email] = account.Pseudonym
	return nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pseudonym, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(s.accounts[pseudonym]), nil
}

func (s *Store) GetAccountByPseudonym(ctx context.Context, pseudonym string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[pseudonym]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (s *Store) AddContact(ctx context.Context, pseudonym, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[pseudonym]
	if !ok {
		return domain.ErrNotFound
	}
	for _, existing := range account.Contacts {
		if existing == contact {
			return nil
		}
	}
	account.Contacts = append(account.Contacts, contact)
	return nil
}

func (s *Store) ListContacts(ctx context.Context, pseudonym string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[pseudonym]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), account.Contacts...), nil
}

// ========== Token Repository ==========

func (s *Store) SaveToken(ctx context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 同一账户的旧令牌被覆盖后即刻失效
	if old, ok := s.tokens[token.Pseudonym]; ok {
		delete(s.byValue, old.Value)
	}

	clone := *token
	s.tokens[token.Pseudonym] = &clone
	s.byValue[token.Value] = token.Pseudonym
	return nil
}

func (s *Store) GetToken(ctx context.Context, pseudonym string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[pseudonym]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pseudonym, ok := s.byValue[value]
	if !ok {
		return nil
	}
	delete(s.byValue, value)
	delete(s.tokens, pseudonym)
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for pseudonym, token := range s.tokens {
		expiresAt, err := token.ExpiresAt()
		// 损坏的记录一并清除
		if err != nil || expiresAt.Before(before) {
			delete(s.byValue, token.Value)
			delete(s.tokens, pseudonym)
			count++
		}
	}
	return count, nil
}

// ========== Mailbox Repository ==========

func (s *Store) EnsureMailbox(ctx context.Context, recipient string) error {
	box := s.getMailbox(recipient, true)
	box.mu.Lock()
	box.created = true
	box.mu.Unlock()
	return nil
}

func (s *Store) MailboxExists(ctx context.Context, recipient string) (bool, error) {
	s.mu.RLock()
	box, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	box.mu.Lock()
	defer box.mu.Unlock()
	return box.created, nil
}

func (s *Store) AppendMessage(ctx context.Context, message *domain.Message) error {
	s.mu.RLock()
	box, ok := s.mailboxes[message.To]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrRecipientUnknown
	}

	box.mu.Lock()
	defer box.mu.Unlock()
	if !box.created {
		return domain.ErrRecipientUnknown
	}
	box.messages = append(box.messages, *message)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, recipient string, after uint64) ([]domain.Message, error) {
	s.mu.RLock()
	box, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRecipientUnknown
	}

	box.mu.Lock()
	defer box.mu.Unlock()
	if !box.created {
		return nil, domain.ErrRecipientUnknown
	}

	result := make([]domain.Message, 0, len(box.messages))
	for _, msg := range box.messages {
		if msg.Sequence > after {
			result = append(result, msg)
		}
	}
	// 并发写入可能乱序落盘，读取时按序号恢复顺序
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

func (s *Store) DeleteMessages(ctx context.Context, recipient string, upto uint64) error {
	s.mu.RLock()
	box, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	box.mu.Lock()
	defer box.mu.Unlock()

	kept := box.messages[:0]
	for _, msg := range box.messages {
		if msg.Sequence > upto {
			kept = append(kept, msg)
		}
	}
	box.messages = kept
	return nil
}

// ========== Sequence Allocator ==========

// Next 在邮箱自己的锁下自增计数器，等价于对该键的原子
// fetch-and-increment；不同键从不互相等待。
// 未注册的键直接拒绝，不为其留下任何状态。
func (s *Store) Next(ctx context.Context, key string) (uint64, error) {
	box := s.getMailbox(key, false)
	if box == nil {
		return 0, domain.ErrRecipientUnknown
	}

	box.mu.Lock()
	defer box.mu.Unlock()
	if !box.created {
		return 0, domain.ErrRecipientUnknown
	}
	box.nextSeq++
	return box.nextSeq, nil
}

// ========== Lifecycle ==========

func (s *Store) Close() error { return nil }

func (s *Store) Health() error { return nil }

func (s *Store) getMailbox(recipient string, create bool) *mailbox {
	s.mu.RLock()
	box, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if ok || !create {
		return box
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if box, ok = s.mailboxes[recipient]; ok {
		return box
	}
	box = &mailbox{}
	s.mailboxes[recipient] = box
	return box
}

func cloneAccount(account *domain.Account) *domain.Account {
	clone := *account
	clone.Contacts = append([]string(nil), account.Contacts...)
	return &clone
}
