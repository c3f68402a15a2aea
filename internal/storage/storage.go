package storage

import (
	"context"
	"time"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// AccountRepository 定义账户数据存取操作。
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByPseudonym(ctx context.Context, pseudonym string) (*domain.Account, error)
	AddContact(ctx context.Context, pseudonym, contact string) error
	ListContacts(ctx context.Context, pseudonym string) ([]string, error)
}

// TokenRepository 定义令牌数据存取操作。
//
// SaveToken 按 pseudonym 作 upsert：同一账户重新签发时
// 原子地覆盖旧记录，这是"每账户至多一个存活令牌"不变量的
// 存储层表达。
type TokenRepository interface {
	SaveToken(ctx context.Context, token *domain.Token) error
	GetToken(ctx context.Context, pseudonym string) (*domain.Token, error)
	DeleteToken(ctx context.Context, value string) error
	// DeleteExpiredTokens 删除过期时间早于 before 的令牌，返回删除数量。
	// 由后台清理任务周期调用；解析失败的损坏记录一并删除。
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error)
}

// SequenceAllocator 为每个邮箱键分配严格递增的序号，从 1 开始。
//
// 同一键上的并发调用必须表现为原子自增：不允许重复值。
// 允许出现空洞（分配后写入失败）；不同键之间互不阻塞。
// 从未建立邮箱的键返回 domain.ErrRecipientUnknown，
// 实现不得为这样的键留下计数状态。
type SequenceAllocator interface {
	Next(ctx context.Context, key string) (uint64, error)
}

// MailboxRepository 定义按收件人组织的消息日志存取操作。
type MailboxRepository interface {
	// EnsureMailbox 为收件人创建邮箱（注册时调用），重复调用为幂等。
	EnsureMailbox(ctx context.Context, recipient string) error
	// MailboxExists 区分"没有新消息"与"没有这个用户"。
	MailboxExists(ctx context.Context, recipient string) (bool, error)
	// AppendMessage 持久化一条已分配序号的消息。
	AppendMessage(ctx context.Context, message *domain.Message) error
	// ListMessages 返回序号严格大于 after 的消息，按序号升序。
	ListMessages(ctx context.Context, recipient string, after uint64) ([]domain.Message, error)
	// DeleteMessages 删除序号 <= upto 的消息。幂等。
	DeleteMessages(ctx context.Context, recipient string, upto uint64) error
}

// Store 聚合所有存储接口。
type Store interface {
	AccountRepository
	TokenRepository
	MailboxRepository
	SequenceAllocator

	Close() error
	Health() error
}
