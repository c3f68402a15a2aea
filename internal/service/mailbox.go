package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
)

// mailboxStore 邮箱服务需要的存储能力。
type mailboxStore interface {
	storage.MailboxRepository
	storage.SequenceAllocator
}

// MailboxService 管理按收件人组织的消息日志。
//
// 投递语义为至少一次：读取与修剪是两次独立调用，
// 客户端在两者之间崩溃时会再次看到同一批消息。
type MailboxService struct {
	store mailboxStore
	log   *zap.Logger
	now   func() time.Time
}

// NewMailboxService 创建邮箱服务。
func NewMailboxService(store mailboxStore, log *zap.Logger) *MailboxService {
	return &MailboxService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Append 为消息分配序号并写入收件人邮箱，返回分配到的序号。
//
// 序号在写入前分配，写入失败会留下空洞；序号只增不回收，
// 因此空洞不影响"严格递增、永不重复"的约束。
func (s *MailboxService) Append(ctx context.Context, msg *domain.Message) (uint64, error) {
	recipient := strings.TrimSpace(msg.To)
	if recipient == "" || strings.TrimSpace(msg.From) == "" {
		return 0, fmt.Errorf("%w: sender and recipient are required", domain.ErrMalformed)
	}

	exists, err := s.store.MailboxExists(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to check mailbox: %w", err)
	}
	if !exists {
		return 0, domain.ErrRecipientUnknown
	}

	seq, err := s.store.Next(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	msg.To = recipient
	msg.Sequence = seq
	if msg.Sent.IsZero() {
		msg.Sent = s.now()
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	s.log.Debug("message appended",
		zap.String("recipient", recipient),
		zap.Uint64("sequence", seq),
	)
	return seq, nil
}

// Read 返回序号严格大于 after 的消息，按序号升序。
// after 为 0 表示读取全部；没有新消息返回空切片，不是错误。
func (s *MailboxService) Read(ctx context.Context, recipient string, after uint64) ([]domain.Message, error) {
	exists, err := s.store.MailboxExists(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to check mailbox: %w", err)
	}
	if !exists {
		return nil, domain.ErrRecipientUnknown
	}

	messages, err := s.store.ListMessages(ctx, recipient, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Prune 删除序号小于等于 upto 的已确认消息。幂等。
func (s *MailboxService) Prune(ctx context.Context, recipient string, upto uint64) error {
	if err := s.store.DeleteMessages(ctx, recipient, upto); err != nil {
		return fmt.Errorf("failed to prune messages: %w", err)
	}
	return nil
}
