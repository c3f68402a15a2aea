package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
)

// Authenticator 校验 (token, pseudonym) 当前是否有效。
// chat-server 里由 auth.Gateway 实现。
type Authenticator interface {
	Authenticate(ctx context.Context, token, pseudonym string) bool
}

// Relay 是聊天服务的核心：认证发送方后投递消息、
// 认证收件人后读取并修剪邮箱。
type Relay struct {
	mailbox *MailboxService
	auth    Authenticator
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewRelay 创建消息中继。metrics 可为 nil（测试场景）。
func NewRelay(mailbox *MailboxService, auth Authenticator, metrics *monitoring.Metrics, log *zap.Logger) *Relay {
	return &Relay{
		mailbox: mailbox,
		auth:    auth,
		metrics: metrics,
		log:     log,
	}
}

// Send 认证发送方并把消息投入收件人邮箱，返回带序号的消息。
//
// 发送方身份取自消息的 From 字段，必须与令牌匹配；
// 认证失败返回 ErrUnauthenticated，收件人不存在返回
// ErrRecipientUnknown，存储故障原样向上传递。
func (r *Relay) Send(ctx context.Context, token string, msg *domain.Message) (*domain.Message, error) {
	if !r.auth.Authenticate(ctx, token, msg.From) {
		return nil, domain.ErrUnauthenticated
	}

	seq, err := r.mailbox.Append(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.Sequence = seq

	if r.metrics != nil {
		r.metrics.MessagesSent.Inc()
	}
	r.log.Info("message relayed",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.Uint64("sequence", seq),
	)
	return msg, nil
}

// Fetch 认证收件人后返回序号大于 cursor 的消息。
//
// cursor 大于 0 时视为对此前消息的确认，读取后顺带修剪；
// 修剪失败只记录日志不影响返回，消息会在下次确认时再次
// 被删除，最坏情况是客户端多收到一遍。
func (r *Relay) Fetch(ctx context.Context, token, pseudonym string, cursor uint64) ([]domain.Message, error) {
	if !r.auth.Authenticate(ctx, token, pseudonym) {
		return nil, domain.ErrUnauthenticated
	}

	messages, err := r.mailbox.Read(ctx, pseudonym, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox: %w", err)
	}

	if cursor > 0 {
		if err := r.mailbox.Prune(ctx, pseudonym, cursor); err != nil {
			r.log.Warn("failed to prune acknowledged messages",
				zap.String("recipient", pseudonym),
				zap.Uint64("cursor", cursor),
				zap.Error(err),
			)
		} else if r.metrics != nil {
			r.metrics.MessagesPruned.Inc()
		}
	}

	if r.metrics != nil {
		r.metrics.MessagesFetched.Add(float64(len(messages)))
	}
	return messages, nil
}
