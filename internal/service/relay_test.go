package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage/memory"
)

// allowAuth 放行固定 (token, pseudonym) 组合的认证桩。
type allowAuth map[string]string

func (a allowAuth) Authenticate(ctx context.Context, token, pseudonym string) bool {
	return a[pseudonym] == token && token != ""
}

func newRelayFixture(t *testing.T, recipients ...string) (*Relay, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, r := range recipients {
		require.NoError(t, store.EnsureMailbox(ctx, r))
	}
	mailbox := NewMailboxService(store, zap.NewNop())
	relay := NewRelay(mailbox, allowAuth{"alice": "tok-a", "bob": "tok-b"}, nil, zap.NewNop())
	return relay, store
}

func TestRelay_Send(t *testing.T) {
	ctx := context.Background()
	relay, _ := newRelayFixture(t, "alice", "bob")

	t.Run("投递成功并分配序号", func(t *testing.T) {
		msg, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", To: "bob", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), msg.Sequence)
		assert.False(t, msg.Sent.IsZero())

		msg2, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", To: "bob", Text: "again"})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), msg2.Sequence)
	})

	t.Run("令牌无效拒绝", func(t *testing.T) {
		_, err := relay.Send(ctx, "bad-token", &domain.Message{From: "alice", To: "bob", Text: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("令牌与发送方不匹配拒绝", func(t *testing.T) {
		_, err := relay.Send(ctx, "tok-b", &domain.Message{From: "alice", To: "bob", Text: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("收件人不存在", func(t *testing.T) {
		_, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", To: "mallory", Text: "x"})
		assert.ErrorIs(t, err, domain.ErrRecipientUnknown)
	})

	t.Run("缺少收件人", func(t *testing.T) {
		_, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", Text: "x"})
		assert.ErrorIs(t, err, domain.ErrMalformed)
	})
}

func TestRelay_Fetch(t *testing.T) {
	ctx := context.Background()
	relay, _ := newRelayFixture(t, "alice", "bob")

	for _, text := range []string{"one", "two", "three"} {
		_, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", To: "bob", Text: text})
		require.NoError(t, err)
	}

	t.Run("游标 0 返回全部", func(t *testing.T) {
		messages, err := relay.Fetch(ctx, "tok-b", "bob", 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "one", messages[0].Text)
		assert.Equal(t, uint64(3), messages[2].Sequence)
	})

	t.Run("游标确认后修剪已读消息", func(t *testing.T) {
		messages, err := relay.Fetch(ctx, "tok-b", "bob", 2)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "three", messages[0].Text)

		// 序号 <= 2 的消息已删除，游标 0 只剩最后一条
		messages, err = relay.Fetch(ctx, "tok-b", "bob", 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, uint64(3), messages[0].Sequence)
	})

	t.Run("空邮箱返回空切片", func(t *testing.T) {
		messages, err := relay.Fetch(ctx, "tok-a", "alice", 0)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("未认证读取被拒", func(t *testing.T) {
		_, err := relay.Fetch(ctx, "tok-a", "bob", 0)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("未知收件人", func(t *testing.T) {
		relayAny := NewRelay(NewMailboxService(memory.NewStore(), zap.NewNop()),
			allowAuth{"ghost": "tok-g"}, nil, zap.NewNop())
		_, err := relayAny.Fetch(ctx, "tok-g", "ghost", 0)
		assert.ErrorIs(t, err, domain.ErrRecipientUnknown)
	})
}

func TestRelay_FetchIsAtLeastOnce(t *testing.T) {
	ctx := context.Background()
	relay, _ := newRelayFixture(t, "alice", "bob")

	_, err := relay.Send(ctx, "tok-a", &domain.Message{From: "alice", To: "bob", Text: "hello"})
	require.NoError(t, err)

	// 客户端在确认前重复读取，同一条消息应反复可见
	for i := 0; i < 3; i++ {
		messages, err := relay.Fetch(ctx, "tok-b", "bob", 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
	}

	// 确认后消失
	_, err = relay.Fetch(ctx, "tok-b", "bob", 1)
	require.NoError(t, err)
	messages, err := relay.Fetch(ctx, "tok-b", "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMailboxService_SequencePerRecipient(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.EnsureMailbox(ctx, "alice"))
	require.NoError(t, store.EnsureMailbox(ctx, "bob"))
	mailbox := NewMailboxService(store, zap.NewNop())

	seqA, err := mailbox.Append(ctx, &domain.Message{From: "x", To: "alice", Text: "1", Sent: time.Now()})
	require.NoError(t, err)
	seqB, err := mailbox.Append(ctx, &domain.Message{From: "x", To: "bob", Text: "1", Sent: time.Now()})
	require.NoError(t, err)

	// 每个邮箱的序号独立从 1 开始
	assert.Equal(t, uint64(1), seqA)
	assert.Equal(t, uint64(1), seqB)
}
