package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/auth"
	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/storage/memory"
)

func newRegisterFixture(t *testing.T) (*RegisterService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	service, err := NewRegisterService(store, auth.NewBcryptHasher(4), zap.NewNop())
	require.NoError(t, err)
	return service, store
}

func TestNewRegisterService_RequiresHasher(t *testing.T) {
	_, err := NewRegisterService(memory.NewStore(), nil, zap.NewNop())
	assert.ErrorIs(t, err, auth.ErrNoHasher)
}

func TestRegisterService_Register(t *testing.T) {
	ctx := context.Background()
	service, store := newRegisterFixture(t)

	t.Run("注册成功并建立邮箱", func(t *testing.T) {
		account, err := service.Register(ctx, "alice@example.com", "long enough", "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", account.Pseudonym)
		assert.NotEmpty(t, account.ID)
		assert.NotEqual(t, "long enough", account.PasswordHash, "password must not be stored in clear")

		exists, err := store.MailboxExists(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("邮箱地址重复", func(t *testing.T) {
		_, err := service.Register(ctx, "alice@example.com", "long enough", "alice2")
		assert.ErrorIs(t, err, domain.ErrEmailExists)
	})

	t.Run("化名重复", func(t *testing.T) {
		_, err := service.Register(ctx, "other@example.com", "long enough", "alice")
		assert.ErrorIs(t, err, domain.ErrPseudonymExists)
	})

	t.Run("非法邮箱地址", func(t *testing.T) {
		_, err := service.Register(ctx, "not-an-email", "long enough", "carol")
		assert.ErrorIs(t, err, domain.ErrMalformed)
	})

	t.Run("密码过短", func(t *testing.T) {
		_, err := service.Register(ctx, "carol@example.com", "short", "carol")
		assert.ErrorIs(t, err, domain.ErrMalformed)
	})

	t.Run("非法化名", func(t *testing.T) {
		_, err := service.Register(ctx, "carol@example.com", "long enough", "has space")
		assert.ErrorIs(t, err, domain.ErrMalformed)
		_, err = service.Register(ctx, "carol@example.com", "long enough", "")
		assert.ErrorIs(t, err, domain.ErrMalformed)
	})
}

func TestRegisterService_Contacts(t *testing.T) {
	ctx := context.Background()
	service, _ := newRegisterFixture(t)

	_, err := service.Register(ctx, "alice@example.com", "long enough", "alice")
	require.NoError(t, err)
	_, err = service.Register(ctx, "bob@example.com", "long enough", "bob")
	require.NoError(t, err)

	t.Run("添加并列出联系人", func(t *testing.T) {
		require.NoError(t, service.AddContact(ctx, "alice", "bob"))

		contacts, err := service.Contacts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, contacts)

		// 联系人是单向的
		contacts, err = service.Contacts(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, contacts)
	})

	t.Run("重复添加幂等", func(t *testing.T) {
		require.NoError(t, service.AddContact(ctx, "alice", "bob"))
		contacts, err := service.Contacts(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, contacts, 1)
	})

	t.Run("联系人必须已注册", func(t *testing.T) {
		err := service.AddContact(ctx, "alice", "mallory")
		assert.ErrorIs(t, err, domain.ErrRecipientUnknown)
	})
}
