package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// uniqueViolation PostgreSQL 唯一约束冲突的 SQLSTATE。
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	pseudonym     TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	contacts      TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tokens (
	pseudonym TEXT PRIMARY KEY,
	value     TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL,
	expiry    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tokens_value_idx ON tokens (value);

CREATE TABLE IF NOT EXISTS mailboxes (
	recipient  TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	recipient TEXT NOT NULL REFERENCES mailboxes (recipient),
	seq       BIGINT NOT NULL,
	sender    TEXT NOT NULL,
	sent      TIMESTAMPTZ NOT NULL,
	body      TEXT NOT NULL,
	PRIMARY KEY (recipient, seq)
);

CREATE TABLE IF NOT EXISTS sequence_counters (
	key  TEXT PRIMARY KEY,
	next BIGINT NOT NULL
);
`

// Store 基于 PostgreSQL 的存储实现。
//
// 序号分配依赖单条 upsert 语句的行级原子性，令牌的
// "每账户一条存活记录"依赖 tokens.pseudonym 主键上的 upsert。
type Store struct {
	client *Client
	log    *zap.Logger
}

// NewStore 创建存储实例并建表。
func NewStore(client *Client, log *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.Pool().Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{client: client, log: log}, nil
}

// ========== Account Repository ==========

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.client.Pool().Exec(ctx,
		`INSERT INTO accounts (pseudonym, id, email, password_hash, contacts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.Pseudonym, account.ID, account.Email, account.PasswordHash, account.Contacts, account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "accounts_email_key" {
				return domain.ErrEmailExists
			}
			return domain.ErrPseudonymExists
		}
		return storageErr("insert account", err)
	}
	return nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.getAccount(ctx,
		`SELECT pseudonym, id, email, password_hash, contacts, created_at FROM accounts WHERE email = $1`, email)
}

func (s *Store) GetAccountByPseudonym(ctx context.Context, pseudonym string) (*domain.Account, error) {
	return s.getAccount(ctx,
		`SELECT pseudonym, id, email, password_hash, contacts, created_at FROM accounts WHERE pseudonym = $1`, pseudonym)
}

func (s *Store) getAccount(ctx context.Context, query, arg string) (*domain.Account, error) {
	var account domain.Account
	err := s.client.Pool().QueryRow(ctx, query, arg).Scan(
		&account.Pseudonym, &account.ID, &account.Email, &account.PasswordHash, &account.Contacts, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("select account", err)
	}
	return &account, nil
}

func (s *Store) AddContact(ctx context.Context, pseudonym, contact string) error {
	tag, err := s.client.Pool().Exec(ctx,
		`UPDATE accounts SET contacts = array_append(contacts, $2)
		 WHERE pseudonym = $1 AND NOT ($2 = ANY (contacts))`,
		pseudonym, contact,
	)
	if err != nil {
		return storageErr("append contact", err)
	}
	if tag.RowsAffected() == 0 {
		// 要么账户不存在，要么联系人已在列表里（幂等）
		exists, err := s.accountExists(ctx, pseudonym)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *Store) ListContacts(ctx context.Context, pseudonym string) ([]string, error) {
	var contacts []string
	err := s.client.Pool().QueryRow(ctx,
		`SELECT contacts FROM accounts WHERE pseudonym = $1`, pseudonym,
	).Scan(&contacts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("select contacts", err)
	}
	return contacts, nil
}

func (s *Store) accountExists(ctx context.Context, pseudonym string) (bool, error) {
	var exists bool
	err := s.client.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE pseudonym = $1)`, pseudonym,
	).Scan(&exists)
	if err != nil {
		return false, storageErr("select account existence", err)
	}
	return exists, nil
}

// ========== Token Repository ==========

func (s *Store) SaveToken(ctx context.Context, token *domain.Token) error {
	// upsert：同一账户重新签发即覆盖，旧令牌随行一起消失
	_, err := s.client.Pool().Exec(ctx,
		`INSERT INTO tokens (pseudonym, value, issued_at, expiry)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (pseudonym) DO UPDATE
		 SET value = EXCLUDED.value, issued_at = EXCLUDED.issued_at, expiry = EXCLUDED.expiry`,
		token.Pseudonym, token.Value, token.IssuedAt, token.Expiry,
	)
	if err != nil {
		return storageErr("upsert token", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, pseudonym string) (*domain.Token, error) {
	var token domain.Token
	err := s.client.Pool().QueryRow(ctx,
		`SELECT pseudonym, value, issued_at, expiry FROM tokens WHERE pseudonym = $1`, pseudonym,
	).Scan(&token.Pseudonym, &token.Value, &token.IssuedAt, &token.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("select token", err)
	}
	return &token, nil
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	if _, err := s.client.Pool().Exec(ctx, `DELETE FROM tokens WHERE value = $1`, value); err != nil {
		return storageErr("delete token", err)
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	rows, err := s.client.Pool().Query(ctx, `SELECT pseudonym, expiry FROM tokens`)
	if err != nil {
		return 0, storageErr("select tokens", err)
	}
	defer rows.Close()

	// expiry 是自由格式字符串，过滤只能在解析后进行；
	// 解析失败的损坏记录一并清除
	var stale []string
	for rows.Next() {
		var pseudonym, expiry string
		if err := rows.Scan(&pseudonym, &expiry); err != nil {
			return 0, storageErr("scan token", err)
		}
		expiresAt, err := time.Parse(domain.ISO8601, expiry)
		if err != nil || expiresAt.Before(before) {
			stale = append(stale, pseudonym)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, storageErr("iterate tokens", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tag, err := s.client.Pool().Exec(ctx, `DELETE FROM tokens WHERE pseudonym = ANY ($1)`, stale)
	if err != nil {
		return 0, storageErr("delete expired tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

// ========== Mailbox Repository ==========

func (s *Store) EnsureMailbox(ctx context.Context, recipient string) error {
	_, err := s.client.Pool().Exec(ctx,
		`INSERT INTO mailboxes (recipient) VALUES ($1) ON CONFLICT (recipient) DO NOTHING`, recipient)
	if err != nil {
		return storageErr("insert mailbox", err)
	}
	return nil
}

func (s *Store) MailboxExists(ctx context.Context, recipient string) (bool, error) {
	var exists bool
	err := s.client.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mailboxes WHERE recipient = $1)`, recipient,
	).Scan(&exists)
	if err != nil {
		return false, storageErr("select mailbox existence", err)
	}
	return exists, nil
}

func (s *Store) AppendMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.client.Pool().Exec(ctx,
		`INSERT INTO messages (recipient, seq, sender, sent, body) VALUES ($1, $2, $3, $4, $5)`,
		message.To, message.Sequence, message.From, message.Sent, message.Text,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 外键失败：收件人没有邮箱
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrRecipientUnknown
		}
		return storageErr("insert message", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, recipient string, after uint64) ([]domain.Message, error) {
	exists, err := s.MailboxExists(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrRecipientUnknown
	}

	rows, err := s.client.Pool().Query(ctx,
		`SELECT recipient, seq, sender, sent, body FROM messages
		 WHERE recipient = $1 AND seq > $2 ORDER BY seq ASC`,
		recipient, int64(after),
	)
	if err != nil {
		return nil, storageErr("select messages", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.To, &msg.Sequence, &msg.From, &msg.Sent, &msg.Text); err != nil {
			return nil, storageErr("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate messages", err)
	}
	return messages, nil
}

func (s *Store) DeleteMessages(ctx context.Context, recipient string, upto uint64) error {
	_, err := s.client.Pool().Exec(ctx,
		`DELETE FROM messages WHERE recipient = $1 AND seq <= $2`, recipient, int64(upto))
	if err != nil {
		return storageErr("delete messages", err)
	}
	return nil
}

// ========== Sequence Allocator ==========

// Next 通过单条 upsert 完成原子自增，等价于数据库级的
// fetch-and-increment；行锁只落在对应的键上，收件人之间互不影响。
// INSERT 的来源行以邮箱存在为条件：未注册的键插不进任何行，
// 也就不会留下计数器。
func (s *Store) Next(ctx context.Context, key string) (uint64, error) {
	var next int64
	err := s.client.Pool().QueryRow(ctx,
		`INSERT INTO sequence_counters (key, next)
		 SELECT recipient, 1 FROM mailboxes WHERE recipient = $1
		 ON CONFLICT (key) DO UPDATE SET next = sequence_counters.next + 1
		 RETURNING next`,
		key,
	).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrRecipientUnknown
		}
		return 0, storageErr("increment sequence", err)
	}
	return uint64(next), nil
}

// ========== Lifecycle ==========

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx)
}

// storageErr 将驱动错误统一包装为存储不可用，
// 调用方据此与认证失败、资源不存在区分开。
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
