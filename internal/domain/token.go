package domain

import "time"

// ISO8601 令牌过期时间的存储格式（与客户端约定一致）。
const ISO8601 = "2006-01-02T15:04:05Z0700"

// Token 表示某个账户当前的登录令牌。每个账户最多存在
// 一条存活记录：重新签发会原地覆盖旧记录，旧令牌即刻失效，
// 即使其自身的过期时间尚未到达。
//
// Expiry 以 ISO 8601 字符串形式持久化。解析失败视为记录损坏，
// 校验方必须删除该记录并按认证失败处理，绝不能当作仍然有效。
type Token struct {
	Value     string    `json:"token"`
	Pseudonym string    `json:"pseudonym"`
	IssuedAt  time.Time `json:"-"`
	Expiry    string    `json:"expire-date"`
}

// ExpiresAt 解析过期时间。返回 error 表示记录已损坏。
func (t *Token) ExpiresAt() (time.Time, error) {
	return time.Parse(ISO8601, t.Expiry)
}
