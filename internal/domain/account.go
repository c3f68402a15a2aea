package domain

import "time"

// Account 表示一个注册账户。凭证只保存哈希值，
// 由注册时配置的 PasswordHasher 生成，本结构体从不接触明文。
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Pseudonym    string    `json:"pseudonym"`
	PasswordHash string    `json:"-"`
	Contacts     []string  `json:"contacts"`
	CreatedAt    time.Time `json:"createdAt"`
}
