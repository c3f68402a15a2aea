package domain

import "errors"

// 业务错误分类。各服务内部区分这些错误，
// 传输层再映射为 HTTP 状态码；存储故障绝不能
// 被折叠成认证失败。
var (
	// ErrUnauthenticated 令牌无效、过期或已被新令牌取代
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformed 请求缺少必填字段
	ErrMalformed = errors.New("malformed request")
	// ErrStorageUnavailable 后端存储不可达（瞬时故障，可重试）
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound 账户或资源不存在
	ErrNotFound = errors.New("not found")
	// ErrRecipientUnknown 收件人从未注册过邮箱（区别于"没有新消息"）
	ErrRecipientUnknown = errors.New("recipient unknown")
	// ErrEmailExists 注册邮箱已被占用
	ErrEmailExists = errors.New("email already exists")
	// ErrPseudonymExists 昵称已被占用
	ErrPseudonymExists = errors.New("pseudonym already exists")
)
