package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidJSON        = "请求体格式错误"
	MsgAuthRequired       = "需要有效的令牌"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgRecipientUnknown   = "收件人不存在"
	MsgConflict           = "邮箱地址或化名已被占用"
	MsgStorageUnavailable = "存储暂时不可用，请稍后重试"
	MsgInternalError      = "服务器内部错误"
)

// statusFromError 把业务错误映射为 HTTP 状态码与提示消息。
//
// 存储故障映射为 503 而不是 401/500：客户端据此区分
// "你被拒绝了"与"系统暂时没法回答你"。
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, MsgAuthRequired
	case errors.Is(err, domain.ErrMalformed):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRecipientUnknown):
		return http.StatusNotFound, MsgRecipientUnknown
	case errors.Is(err, domain.ErrEmailExists), errors.Is(err, domain.ErrPseudonymExists):
		return http.StatusConflict, MsgConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, MsgStorageUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, MsgInternalError
	}
}

// writeError 输出统一的错误响应体。
func writeError(c *gin.Context, err error) {
	status, msg := statusFromError(err)
	c.JSON(status, gin.H{"error": msg})
}
