package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/auth"
	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
)

// AuthHandler 处理登录与令牌校验请求。
type AuthHandler struct {
	login     *auth.LoginService
	authority *auth.Authority
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewAuthHandler 创建认证处理器。
func NewAuthHandler(login *auth.LoginService, authority *auth.Authority, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		login:     login,
		authority: authority,
		metrics:   metrics,
		log:       log,
	}
}

type loginRequest struct {
	User     string `json:"user" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Expiry string `json:"expire-date"`
}

type validateRequest struct {
	Token     string `json:"token" binding:"required"`
	Pseudonym string `json:"pseudonym" binding:"required"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Expiry  string `json:"expire-date,omitempty"`
}

// Login 处理 POST /login：校验凭证并签发令牌。
// 重新登录签发的新令牌会立刻取代旧令牌。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	token, err := h.login.Login(c.Request.Context(), req.User, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": MsgInvalidCredentials})
			return
		}
		h.log.Error("login failed", zap.Error(err))
		writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TokensIssued.Inc()
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:  token.Value,
		Expiry: token.Expiry,
	})
}

// Validate 处理 POST /auth：回答 (token, pseudonym) 是否当前有效。
// 这是 chat/register 服务 AuthGateway 的服务端。
func (h *AuthHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	expiresAt, err := h.authority.Validate(c.Request.Context(), req.Token, req.Pseudonym)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, validateResponse{Success: false})
			return
		}
		h.log.Error("token validation failed", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, validateResponse{
		Success: true,
		Expiry:  expiresAt.Format(domain.ISO8601),
	})
}
