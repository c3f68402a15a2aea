package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/service"
)

// RegisterHandler 处理账户注册与联系人管理请求。
type RegisterHandler struct {
	register *service.RegisterService
	auth     service.Authenticator
	log      *zap.Logger
}

// NewRegisterHandler 创建注册处理器。
func NewRegisterHandler(register *service.RegisterService, auth service.Authenticator, log *zap.Logger) *RegisterHandler {
	return &RegisterHandler{
		register: register,
		auth:     auth,
		log:      log,
	}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Pseudonym string `json:"pseudonym" binding:"required"`
}

type accountResponse struct {
	Email     string `json:"email"`
	Pseudonym string `json:"pseudonym"`
}

type contactRequest struct {
	Contact string `json:"contact" binding:"required"`
}

// Register 处理 POST /register：创建账户并建立邮箱。
func (h *RegisterHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	account, err := h.register.Register(c.Request.Context(), req.Email, req.Password, req.Pseudonym)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, accountResponse{
		Email:     account.Email,
		Pseudonym: account.Pseudonym,
	})
}

// authenticated 校验请求令牌属于路径中的化名。
func (h *RegisterHandler) authenticated(c *gin.Context) (string, bool) {
	pseudonym := c.Param("pseudonym")
	if !h.auth.Authenticate(c.Request.Context(), bearerToken(c), pseudonym) {
		writeError(c, domain.ErrUnauthenticated)
		return "", false
	}
	return pseudonym, true
}

// AddContact 处理 POST /contacts/:pseudonym：添加一个已注册的联系人。
func (h *RegisterHandler) AddContact(c *gin.Context) {
	pseudonym, ok := h.authenticated(c)
	if !ok {
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	if err := h.register.AddContact(c.Request.Context(), pseudonym, req.Contact); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Contacts 处理 GET /contacts/:pseudonym：列出自己的联系人。
func (h *RegisterHandler) Contacts(c *gin.Context) {
	pseudonym, ok := h.authenticated(c)
	if !ok {
		return
	}

	contacts, err := h.register.Contacts(c.Request.Context(), pseudonym)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}
