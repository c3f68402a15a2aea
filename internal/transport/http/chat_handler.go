package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/service"
)

// ChatHandler 处理消息投递与读取请求。
type ChatHandler struct {
	relay *service.Relay
	log   *zap.Logger
}

// NewChatHandler 创建聊天处理器。
func NewChatHandler(relay *service.Relay, log *zap.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, log: log}
}

type sendRequest struct {
	From  string `json:"from" binding:"required"`
	To    string `json:"to" binding:"required"`
	Text  string `json:"message" binding:"required"`
	Token string `json:"token"`
}

type messageResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Sent     string `json:"date"`
	Text     string `json:"message"`
	Sequence uint64 `json:"sequenceNumber"`
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		From:     m.From,
		To:       m.To,
		Sent:     m.Sent.Format(domain.ISO8601),
		Text:     m.Text,
		Sequence: m.Sequence,
	}
}

// bearerToken 从 Authorization 头提取令牌。
// 接受 "Token <x>" 与 "Bearer <x>" 两种形式。
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	for _, scheme := range []string{"Token ", "Bearer "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}

// Send 处理 PUT /send：认证发送方并投递一条消息。
// 令牌随消息体的 token 字段提交，也接受 Authorization 头。
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}

	msg := &domain.Message{
		From: req.From,
		To:   req.To,
		Text: req.Text,
	}
	delivered, err := h.relay.Send(c.Request.Context(), token, msg)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toMessageResponse(*delivered))
}

// Fetch 处理 GET /messages/:pseudonym 与 GET /messages/:pseudonym/:cursor。
//
// cursor 是客户端已确认的最高序号：返回其后的消息，
// 同时删除已确认的部分。没有新消息时回 204。
func (h *ChatHandler) Fetch(c *gin.Context) {
	pseudonym := c.Param("pseudonym")

	var cursor uint64
	if raw := c.Param("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence number"})
			return
		}
		cursor = parsed
	}

	messages, err := h.relay.Fetch(c.Request.Context(), bearerToken(c), pseudonym, cursor)
	if err != nil {
		writeError(c, err)
		return
	}

	if len(messages) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, out)
}
