package chat

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"PMobility/middleware"
	"PMobility/middleware/security"
	"PMobility/module/chat/service"
	"PMobility/tools/errs"

	"github.com/gin-gonic/gin"
)

// Messaging 会话/消息用例（service.MessageService 满足）
type Messaging interface {
	CreateOrGetConversation(ctx context.Context, me, participantID string) (*service.ConversationView, bool, error)
	ListConversations(ctx context.Context, userID string) ([]*service.ConversationView, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (*service.MessageView, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
	ListMessages(ctx context.Context, conversationID, userID string, limit int, before time.Time) (*service.MessagePage, error)
}

type Handler struct {
	svc Messaging
}

func NewHandler(svc Messaging) *Handler {
	return &Handler{svc: svc}
}

// Register /client 下的会话路由，全部需要鉴权
func (h *Handler) Register(r *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	r.POST("/client/conversations", h.CreateConversation, auth)
	r.GET("/client/conversations", h.ListConversations, auth)
	r.GET("/client/conversations/:conversationId/messages", h.ListMessages, auth)
	r.POST("/client/conversations/:conversationId/messages", h.SendMessage, auth)
	r.POST("/client/conversations/:conversationId/read", h.MarkRead, auth)
}

type createConversationReq struct {
	ParticipantID string `json:"participantId"`
}

type sendMessageReq struct {
	Content string `json:"content"`
}

type markReadResp struct {
	Success      bool  `json:"success"`
	MessagesRead int64 `json:"messagesRead"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("invalid body"))
		return
	}
	conv, created, err := h.svc.CreateOrGetConversation(c.Request.Context(), security.UserID(c), strings.TrimSpace(req.ParticipantID))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	middleware.OK(c, status, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.svc.ListConversations(c.Request.Context(), security.UserID(c))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusOK, convs)
}

// ListMessages ?limit=&before=<RFC3339>
func (h *Handler) ListMessages(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("invalid limit", "limit", s))
			return
		}
		limit = n
	}
	var before time.Time
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(service.CursorLayout, s)
		if err != nil {
			middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("invalid before cursor", "before", s))
			return
		}
		before = t
	}
	page, err := h.svc.ListMessages(c.Request.Context(), c.Param("conversationId"), security.UserID(c), limit, before)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusOK, page)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errs.ErrInvalidInput.WrapMsg("invalid body"))
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), c.Param("conversationId"), security.UserID(c), req.Content)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.svc.MarkRead(c.Request.Context(), c.Param("conversationId"), security.UserID(c))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	middleware.OK(c, http.StatusOK, markReadResp{Success: true, MessagesRead: n})
}
