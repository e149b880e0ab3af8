package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"PMobility/global/event"
	"PMobility/logger"
	chatmodel "PMobility/module/chat/model"
	usermodel "PMobility/module/user/model"
	"PMobility/service/push"
	"PMobility/tools/errs"
	"PMobility/tools/ids"
	"PMobility/tools/safe"

	"go.uber.org/zap"
)

// ===== 依赖 =====

type ConversationRepo interface {
	FindOrCreatePair(ctx context.Context, a, b string, now time.Time) (*chatmodel.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (*chatmodel.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*chatmodel.Conversation, error)
	ApplyMessage(ctx context.Context, conversationID, messageID string, at time.Time, recipients []string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
}

type MessageRepo interface {
	InsertMessage(ctx context.Context, m *chatmodel.Message) error
	MarkRead(ctx context.Context, conversationID, reader string, messageIDs []string) (int64, error)
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]*chatmodel.Message, error)
	GetMessages(ctx context.Context, messageIDs []string) (map[string]*chatmodel.Message, error)
}

type UserDirectory interface {
	Get(ctx context.Context, userID string) (*usermodel.User, error)
	GetMany(ctx context.Context, userIDs []string) (map[string]*usermodel.User, error)
}

// ===== 配置 =====

type MessageConf struct {
	MaxContentRunes   int // 默认 4096
	DefaultPageSize   int // 默认 50
	MaxPageSize       int // 默认 100
	ConversationLimit int // 会话列表条数，默认 50
	PushTimeout       time.Duration
	Clock             func() time.Time
}

func (c *MessageConf) norm() {
	if c.MaxContentRunes <= 0 {
		c.MaxContentRunes = 4096
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 50
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	if c.ConversationLimit <= 0 {
		c.ConversationLimit = 50
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 3 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// MessageService 会话/消息写路径；持久化先于投递，投递丢失不影响已落库状态
type MessageService struct {
	conf   MessageConf
	convs  ConversationRepo
	msgs   MessageRepo
	users  UserDirectory
	out    event.Dispatcher
	pusher push.Notifier
}

func NewMessageService(conf MessageConf, convs ConversationRepo, msgs MessageRepo, users UserDirectory, out event.Dispatcher, pusher push.Notifier) *MessageService {
	safe.MustNotNil(convs, "conversation repo")
	safe.MustNotNil(msgs, "message repo")
	safe.MustNotNil(users, "user directory")
	safe.MustNotNil(out, "dispatcher")
	if pusher == nil {
		pusher = push.LogNotifier{}
	}
	conf.norm()
	return &MessageService{conf: conf, convs: convs, msgs: msgs, users: users, out: out, pusher: pusher}
}

// CreateOrGetConversation 同一对用户重复调用返回同一个会话；created 表示本次新建
func (s *MessageService) CreateOrGetConversation(ctx context.Context, me, participantID string) (*ConversationView, bool, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, false, errs.ErrInvalidInput.WrapMsg("participantId is required")
	}
	if !ids.Valid(participantID) {
		return nil, false, errs.ErrInvalidInput.WrapMsg("invalid participant id", "participantId", participantID)
	}
	if participantID == me {
		return nil, false, errs.ErrInvalidInput.WrapMsg("cannot start a conversation with yourself")
	}
	if _, err := s.users.Get(ctx, participantID); err != nil {
		if errs.ErrNotFound.Is(err) {
			return nil, false, errs.ErrNotFound.WrapMsg("participant not found", "participantId", participantID)
		}
		return nil, false, err
	}

	conv, created, err := s.convs.FindOrCreatePair(ctx, me, participantID, s.conf.Clock())
	if err != nil {
		return nil, false, err
	}
	users, err := s.users.GetMany(ctx, conv.Participants)
	if err != nil {
		return nil, false, err
	}
	var last *chatmodel.Message
	if conv.LastMessageID != "" {
		if m, err := s.msgs.GetMessages(ctx, []string{conv.LastMessageID}); err == nil {
			last = m[conv.LastMessageID]
		}
	}
	return toConversationView(conv, me, users, last), created, nil
}

// SendMessage 写消息 -> 推进会话指针并累加对方未读 -> 实时投递 -> 离线推送
func (s *MessageService) SendMessage(ctx context.Context, conversationID, senderID, content string) (*MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errs.ErrInvalidInput.WrapMsg("content is required")
	}
	if utf8.RuneCountInString(content) > s.conf.MaxContentRunes {
		return nil, errs.ErrInvalidInput.WrapMsg("content too long", "max", s.conf.MaxContentRunes)
	}
	conv, err := s.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	recipients := conv.Others(senderID)

	now := s.conf.Clock()
	msg := &chatmodel.Message{
		MessageID:      ids.GenerateString(),
		ConversationID: conv.ConversationID,
		SenderID:       senderID,
		Content:        content,
		ReadBy:         []string{senderID},
		CreateTime:     now,
	}
	if err := s.msgs.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.convs.ApplyMessage(ctx, conv.ConversationID, msg.MessageID, now, recipients); err != nil {
		return nil, err
	}

	// 资料只用于展示和推送，查询失败不影响发送结果
	users, err := s.users.GetMany(ctx, append([]string{senderID}, recipients...))
	if err != nil {
		logger.Warn("[Chat] load participants", zap.String("conversationId", conv.ConversationID), zap.Error(err))
		users = map[string]*usermodel.User{}
	}
	view := toMessageView(msg, profileOf(users, senderID))

	evt := event.NewNewMessage(conv.ConversationID, view)
	for _, r := range recipients {
		s.out.Dispatch(r, evt)
	}
	s.pushNewMessage(ctx, view, users, recipients)
	return &view, nil
}

func (s *MessageService) pushNewMessage(ctx context.Context, m MessageView, users map[string]*usermodel.User, recipients []string) {
	title := m.Sender.Name
	body := push.Preview(m.Content)
	for _, r := range recipients {
		u, ok := users[r]
		if !ok {
			continue
		}
		tokens := u.DeviceTokens()
		if len(tokens) == 0 {
			continue
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.conf.PushTimeout)
		err := s.pusher.Notify(pctx, push.Request{
			UserID: r,
			Tokens: tokens,
			Title:  title,
			Body:   body,
			Data: map[string]string{
				"conversationId": m.ConversationID,
				"messageId":      m.MessageID,
				"type":           event.TypeNewMessage,
			},
		})
		cancel()
		if err != nil {
			logger.Warn("[Chat] push notification", zap.String("userId", r), zap.Error(err))
		}
	}
}

// MarkRead 会话内所有别人发的消息标记为已读，未读清零，并通知其他参与者
func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	conv, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.msgs.MarkRead(ctx, conv.ConversationID, userID, nil)
	if err != nil {
		return 0, err
	}
	if err := s.convs.ResetUnread(ctx, conv.ConversationID, userID); err != nil {
		return 0, err
	}
	s.out.Broadcast(conv.Others(userID), event.NewMessagesRead(conv.ConversationID, userID))
	return n, nil
}

// ListMessages 新的在前；返回的这一页同时视为已读
func (s *MessageService) ListMessages(ctx context.Context, conversationID, userID string, limit int, before time.Time) (*MessagePage, error) {
	conv, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	limit = s.pageSize(limit)
	list, err := s.msgs.ListMessages(ctx, conv.ConversationID, before, limit)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{Data: make([]MessageView, 0, len(list))}
	if len(list) == 0 {
		return page, nil
	}

	pageIDs := make([]string, 0, len(list))
	senderIDs := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, m := range list {
		pageIDs = append(pageIDs, m.MessageID)
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	n, err := s.msgs.MarkRead(ctx, conv.ConversationID, userID, pageIDs)
	if err != nil {
		return nil, err
	}
	if err := s.convs.ResetUnread(ctx, conv.ConversationID, userID); err != nil {
		return nil, err
	}
	if n > 0 {
		s.out.Broadcast(conv.Others(userID), event.NewMessagesRead(conv.ConversationID, userID))
	}

	users, err := s.users.GetMany(ctx, senderIDs)
	if err != nil {
		logger.Warn("[Chat] load senders", zap.String("conversationId", conv.ConversationID), zap.Error(err))
		users = map[string]*usermodel.User{}
	}
	for _, m := range list {
		if m.SenderID != userID && !m.IsReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
		page.Data = append(page.Data, toMessageView(m, profileOf(users, m.SenderID)))
	}
	page.Pagination.HasMore = len(list) == limit
	next := list[len(list)-1].CreateTime.UTC().Format(CursorLayout)
	page.Pagination.NextBefore = &next
	return page, nil
}

// ListConversations 按最近消息倒序，带参与者资料、最后一条消息和调用者未读数
func (s *MessageService) ListConversations(ctx context.Context, userID string) ([]*ConversationView, error) {
	convs, err := s.convs.ListConversations(ctx, userID, s.conf.ConversationLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*ConversationView, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	var userIDs, lastIDs []string
	seen := map[string]bool{}
	for _, c := range convs {
		for _, p := range c.Participants {
			if !seen[p] {
				seen[p] = true
				userIDs = append(userIDs, p)
			}
		}
		if c.LastMessageID != "" {
			lastIDs = append(lastIDs, c.LastMessageID)
		}
	}
	users, err := s.users.GetMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	lasts, err := s.msgs.GetMessages(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		out = append(out, toConversationView(c, userID, users, lasts[c.LastMessageID]))
	}
	return out, nil
}

// NotifyTyping typing / stop_typing 只转发，不落库
func (s *MessageService) NotifyTyping(ctx context.Context, conversationID, userID string, typing bool) (int, error) {
	conv, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	typ := event.TypeStopTyping
	if typing {
		typ = event.TypeTyping
	}
	return s.out.Broadcast(conv.Others(userID), event.NewTyping(typ, conv.ConversationID, userID)), nil
}

// participantConversation 会话不存在与非成员对外一律 not found
func (s *MessageService) participantConversation(ctx context.Context, conversationID, userID string) (*chatmodel.Conversation, error) {
	if !ids.Valid(conversationID) {
		return nil, errs.ErrInvalidInput.WrapMsg("invalid conversation id", "conversationId", conversationID)
	}
	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		if errs.ErrNotFound.Is(err) {
			return nil, errs.ErrNotAParticipant.WrapMsg("conversation not found or not a participant", "conversationId", conversationID)
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.ErrNotAParticipant.WrapMsg("conversation not found or not a participant", "conversationId", conversationID)
	}
	return conv, nil
}

func (s *MessageService) pageSize(limit int) int {
	switch {
	case limit <= 0:
		return s.conf.DefaultPageSize
	case limit > s.conf.MaxPageSize:
		return s.conf.MaxPageSize
	default:
		return limit
	}
}
