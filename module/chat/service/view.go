package service

import (
	"time"

	chatmodel "PMobility/module/chat/model"
	usermodel "PMobility/module/user/model"
)

// MessageView 下发/返回给客户端的消息
type MessageView struct {
	MessageID      string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Sender         usermodel.Profile `json:"sender"`
	Content        string            `json:"content"`
	ReadBy         []string          `json:"readBy"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// LastMessage 会话列表里的最后一条消息摘要
type LastMessage struct {
	MessageID string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConversationView struct {
	ConversationID string              `json:"id"`
	Participants   []usermodel.Profile `json:"participants"`
	LastMessage    *LastMessage        `json:"lastMessage,omitempty"`
	LastMessageAt  time.Time           `json:"lastMessageAt"`
	UnreadCounts   map[string]int64    `json:"unreadCounts"`
	UnreadCount    int64               `json:"unreadCount"` // 调用者自己的未读
	CreatedAt      time.Time           `json:"createdAt"`
}

type Pagination struct {
	HasMore    bool    `json:"hasMore"`
	NextBefore *string `json:"nextBefore"` // 下一页游标（最后一条的创建时间），无数据时为 null
}

type MessagePage struct {
	Data       []MessageView `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// CursorLayout before 游标的时间格式
const CursorLayout = time.RFC3339Nano

func toMessageView(m *chatmodel.Message, sender usermodel.Profile) MessageView {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return MessageView{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Content:        m.Content,
		ReadBy:         readBy,
		CreatedAt:      m.CreateTime,
	}
}

// profileOf 查不到用户时只保留 ID
func profileOf(users map[string]*usermodel.User, id string) usermodel.Profile {
	if u, ok := users[id]; ok {
		return u.Profile()
	}
	return usermodel.Profile{UserID: id}
}

func toConversationView(c *chatmodel.Conversation, viewer string, users map[string]*usermodel.User, last *chatmodel.Message) *ConversationView {
	v := &ConversationView{
		ConversationID: c.ConversationID,
		Participants:   make([]usermodel.Profile, 0, len(c.Participants)),
		LastMessageAt:  c.LastMessageAt,
		UnreadCounts:   c.UnreadCounts,
		UnreadCount:    c.UnreadFor(viewer),
		CreatedAt:      c.CreateTime,
	}
	if v.UnreadCounts == nil {
		v.UnreadCounts = map[string]int64{}
	}
	for _, p := range c.Participants {
		v.Participants = append(v.Participants, profileOf(users, p))
	}
	if last != nil {
		v.LastMessage = &LastMessage{
			MessageID: last.MessageID,
			SenderID:  last.SenderID,
			Content:   last.Content,
			ReadBy:    last.ReadBy,
			CreatedAt: last.CreateTime,
		}
	}
	return v
}
