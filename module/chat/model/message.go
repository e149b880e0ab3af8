package model

import "time"

// Message 会话内的一条文本消息（集合 message）
type Message struct {
	MessageID      string    `bson:"message_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Content        string    `bson:"content"`
	ReadBy         []string  `bson:"read_by"` // 发送者创建时即在其中
	CreateTime     time.Time `bson:"create_time"`
}

func (m *Message) GetTableName() string {
	return "message"
}

func (m *Message) IsReadBy(userID string) bool {
	for _, u := range m.ReadBy {
		if u == userID {
			return true
		}
	}
	return false
}

const (
	MessageFieldMessageID      = "message_id"
	MessageFieldConversationID = "conversation_id"
	MessageFieldSenderID       = "sender_id"
	MessageFieldReadBy         = "read_by"
	MessageFieldCreateTime     = "create_time"
)
