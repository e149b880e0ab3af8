package model

import (
	"sort"
	"time"
)

// Conversation 两人会话（集合 conversation）
// PairKey 对参与者排序后拼接，配唯一索引保证同一对用户只有一个会话
type Conversation struct {
	ConversationID string           `bson:"conversation_id"`
	Participants   []string         `bson:"participants"`
	PairKey        string           `bson:"pair_key"`
	LastMessageID  string           `bson:"last_message_id,omitempty"`
	LastMessageAt  time.Time        `bson:"last_message_at"`
	UnreadCounts   map[string]int64 `bson:"unread_counts"`
	CreateTime     time.Time        `bson:"create_time"`
	UpdateTime     time.Time        `bson:"update_time"`
}

func (c *Conversation) GetTableName() string {
	return "conversation"
}

// PairKey 与参数顺序无关
func PairKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return p[0] + ":" + p[1]
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others 除 userID 外的参与者
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

func (c *Conversation) UnreadFor(userID string) int64 {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[userID]
}

// 字段名
const (
	ConversationFieldConversationID = "conversation_id"
	ConversationFieldParticipants   = "participants"
	ConversationFieldPairKey        = "pair_key"
	ConversationFieldLastMessageID  = "last_message_id"
	ConversationFieldLastMessageAt  = "last_message_at"
	ConversationFieldUnreadCounts   = "unread_counts"
	ConversationFieldCreateTime     = "create_time"
	ConversationFieldUpdateTime     = "update_time"
)

// UnreadField unread_counts.<userId>
func UnreadField(userID string) string {
	return ConversationFieldUnreadCounts + "." + userID
}
