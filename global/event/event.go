package event

// 下行 / 上行帧类型
const (
	TypeStatusUpdate   = "status_update"
	TypeNewMessage     = "new_message"
	TypeMessagesRead   = "messages_read"
	TypeLocationUpdate = "location_update"
	TypeTyping         = "typing"
	TypeStopTyping     = "stop_typing"

	TypeHeartbeat    = "heartbeat"
	TypeReadMessages = "read_messages"
)

// Dispatcher 尽力投递：目标不在线或发送失败返回 false，不报错
type Dispatcher interface {
	Dispatch(userID string, evt any) bool
	Broadcast(userIDs []string, evt any) int
}

// ===== 下行事件 =====

type StatusUpdate struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func NewStatusUpdate(userID string, online bool) StatusUpdate {
	return StatusUpdate{Type: TypeStatusUpdate, UserID: userID, IsOnline: online}
}

type NewMessage struct {
	Type           string `json:"type"`
	Message        any    `json:"message"`
	ConversationID string `json:"conversationId"`
}

func NewNewMessage(conversationID string, message any) NewMessage {
	return NewMessage{Type: TypeNewMessage, Message: message, ConversationID: conversationID}
}

type MessagesRead struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

func NewMessagesRead(conversationID, readBy string) MessagesRead {
	return MessagesRead{Type: TypeMessagesRead, ConversationID: conversationID, ReadBy: readBy}
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type LocationUpdate struct {
	Type     string   `json:"type"`
	UserID   string   `json:"userId"`
	Location Location `json:"location"`
}

func NewLocationUpdate(userID string, loc Location) LocationUpdate {
	return LocationUpdate{Type: TypeLocationUpdate, UserID: userID, Location: loc}
}

// Typing typing / stop_typing 共用
type Typing struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func NewTyping(typ, conversationID, userID string) Typing {
	return Typing{Type: typ, ConversationID: conversationID, UserID: userID}
}
