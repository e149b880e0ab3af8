package message

import (
	"context"
	"sort"
	"sync"
	"time"

	chatmodel "PMobility/module/chat/model"
	"PMobility/tools/errs"
	"PMobility/tools/ids"
)

// MemStore 单进程实现，语义与 Store 一致；一把锁覆盖会话与消息
type MemStore struct {
	mu     sync.Mutex
	convs  map[string]*chatmodel.Conversation // conversation_id ->
	pairs  map[string]string                  // pair_key -> conversation_id
	msgs   map[string][]*chatmodel.Message    // conversation_id -> 按写入顺序
	msgIdx map[string]*chatmodel.Message      // message_id ->
}

func NewMemStore() *MemStore {
	return &MemStore{
		convs:  make(map[string]*chatmodel.Conversation),
		pairs:  make(map[string]string),
		msgs:   make(map[string][]*chatmodel.Message),
		msgIdx: make(map[string]*chatmodel.Message),
	}
}

func (s *MemStore) FindOrCreatePair(_ context.Context, a, b string, now time.Time) (*chatmodel.Conversation, bool, error) {
	key := chatmodel.PairKey(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pairs[key]; ok {
		return cloneConv(s.convs[id]), false, nil
	}
	c := &chatmodel.Conversation{
		ConversationID: ids.GenerateString(),
		Participants:   []string{a, b},
		PairKey:        key,
		LastMessageAt:  now,
		UnreadCounts:   map[string]int64{a: 0, b: 0},
		CreateTime:     now,
		UpdateTime:     now,
	}
	s.convs[c.ConversationID] = c
	s.pairs[key] = c.ConversationID
	return cloneConv(c), true, nil
}

func (s *MemStore) GetConversation(_ context.Context, conversationID string) (*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	return cloneConv(c), nil
}

func (s *MemStore) ListConversations(_ context.Context, userID string, limit int) ([]*chatmodel.Conversation, error) {
	s.mu.Lock()
	var out []*chatmodel.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			out = append(out, cloneConv(c))
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ConversationID > out[j].ConversationID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ApplyMessage(_ context.Context, conversationID, messageID string, at time.Time, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	c.LastMessageID = messageID
	c.LastMessageAt = at
	c.UpdateTime = at
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int64{}
	}
	for _, r := range recipients {
		c.UnreadCounts[r]++
	}
	return nil
}

func (s *MemStore) ResetUnread(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[conversationID]; ok {
		if c.UnreadCounts == nil {
			c.UnreadCounts = map[string]int64{}
		}
		c.UnreadCounts[userID] = 0
	}
	return nil
}

func (s *MemStore) InsertMessage(_ context.Context, m *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.msgIdx[m.MessageID]; dup {
		return errs.ErrStorageUnavailable.WrapMsg("duplicate message id", "messageId", m.MessageID)
	}
	c := cloneMsg(m)
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	s.msgs[m.ConversationID] = append(s.msgs[m.ConversationID], c)
	s.msgIdx[m.MessageID] = c
	return nil
}

func (s *MemStore) MarkRead(_ context.Context, conversationID, reader string, messageIDs []string) (int64, error) {
	if messageIDs != nil && len(messageIDs) == 0 {
		return 0, nil
	}
	var want map[string]struct{}
	if messageIDs != nil {
		want = make(map[string]struct{}, len(messageIDs))
		for _, id := range messageIDs {
			want[id] = struct{}{}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs[conversationID] {
		if want != nil {
			if _, ok := want[m.MessageID]; !ok {
				continue
			}
		}
		if m.SenderID == reader || m.IsReadBy(reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, reader)
		n++
	}
	return n, nil
}

func (s *MemStore) ListMessages(_ context.Context, conversationID string, before time.Time, limit int) ([]*chatmodel.Message, error) {
	s.mu.Lock()
	var out []*chatmodel.Message
	for _, m := range s.msgs[conversationID] {
		if !before.IsZero() && !m.CreateTime.Before(before) {
			continue
		}
		out = append(out, cloneMsg(m))
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].MessageID > out[j].MessageID
		}
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) GetMessages(_ context.Context, messageIDs []string) (map[string]*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*chatmodel.Message, len(messageIDs))
	for _, id := range messageIDs {
		if m, ok := s.msgIdx[id]; ok {
			out[id] = cloneMsg(m)
		}
	}
	return out, nil
}

func cloneConv(c *chatmodel.Conversation) *chatmodel.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCounts = make(map[string]int64, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}

func cloneMsg(m *chatmodel.Message) *chatmodel.Message {
	out := *m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	return &out
}
