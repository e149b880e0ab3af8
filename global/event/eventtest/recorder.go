// Package eventtest 测试用的 event.Dispatcher
package eventtest

import (
	"sync"

	"PMobility/global/event"
)

var _ event.Dispatcher = (*Recorder)(nil)

// Recorder 记录投递的 Dispatcher，online 之外的用户返回 false
type Recorder struct {
	mu     sync.Mutex
	Online map[string]bool
	Sent   []Sent
}

type Sent struct {
	UserID string
	Event  any
}

func NewRecorder(online ...string) *Recorder {
	r := &Recorder{Online: map[string]bool{}}
	for _, u := range online {
		r.Online[u] = true
	}
	return r
}

func (r *Recorder) Dispatch(userID string, evt any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{UserID: userID, Event: evt})
	return r.Online[userID]
}

func (r *Recorder) Broadcast(userIDs []string, evt any) int {
	n := 0
	for _, u := range userIDs {
		if r.Dispatch(u, evt) {
			n++
		}
	}
	return n
}

// To 返回发给 userID 的事件
func (r *Recorder) To(userID string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, s := range r.Sent {
		if s.UserID == userID {
			out = append(out, s.Event)
		}
	}
	return out
}
