package store

import (
	"context"
	"sort"
	"sync"
	"time"

	usermodel "PMobility/module/user/model"
	"PMobility/tools/errs"
)

// Memory 单进程实现；STORE=memory 与测试使用
type Memory struct {
	mu    sync.RWMutex
	users map[string]*usermodel.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]*usermodel.User)}
}

// Put 覆盖写入
func (s *Memory) Put(u *usermodel.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = clone(u)
}

// Befriend 双向好友
func (s *Memory) Befriend(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ua, ok := s.users[a]; ok && !ua.IsFriend(b) {
		ua.Friends = append(ua.Friends, b)
	}
	if ub, ok := s.users[b]; ok && !ub.IsFriend(a) {
		ub.Friends = append(ub.Friends, a)
	}
}

func (s *Memory) Get(_ context.Context, userID string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	return clone(u), nil
}

func (s *Memory) GetMany(_ context.Context, userIDs []string) (map[string]*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*usermodel.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = clone(u)
		}
	}
	return out, nil
}

func (s *Memory) MarkOnline(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, func(u *usermodel.User) {
		u.IsOnline = true
		u.LastActiveAt = at
		u.UpdateTime = at
	})
}

func (s *Memory) Touch(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, func(u *usermodel.User) { u.LastActiveAt = at })
}

func (s *Memory) FindStale(_ context.Context, cutoff time.Time, limit int) ([]*usermodel.User, error) {
	s.mu.RLock()
	var out []*usermodel.User
	for _, u := range s.users {
		if u.IsOnline && u.LastActiveAt.Before(cutoff) {
			out = append(out, clone(u))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) MarkOffline(_ context.Context, userID string, activeBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || !u.IsOnline {
		return false, nil
	}
	if !activeBefore.IsZero() && !u.LastActiveAt.Before(activeBefore) {
		return false, nil
	}
	u.IsOnline = false
	u.UpdateTime = time.Now()
	return true, nil
}

func (s *Memory) UpdateLocation(_ context.Context, userID string, loc usermodel.Location, at time.Time) error {
	return s.update(userID, func(u *usermodel.User) {
		l := loc
		u.LastLocation = &l
		u.UpdateTime = at
	})
}

func (s *Memory) AddDevice(_ context.Context, userID string, dev usermodel.Device) error {
	return s.update(userID, func(u *usermodel.User) {
		for _, d := range u.Devices {
			if d.Token == dev.Token {
				return
			}
		}
		u.Devices = append(u.Devices, dev)
	})
}

func (s *Memory) update(userID string, fn func(u *usermodel.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	fn(u)
	return nil
}

func clone(u *usermodel.User) *usermodel.User {
	c := *u
	c.Friends = append([]string(nil), u.Friends...)
	c.Devices = append([]usermodel.Device(nil), u.Devices...)
	if u.LastLocation != nil {
		l := *u.LastLocation
		c.LastLocation = &l
	}
	return &c
}
