package service

import (
	"context"
	"strings"
	"time"

	"PMobility/global/event"
	usermodel "PMobility/module/user/model"
	"PMobility/module/user/store"
	"PMobility/tools/errs"
)

const maxTokenLen = 4096

// Profile 用户资料相关操作：位置、推送设备、好友
type Profile struct {
	users store.Repo
	out   event.Dispatcher
	now   func() time.Time
}

func NewProfile(users store.Repo, out event.Dispatcher) *Profile {
	return &Profile{users: users, out: out, now: time.Now}
}

// UpdateLocation 落库后把位置推给好友，返回成功送达的好友数
func (p *Profile) UpdateLocation(ctx context.Context, userID string, loc usermodel.Location) (int, error) {
	if !loc.Valid() {
		return 0, errs.ErrInvalidInput.WrapMsg("location out of range", "lat", loc.Lat, "lng", loc.Lng)
	}
	if err := p.users.UpdateLocation(ctx, userID, loc, p.now()); err != nil {
		return 0, err
	}
	u, err := p.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	evt := event.NewLocationUpdate(userID, event.Location{Lat: loc.Lat, Lng: loc.Lng})
	return p.out.Broadcast(u.Friends, evt), nil
}

// RegisterDevice 记录推送令牌；重复令牌忽略
func (p *Profile) RegisterDevice(ctx context.Context, userID, token, device string) error {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLen {
		return errs.ErrInvalidInput.WrapMsg("fcmToken is required")
	}
	return p.users.AddDevice(ctx, userID, usermodel.Device{
		Token:      token,
		Device:     strings.TrimSpace(device),
		CreateTime: p.now(),
	})
}

// ListFriends 好友资料（含在线状态），按好友列表顺序
func (p *Profile) ListFriends(ctx context.Context, userID string) ([]usermodel.Profile, error) {
	u, err := p.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	friends, err := p.users.GetMany(ctx, u.Friends)
	if err != nil {
		return nil, err
	}
	out := make([]usermodel.Profile, 0, len(friends))
	for _, id := range u.Friends {
		if f, ok := friends[id]; ok {
			out = append(out, f.Profile())
		}
	}
	return out, nil
}

// Me 当前用户资料
func (p *Profile) Me(ctx context.Context, userID string) (*usermodel.User, error) {
	return p.users.Get(ctx, userID)
}
