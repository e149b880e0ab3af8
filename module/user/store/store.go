package store

import (
	"context"
	"time"

	usermodel "PMobility/module/user/model"
)

// Repo 用户主档读写；不存在时返回 errs.ErrNotFound
type Repo interface {
	Get(ctx context.Context, userID string) (*usermodel.User, error)
	GetMany(ctx context.Context, userIDs []string) (map[string]*usermodel.User, error)

	// MarkOnline is_online=true 且 last_active_at=at
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	// Touch 只刷新 last_active_at
	Touch(ctx context.Context, userID string, at time.Time) error
	// FindStale 在线且 last_active_at < cutoff 的用户
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*usermodel.User, error)
	// MarkOffline 条件下线：仍在线，且 activeBefore 非零时 last_active_at < activeBefore
	// 返回是否真的发生了翻转
	MarkOffline(ctx context.Context, userID string, activeBefore time.Time) (bool, error)

	UpdateLocation(ctx context.Context, userID string, loc usermodel.Location, at time.Time) error
	AddDevice(ctx context.Context, userID string, dev usermodel.Device) error
}

var (
	_ Repo = (*Mongo)(nil)
	_ Repo = (*Memory)(nil)
)
