package store

import (
	"context"
	"testing"
	"time"

	usermodel "PMobility/module/user/model"
	"PMobility/tools/errs"
)

func TestMemoryPresenceTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.Put(&usermodel.User{UserID: "1", Name: "A"})
	s.Put(&usermodel.User{UserID: "2", Name: "B"})

	t0 := time.Unix(1_700_000_000, 0)
	if err := s.MarkOnline(ctx, "1", t0); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	if err := s.MarkOnline(ctx, "2", t0.Add(time.Minute)); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}

	stale, _ := s.FindStale(ctx, t0.Add(30*time.Second), 0)
	if len(stale) != 1 || stale[0].UserID != "1" {
		t.Fatalf("stale = %+v", stale)
	}

	// 期间有活动则条件不满足
	_ = s.Touch(ctx, "1", t0.Add(time.Minute))
	if ok, _ := s.MarkOffline(ctx, "1", t0.Add(30*time.Second)); ok {
		t.Fatalf("touched user must not be flipped")
	}
	if ok, _ := s.MarkOffline(ctx, "1", t0.Add(2*time.Minute)); !ok {
		t.Fatalf("expected flip")
	}
	if ok, _ := s.MarkOffline(ctx, "1", time.Time{}); ok {
		t.Fatalf("already offline must not flip again")
	}
	u, _ := s.Get(ctx, "1")
	if u.IsOnline {
		t.Fatalf("user should be offline")
	}
}

func TestMemoryNotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "404")
	if !errs.ErrNotFound.Is(err) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Touch(context.Background(), "404", time.Now()); !errs.ErrNotFound.Is(err) {
		t.Fatalf("Touch err = %v", err)
	}
}

func TestMemoryDevicesAndFriends(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.Put(&usermodel.User{UserID: "1"})
	s.Put(&usermodel.User{UserID: "2"})
	s.Befriend("1", "2")

	_ = s.AddDevice(ctx, "1", usermodel.Device{Token: "t"})
	_ = s.AddDevice(ctx, "1", usermodel.Device{Token: "t"})
	u, _ := s.Get(ctx, "1")
	if len(u.Devices) != 1 || !u.IsFriend("2") {
		t.Fatalf("user = %+v", u)
	}

	// 返回的是副本
	u.Friends[0] = "x"
	again, _ := s.Get(ctx, "1")
	if again.Friends[0] != "2" {
		t.Fatalf("store leaked internal slice")
	}

	many, _ := s.GetMany(ctx, []string{"1", "2", "3"})
	if len(many) != 2 {
		t.Fatalf("GetMany = %d", len(many))
	}
}
