package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"PMobility/global/event"
	"PMobility/global/event/eventtest"
	usermodel "PMobility/module/user/model"
	"PMobility/module/user/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type connSet map[string]bool

func (c connSet) IsConnected(id string) bool { return c[id] }

func newFixture(t *testing.T, conf TrackerConf) (*Tracker, *store.Memory, *eventtest.Recorder, *fakeClock) {
	t.Helper()
	users := store.NewMemory()
	users.Put(&usermodel.User{UserID: "A", Name: "Alice"})
	users.Put(&usermodel.User{UserID: "B", Name: "Bob"})
	users.Put(&usermodel.User{UserID: "C", Name: "Carol"})
	users.Befriend("A", "B")

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	conf.Clock = clock.Now
	rec := eventtest.NewRecorder("A", "B")
	tr := NewTracker(conf, users, rec)
	t.Cleanup(tr.Stop)
	return tr, users, rec, clock
}

func statusEvents(evts []any) []event.StatusUpdate {
	var out []event.StatusUpdate
	for _, e := range evts {
		if s, ok := e.(event.StatusUpdate); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestSweepDemotesInactiveUsers(t *testing.T) {
	tr, users, rec, clock := newFixture(t, TrackerConf{})
	ctx := context.Background()

	if err := tr.MarkOnline(ctx, "A"); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	_ = tr.MarkOnline(ctx, "B")

	// B 保持心跳，A 150s 无活动
	clock.Advance(100 * time.Second)
	tr.Touch(ctx, "B")
	clock.Advance(50 * time.Second)

	if n := tr.SweepOnce(ctx, clock.Now()); n != 1 {
		t.Fatalf("flipped = %d, want 1", n)
	}
	a, _ := users.Get(ctx, "A")
	b, _ := users.Get(ctx, "B")
	if a.IsOnline || !b.IsOnline {
		t.Fatalf("A online=%v B online=%v", a.IsOnline, b.IsOnline)
	}
	got := statusEvents(rec.To("B"))
	if len(got) != 1 || got[0].UserID != "A" || got[0].IsOnline {
		t.Fatalf("B received %+v", got)
	}

	// 再扫一次不会重复通知
	if n := tr.SweepOnce(ctx, clock.Now()); n != 0 {
		t.Fatalf("second sweep flipped %d", n)
	}
}

func TestSweepBatches(t *testing.T) {
	tr, users, _, clock := newFixture(t, TrackerConf{SweepBatch: 1})
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		_ = tr.MarkOnline(ctx, id)
	}
	clock.Advance(3 * time.Minute)
	if n := tr.SweepOnce(ctx, clock.Now()); n != 3 {
		t.Fatalf("flipped = %d, want 3", n)
	}
	stale, _ := users.FindStale(ctx, clock.Now(), 0)
	if len(stale) != 0 {
		t.Fatalf("left online: %d", len(stale))
	}
}

func TestAnnounceAndSync(t *testing.T) {
	tr, _, rec, _ := newFixture(t, TrackerConf{})
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "B")
	_ = tr.MarkOnline(ctx, "A")

	tr.AnnounceOnline(ctx, "A")
	tr.SyncFriendsTo(ctx, "A")

	toB := statusEvents(rec.To("B"))
	if len(toB) != 1 || toB[0].UserID != "A" || !toB[0].IsOnline {
		t.Fatalf("B received %+v", toB)
	}
	toA := statusEvents(rec.To("A"))
	if len(toA) != 1 || toA[0].UserID != "B" || !toA[0].IsOnline {
		t.Fatalf("A received %+v", toA)
	}
}

func TestCloseDoesNotFlipOffline(t *testing.T) {
	tr, users, rec, clock := newFixture(t, TrackerConf{})
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "A")
	tr.Disconnected("A", clock.Now())

	// 重连发生在扫描之前
	clock.Advance(10 * time.Second)
	_ = tr.MarkOnline(ctx, "A")
	clock.Advance(30 * time.Second)
	tr.SweepOnce(ctx, clock.Now())

	a, _ := users.Get(ctx, "A")
	if !a.IsOnline {
		t.Fatalf("reconnect within the window must keep the user online")
	}
	if got := statusEvents(rec.To("B")); len(got) != 0 {
		t.Fatalf("B must not observe a flap, got %+v", got)
	}
	if tr.Pending("A") {
		t.Fatalf("no timer without OfflineGrace")
	}
}

func TestDelayedOffline(t *testing.T) {
	tr, users, rec, clock := newFixture(t, TrackerConf{OfflineGrace: 20 * time.Millisecond})
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "A")
	tr.SetConnChecker(connSet{})
	tr.Disconnected("A", clock.Now())
	if !tr.Pending("A") {
		t.Fatalf("expected pending timer")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a, _ := users.Get(ctx, "A"); !a.IsOnline {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a, _ := users.Get(ctx, "A"); a.IsOnline {
		t.Fatalf("delayed offline did not fire")
	}
	got := statusEvents(rec.To("B"))
	if len(got) != 1 || got[0].IsOnline {
		t.Fatalf("B received %+v", got)
	}
}

func TestDelayedOfflineCancelledByReconnect(t *testing.T) {
	tr, users, _, clock := newFixture(t, TrackerConf{OfflineGrace: time.Hour})
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "A")
	tr.Disconnected("A", clock.Now())
	_ = tr.MarkOnline(ctx, "A")
	if tr.Pending("A") {
		t.Fatalf("reconnect must cancel the timer")
	}
	if a, _ := users.Get(ctx, "A"); !a.IsOnline {
		t.Fatalf("user must stay online")
	}
}

func TestDelayedOfflineSkipsConnectedUser(t *testing.T) {
	tr, users, _, clock := newFixture(t, TrackerConf{OfflineGrace: time.Hour})
	ctx := context.Background()
	_ = tr.MarkOnline(ctx, "A")
	tr.SetConnChecker(connSet{"A": true})
	tr.expire("A", clock.Now())
	if a, _ := users.Get(ctx, "A"); !a.IsOnline {
		t.Fatalf("connected user must not be flipped")
	}
}

func TestMarkOnlineUnknownUser(t *testing.T) {
	tr, _, _, _ := newFixture(t, TrackerConf{})
	if err := tr.MarkOnline(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}
