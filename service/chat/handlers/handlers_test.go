package handlers

import (
	"context"
	"testing"

	"PMobility/global/event"
	usermodel "PMobility/module/user/model"
	"PMobility/service/chat"
	"PMobility/tools/errs"
)

type fakeUsers struct {
	calls []usermodel.Location
}

func (f *fakeUsers) UpdateLocation(_ context.Context, _ string, loc usermodel.Location) (int, error) {
	if !loc.Valid() {
		return 0, errs.ErrInvalidInput.WrapMsg("bad location")
	}
	f.calls = append(f.calls, loc)
	return 1, nil
}

type fakeMsgs struct {
	read   []string
	typing []bool
}

func (f *fakeMsgs) MarkRead(_ context.Context, conv, _ string) (int64, error) {
	f.read = append(f.read, conv)
	return 2, nil
}

func (f *fakeMsgs) NotifyTyping(_ context.Context, _, _ string, typing bool) (int, error) {
	f.typing = append(f.typing, typing)
	return 1, nil
}

func frame(t *testing.T, raw string) *chat.Frame {
	t.Helper()
	f, err := chat.ParseFrame([]byte(raw))
	if err != nil {
		t.Fatalf("ParseFrame(%s): %v", raw, err)
	}
	return f
}

func TestHandlersRoute(t *testing.T) {
	users, msgs := &fakeUsers{}, &fakeMsgs{}
	d := chat.NewDispatcher()
	d.Register(All(users, msgs)...)
	sess := &chat.Session{UserID: "1001"}
	ctx := context.Background()

	for _, typ := range []string{event.TypeHeartbeat, event.TypeLocationUpdate, event.TypeReadMessages, event.TypeTyping, event.TypeStopTyping} {
		if d.GetHandler(typ) == nil {
			t.Fatalf("no handler for %s", typ)
		}
	}

	cases := []struct {
		raw     string
		wantErr bool
	}{
		{`{"type":"heartbeat"}`, false},
		{`{"type":"location_update","location":{"lat":31.2,"lng":121.5}}`, false},
		{`{"type":"location_update","location":{"lat":"31.2","lng":121.5}}`, false},
		{`{"type":"location_update"}`, true},
		{`{"type":"location_update","location":{"lat":200,"lng":0}}`, true},
		{`{"type":"read_messages","conversationId":"c1"}`, false},
		{`{"type":"read_messages"}`, true},
		{`{"type":"typing","conversationId":"c1"}`, false},
		{`{"type":"stop_typing","conversationId":"c1"}`, false},
		{`{"type":"typing","conversationId":42}`, true},
	}
	for _, tc := range cases {
		ok, err := d.Dispatch(ctx, sess, frame(t, tc.raw))
		if !ok {
			t.Fatalf("%s not recognized", tc.raw)
		}
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tc.raw, err, tc.wantErr)
		}
	}

	if len(users.calls) != 2 || users.calls[0].Lat != 31.2 || users.calls[1].Lng != 121.5 {
		t.Fatalf("locations = %+v", users.calls)
	}
	if len(msgs.read) != 1 || msgs.read[0] != "c1" {
		t.Fatalf("read = %v", msgs.read)
	}
	if len(msgs.typing) != 2 || !msgs.typing[0] || msgs.typing[1] {
		t.Fatalf("typing = %v", msgs.typing)
	}
}
