package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PMobility/global/event"
	"PMobility/global/event/eventtest"
	"PMobility/middleware"
	authmw "PMobility/middleware/security"
	usermodel "PMobility/module/user/model"
	"PMobility/module/user/service"
	"PMobility/module/user/store"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
)

func newEngine(t *testing.T) (*gin.Engine, *store.Memory, *eventtest.Recorder, security.Options) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users := store.NewMemory()
	users.Put(&usermodel.User{UserID: "1001", Name: "Alice"})
	users.Put(&usermodel.User{UserID: "1002", Name: "Bob", IsOnline: true})
	users.Befriend("1001", "1002")
	rec := eventtest.NewRecorder("1002")

	jwt := security.DefaultOptions([]byte("user-test"))
	r := gin.New()
	NewHandler(service.NewProfile(users, rec)).Register(middleware.NewRoutes(r, authmw.Middleware(authmw.DefaultOptions(jwt))))
	return r, users, rec, jwt
}

func call(t *testing.T, r *gin.Engine, jwt security.Options, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	tok, _, _ := security.Generate(jwt, "1001", security.RoleClient)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateLocation(t *testing.T) {
	r, users, rec, jwt := newEngine(t)

	for _, tc := range []struct {
		body   string
		status int
	}{
		{`{"lat":31.23,"lng":121.47}`, http.StatusOK},
		{`{"lat":31.23}`, http.StatusBadRequest},
		{`{"lat":95,"lng":0}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	} {
		if w := call(t, r, jwt, http.MethodPut, "/client/location", tc.body); w.Code != tc.status {
			t.Errorf("%s -> %d, want %d (%s)", tc.body, w.Code, tc.status, w.Body.String())
		}
	}

	u, _ := users.Get(context.Background(), "1001")
	if u.LastLocation == nil || u.LastLocation.Lat != 31.23 {
		t.Fatalf("location not stored: %+v", u.LastLocation)
	}
	got := rec.To("1002")
	if len(got) != 1 {
		t.Fatalf("friend should receive one location_update, got %v", got)
	}
	if lu, ok := got[0].(event.LocationUpdate); !ok || lu.UserID != "1001" || lu.Location.Lng != 121.47 {
		t.Fatalf("event = %+v", got[0])
	}
}

func TestRegisterDeviceAndFriends(t *testing.T) {
	r, users, _, jwt := newEngine(t)

	if w := call(t, r, jwt, http.MethodPost, "/client/fcm-token", `{"fcmToken":"tok-1","device":"ios"}`); w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}
	_ = call(t, r, jwt, http.MethodPost, "/client/fcm-token", `{"fcmToken":"tok-1","device":"ios"}`)
	if w := call(t, r, jwt, http.MethodPost, "/client/fcm-token", `{"device":"ios"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing token = %d", w.Code)
	}
	u, _ := users.Get(context.Background(), "1001")
	if len(u.Devices) != 1 {
		t.Fatalf("duplicate token stored twice: %+v", u.Devices)
	}

	w := call(t, r, jwt, http.MethodGet, "/client/friends", "")
	var body struct {
		Data []usermodel.Profile `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || w.Code != http.StatusOK {
		t.Fatalf("friends = %d %s", w.Code, w.Body.String())
	}
	if len(body.Data) != 1 || body.Data[0].UserID != "1002" || !body.Data[0].IsOnline {
		t.Fatalf("friends = %+v", body.Data)
	}
}
