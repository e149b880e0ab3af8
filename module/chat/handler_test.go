package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PMobility/global/event/eventtest"
	"PMobility/middleware"
	authmw "PMobility/middleware/security"
	"PMobility/module/chat/message"
	"PMobility/module/chat/service"
	usermodel "PMobility/module/user/model"
	"PMobility/module/user/store"
	"PMobility/service/push"
	"PMobility/tools/errs"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
)

type restFixture struct {
	engine *gin.Engine
	jwt    security.Options
	rec    *eventtest.Recorder
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users := store.NewMemory()
	users.Put(&usermodel.User{UserID: "1001", Name: "Alice"})
	users.Put(&usermodel.User{UserID: "1002", Name: "Bob"})
	users.Put(&usermodel.User{UserID: "1003", Name: "Carol"})
	msgs := message.NewMemStore()

	f := &restFixture{jwt: security.DefaultOptions([]byte("rest-test")), rec: eventtest.NewRecorder("1001", "1002")}
	svc := service.NewMessageService(service.MessageConf{}, msgs, msgs, users, f.rec, push.LogNotifier{})

	f.engine = gin.New()
	routes := middleware.NewRoutes(f.engine, authmw.Middleware(authmw.DefaultOptions(f.jwt)))
	NewHandler(svc).Register(routes)
	return f
}

func (f *restFixture) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, _, err := security.Generate(f.jwt, user, security.RoleClient)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("no data object in %v", body)
	}
	return d
}

func TestConversationFlow(t *testing.T) {
	f := newRESTFixture(t)

	code, body := f.do(t, http.MethodPost, "/client/conversations", "1001", map[string]string{"participantId": "1002"})
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	convID, _ := data(t, body)["id"].(string)
	if convID == "" {
		t.Fatalf("missing conversation id: %v", body)
	}

	code, body = f.do(t, http.MethodPost, "/client/conversations", "1002", map[string]string{"participantId": "1001"})
	if code != http.StatusOK || data(t, body)["id"] != convID {
		t.Fatalf("second create should return the same conversation: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/client/conversations/"+convID+"/messages", "1001", map[string]string{"content": "hi"})
	if code != http.StatusCreated || data(t, body)["content"] != "hi" {
		t.Fatalf("send = %d %v", code, body)
	}
	if len(f.rec.To("1002")) != 1 {
		t.Fatalf("bob should get new_message, got %v", f.rec.To("1002"))
	}

	code, body = f.do(t, http.MethodGet, "/client/conversations", "1002", nil)
	list, _ := body["data"].([]any)
	if code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d %v", code, body)
	}
	if n := list[0].(map[string]any)["unreadCount"]; n != float64(1) {
		t.Fatalf("bob unreadCount = %v", n)
	}

	code, body = f.do(t, http.MethodPost, "/client/conversations/"+convID+"/read", "1002", nil)
	if code != http.StatusOK || data(t, body)["success"] != true || data(t, body)["messagesRead"] != float64(1) {
		t.Fatalf("read = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/client/conversations/"+convID+"/messages?limit=10", "1001", nil)
	page := data(t, body)
	if code != http.StatusOK || len(page["data"].([]any)) != 1 {
		t.Fatalf("messages = %d %v", code, body)
	}
	if page["pagination"].(map[string]any)["hasMore"] != false {
		t.Fatalf("pagination = %v", page["pagination"])
	}
}

func TestConversationErrors(t *testing.T) {
	f := newRESTFixture(t)
	_, body := f.do(t, http.MethodPost, "/client/conversations", "1001", map[string]string{"participantId": "1002"})
	convID := data(t, body)["id"].(string)

	cases := []struct {
		name, method, path, user string
		body                     any
		status, code             int
	}{
		{"no token", http.MethodGet, "/client/conversations", "", nil, http.StatusUnauthorized, errs.AuthenticationError},
		{"self conversation", http.MethodPost, "/client/conversations", "1001", map[string]string{"participantId": "1001"}, http.StatusBadRequest, errs.ArgsError},
		{"unknown participant", http.MethodPost, "/client/conversations", "1001", map[string]string{"participantId": "4242"}, http.StatusNotFound, errs.RecordNotFoundError},
		{"empty content", http.MethodPost, "/client/conversations/" + convID + "/messages", "1001", map[string]string{"content": "   "}, http.StatusBadRequest, errs.ArgsError},
		{"outsider send", http.MethodPost, "/client/conversations/" + convID + "/messages", "1003", map[string]string{"content": "hey"}, http.StatusNotFound, errs.NotAParticipantError},
		{"outsider read", http.MethodPost, "/client/conversations/" + convID + "/read", "1003", nil, http.StatusNotFound, errs.NotAParticipantError},
		{"missing conversation", http.MethodGet, "/client/conversations/999/messages", "1001", nil, http.StatusNotFound, errs.NotAParticipantError},
		{"bad limit", http.MethodGet, "/client/conversations/" + convID + "/messages?limit=x", "1001", nil, http.StatusBadRequest, errs.ArgsError},
		{"bad cursor", http.MethodGet, "/client/conversations/" + convID + "/messages?before=yesterday", "1001", nil, http.StatusBadRequest, errs.ArgsError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, tc.method, tc.path, tc.user, tc.body)
			if code != tc.status {
				t.Fatalf("status = %d, want %d (%v)", code, tc.status, body)
			}
			if got := body["code"]; got != float64(tc.code) {
				t.Fatalf("code = %v, want %d", got, tc.code)
			}
		})
	}
}
