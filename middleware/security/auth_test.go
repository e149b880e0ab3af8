package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
)

func newEngine(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(opts), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+Role(c))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	jwtOpts := security.DefaultOptions([]byte("k"))
	opts := DefaultOptions(jwtOpts)
	opts.QueryToken = "token"
	r := newEngine(opts)

	client, _, _ := security.Generate(jwtOpts, "1001", security.RoleClient)
	admin, _, _ := security.Generate(jwtOpts, "9", "admin")

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer", "Bearer " + client, "", http.StatusOK, "1001|client"},
		{"raw header", client, "", http.StatusOK, "1001|client"},
		{"query", "", client, http.StatusOK, "1001|client"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"wrong role", "Bearer " + admin, "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/me"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}
