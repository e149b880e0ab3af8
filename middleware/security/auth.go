package security

import (
	"net/http"
	"strings"

	"PMobility/global"
	"PMobility/tools/errs"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
)

// ===== context key =====
// 后续模块统一用这俩 key 读取调用者
const (
	PPCtxUserIDKey = "pm.userId"
	PPCtxRoleKey   = "pm.role"
)

type Options struct {
	JWT security.Options

	HeaderToken               string   // 默认 "Authorization"
	EnableAuthorizationBearer bool     // 默认 true
	QueryToken                string   // 非空时允许 ?<QueryToken>= 携带令牌
	Roles                     []string // 允许的角色；空=不限制
}

func DefaultOptions(jwt security.Options) *Options {
	return &Options{
		JWT:                       jwt,
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
		Roles:                     []string{security.RoleClient},
	}
}

// ExtractToken 依次从 header / bearer / query 读取令牌
func ExtractToken(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	if opts.EnableAuthorizationBearer && len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}

func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c, opts)
		if token == "" {
			abort(c, "missing token")
			return
		}
		id, err := security.Verify(opts.JWT, token)
		if err != nil {
			abort(c, err.Error())
			return
		}
		if !roleAllowed(opts.Roles, id.Role) {
			abort(c, "role not allowed")
			return
		}

		c.Set(PPCtxUserIDKey, id.UserID)
		c.Set(PPCtxRoleKey, id.Role)
		c.Next()
	}
}

// UserID 读取鉴权后写入的用户ID
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}

func Role(c *gin.Context) string {
	return c.GetString(PPCtxRoleKey)
}

func roleAllowed(allowed []string, role string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		global.Failure(errs.AuthenticationError, errs.ErrAuthentication.Msg+": "+detail))
}
