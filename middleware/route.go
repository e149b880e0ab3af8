package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Routes 对 gin 路由的薄封装：IsAuth 的路由前置鉴权中间件
type Routes struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRoutes(r gin.IRoutes, auth gin.HandlerFunc) *Routes {
	return &Routes{r: r, auth: auth}
}

func (x *Routes) chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && x.auth != nil {
		return []gin.HandlerFunc{x.auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func (x *Routes) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.r.POST(path, x.chain(handler, opt)...)
}

// 封装 GET
func (x *Routes) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.r.GET(path, x.chain(handler, opt)...)
}

// 封装 PUT
func (x *Routes) PUT(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.r.PUT(path, x.chain(handler, opt)...)
}
