package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAllowed 判断浏览器来源是否可接受：dev 环境或未配置白名单时放行所有来源，
// 否则只接受白名单中的来源与同源请求。
func OriginAllowed(env string, allowed []string, origin, host string) bool {
	if origin == "" || env == "dev" {
		return true
	}
	if len(allowed) == 0 {
		return sameHost(origin, host)
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), origin) {
			return true
		}
	}
	return false
}

func sameHost(origin, host string) bool {
	if i := strings.Index(origin, "://"); i >= 0 {
		origin = origin[i+3:]
	}
	return strings.EqualFold(origin, host)
}

// CORS 返回一个支持跨域请求的中间件。
func CORS(env string, allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if OriginAllowed(env, allowed, origin, c.Request.Host) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
