package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware 请求日志中间件
// 认证之后执行时会带上 user_id，便于按用户排查会话和附件问题
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		userID := "-"
		if id, ok := GetUserID(c); ok {
			userID = id
		}

		log.Printf("%s %s | status=%d user=%s bytes=%d latency=%v",
			c.Request.Method,
			path,
			c.Writer.Status(),
			userID,
			c.Writer.Size(),
			time.Since(start),
		)
	}
}
