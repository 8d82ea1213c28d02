package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryMiddleware panic 恢复中间件
// 错误体与 handler 层的 {code, msg} 约定一致
// 响应已经开始写出（如 SSE 流中途）时只中断，不再补写 JSON
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %s %s: %v\n%s",
					c.Request.Method, c.Request.URL.Path, err, debug.Stack())
				if !c.Writer.Written() {
					c.JSON(http.StatusInternalServerError, gin.H{
						"code": http.StatusInternalServerError,
						"msg":  "internal server error",
					})
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
