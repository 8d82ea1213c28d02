package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/handler"
	"github.com/ashwinyue/advisor-ai/internal/middleware"
	"github.com/ashwinyue/advisor-ai/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, svc *service.Services) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Auth 认证
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
			authGroup.POST("/refresh", h.Auth.RefreshToken)
		}

		// 以下路由需要登录
		authed := v1.Group("")
		authed.Use(middleware.RequireAuth(svc))
		{
			authed.GET("/auth/me", h.Auth.Me)
			authed.POST("/auth/logout", h.Auth.Logout)
			authed.POST("/auth/change-password", h.Auth.ChangePassword)

			// Conversation 会话
			convs := authed.Group("/conversations")
			{
				convs.POST("", h.Conversation.Create)
				convs.GET("", h.Conversation.List)
				convs.GET("/:id", h.Conversation.Get)
				convs.PUT("/:id", h.Conversation.Update)
				convs.GET("/:id/messages", h.Conversation.Messages)
				convs.DELETE("/:id", h.Conversation.Delete)

				// Chat 聊天（SSE 流式）
				convs.POST("/:id/chat", h.Chat.Stream)

				// Attachment 附件
				convs.POST("/:id/attachments", h.Attachment.Upload)
				convs.GET("/:id/attachments", h.Attachment.List)
				convs.GET("/:id/attachments/:attachmentId", h.Attachment.Get)
				convs.DELETE("/:id/attachments/:attachmentId", h.Attachment.Delete)
			}
		}
	}

	return r
}
