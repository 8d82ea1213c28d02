package handler

import (
	"github.com/ashwinyue/advisor-ai/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth         *AuthHandler
	Conversation *ConversationHandler
	Attachment   *AttachmentHandler
	Chat         *ChatHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(svc),
		Conversation: NewConversationHandler(svc),
		Attachment:   NewAttachmentHandler(svc),
		Chat:         NewChatHandler(svc),
	}
}
