package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/middleware"
	"github.com/ashwinyue/advisor-ai/internal/service"
)

// ConversationHandler 会话处理器
type ConversationHandler struct {
	svc *service.Services
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(svc *service.Services) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// Create 创建会话
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	conv, err := h.svc.Conversation.Create(c.Request.Context(), userID, req.Title)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, conv)
}

// List 列出会话
func (h *ConversationHandler) List(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	convs, err := h.svc.Conversation.List(c.Request.Context(), userID, offset, limit)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, convs)
}

// Get 获取会话及其消息
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("id")

	conv, err := h.svc.Conversation.GetOwned(c.Request.Context(), id, userID)
	if err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	msgs, err := h.svc.Conversation.GetMessages(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"conversation": conv,
		"messages":     msgs,
	})
}

// Messages 分页加载消息历史
// before_time 取 RFC3339 格式，省略时从最新开始
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("id")

	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), id, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	beforeTime := c.Query("before_time")

	msgs, err := h.svc.Conversation.LoadMessages(c.Request.Context(), id, beforeTime, limit)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"messages": msgs})
}

// Update 更新会话标题
func (h *ConversationHandler) Update(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("id")

	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), id, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	if err := h.svc.Conversation.Rename(c.Request.Context(), id, req.Title); err != nil {
		Error(c, err)
		return
	}

	conv, err := h.svc.Conversation.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, conv)
}

// Delete 删除会话
func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("id")

	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), id, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	if err := h.svc.Conversation.Delete(c.Request.Context(), id); err != nil {
		Error(c, err)
		return
	}

	NoContent(c)
}
