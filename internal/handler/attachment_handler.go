package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/middleware"
	"github.com/ashwinyue/advisor-ai/internal/service"
	"github.com/ashwinyue/advisor-ai/internal/service/attachment"
)

// 上传准入的 MIME 白名单
// 比提取侧的分派表更保守，面向用户的第一道过滤
var allowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/json": true,
	"audio/mpeg":       true,
	"audio/wav":        true,
	"audio/mp4":        true,
	"audio/ogg":        true,
	"video/mp4":        true,
	"video/quicktime":  true,
}

// mimeAllowed 判断上传 MIME 是否在准入范围内
func mimeAllowed(mimeType string) bool {
	if allowedMIMETypes[mimeType] {
		return true
	}
	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "text/")
}

// AttachmentHandler 附件处理器
type AttachmentHandler struct {
	svc *service.Services
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(svc *service.Services) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// Upload 上传附件
// 同步返回 processing 行的公开投影，提取在后台进行
func (h *AttachmentHandler) Upload(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	conversationID := c.Param("id")

	// 归属校验失败按 not found 处理，不泄露会话是否存在
	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), conversationID, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required: "+err.Error())
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !mimeAllowed(contentType) {
		BadRequest(c, "unsupported file type: "+contentType)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		Error(c, err)
		return
	}
	defer f.Close()

	att, err := h.svc.Attachment.Upload(c.Request.Context(), &attachment.UploadRequest{
		ConversationID: conversationID,
		UserID:         userID,
		FileName:       fileHeader.Filename,
		ContentType:    contentType,
		Size:           fileHeader.Size,
		Reader:         f,
	})
	if err != nil {
		Error(c, err)
		return
	}

	// 上传响应是平铺结构，attachment 在顶层
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"attachment": att.ToInfo(),
	})
}

// List 列出会话的附件
// 列表视图带状态和元数据，不带提取正文
func (h *AttachmentHandler) List(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	conversationID := c.Param("id")

	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), conversationID, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	atts, err := h.svc.Attachment.List(c.Request.Context(), conversationID)
	if err != nil {
		Error(c, err)
		return
	}

	// 列表响应剔除提取正文
	for _, att := range atts {
		att.ExtractedContent = ""
	}

	Success(c, atts)
}

// Get 获取单个附件（含提取正文），用于轮询处理状态
func (h *AttachmentHandler) Get(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("attachmentId")

	att, err := h.svc.Attachment.Get(c.Request.Context(), id)
	if err != nil || att.UserID != userID {
		NotFound(c, "Attachment not found")
		return
	}

	Success(c, att)
}

// Delete 删除附件
func (h *AttachmentHandler) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("attachmentId")

	att, err := h.svc.Attachment.Get(c.Request.Context(), id)
	if err != nil || att.UserID != userID {
		NotFound(c, "Attachment not found")
		return
	}

	if err := h.svc.Attachment.Delete(c.Request.Context(), id); err != nil {
		Error(c, err)
		return
	}

	NoContent(c)
}
