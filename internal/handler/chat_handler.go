package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/middleware"
	"github.com/ashwinyue/advisor-ai/internal/model"
	"github.com/ashwinyue/advisor-ai/internal/service"
	"github.com/ashwinyue/advisor-ai/internal/service/orchestrator"
)

// 取最近多少条持久化消息作为模型上下文
const historyTurnLimit = 20

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// HistoryMessage 客户端携带的历史消息
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话请求
// conversation_history 可选，缺省时用服务端持久化的最近消息
type ChatRequest struct {
	Message             string           `json:"message" binding:"required"`
	ConversationHistory []HistoryMessage `json:"conversation_history"`
}

// streamEvent SSE 线格式
// 终态事件恰好一个：complete 或 error
type streamEvent struct {
	Type     string      `json:"type"`
	Data     interface{} `json:"data,omitempty"`
	ToolName string      `json:"tool_name,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Stream 单轮对话，SSE 流式返回
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	conversationID := c.Param("id")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if _, err := h.svc.Conversation.GetOwned(c.Request.Context(), conversationID, userID); err != nil {
		NotFound(c, "Conversation not found")
		return
	}

	ctx := c.Request.Context()

	// 先持久化用户消息，再拼装上下文
	if _, err := h.svc.Conversation.AddMessage(ctx, conversationID, model.RoleUser, req.Message); err != nil {
		Error(c, err)
		return
	}

	history, err := h.resolveHistory(ctx, conversationID, &req)
	if err != nil {
		Error(c, err)
		return
	}

	// 已完成附件的提取内容拼进出站消息
	outbound, err := h.svc.Conversation.BuildContext(ctx, conversationID, req.Message)
	if err != nil {
		Error(c, err)
		return
	}

	// 设置 SSE 响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	writeEvent := func(ev *streamEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Warning: failed to marshal stream event: %v", err)
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}

	result, err := h.svc.Orchestrator.ProcessQuery(ctx, &orchestrator.Request{
		ConversationID: conversationID,
		UserID:         userID,
		Message:        outbound,
		History:        history,
	}, func(ev *orchestrator.Event) {
		writeEvent(&streamEvent{Type: ev.Type, Data: ev.Data, ToolName: ev.ToolName})
	})
	if err != nil {
		writeEvent(&streamEvent{Type: "error", Error: err.Error()})
		return
	}

	if _, err := h.svc.Conversation.AddMessage(ctx, conversationID, model.RoleAssistant, result.Answer); err != nil {
		log.Printf("Warning: failed to persist assistant message for conversation %s: %v", conversationID, err)
	}

	writeEvent(&streamEvent{Type: "complete", Data: result})

	// 流已结束，标题生成不占用请求生命周期
	go h.svc.Conversation.MaybeGenerateTitle(context.Background(), conversationID)
}

// resolveHistory 选取本轮历史
// 客户端自带历史优先，否则读服务端最近消息并去掉刚入库的本轮
func (h *ChatHandler) resolveHistory(ctx context.Context, conversationID string, req *ChatRequest) ([]*model.Message, error) {
	if len(req.ConversationHistory) > 0 {
		history := make([]*model.Message, 0, len(req.ConversationHistory))
		for _, m := range req.ConversationHistory {
			history = append(history, &model.Message{
				ConversationID: conversationID,
				Role:           m.Role,
				Content:        m.Content,
			})
		}
		return history, nil
	}

	history, err := h.svc.Conversation.GetRecentTurns(ctx, conversationID, historyTurnLimit)
	if err != nil {
		return nil, err
	}
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser && history[n-1].Content == req.Message {
		history = history[:n-1]
	}
	return history, nil
}
