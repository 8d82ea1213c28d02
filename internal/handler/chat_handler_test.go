package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/model"
	"github.com/ashwinyue/advisor-ai/internal/service"
	"github.com/ashwinyue/advisor-ai/internal/service/conversation"
	"github.com/ashwinyue/advisor-ai/internal/service/orchestrator"
)

// ========== Mock 实现 ==========

type mockChatRepository struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
}

func newMockChatRepository() *mockChatRepository {
	return &mockChatRepository{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
	}
}

func (r *mockChatRepository) Create(conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conv.ID] = conv
	return nil
}

func (r *mockChatRepository) GetByID(id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return conv, nil
}

func (r *mockChatRepository) List(userID string, offset, limit int) ([]*model.Conversation, error) {
	return nil, nil
}

func (r *mockChatRepository) UpdateTitle(id, title string) error { return nil }

func (r *mockChatRepository) Delete(id string) error { return nil }

func (r *mockChatRepository) CreateMessage(msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

func (r *mockChatRepository) GetMessages(conversationID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Message(nil), r.messages[conversationID]...), nil
}

func (r *mockChatRepository) GetMessagesBefore(conversationID, beforeTime string, limit int) ([]*model.Message, error) {
	return r.GetRecentMessages(conversationID, limit)
}

func (r *mockChatRepository) GetRecentMessages(conversationID string, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	// 仓储按时间倒序返回
	out := make([]*model.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (r *mockChatRepository) CountMessages(conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.messages[conversationID])), nil
}

func (r *mockChatRepository) messageCount(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[conversationID])
}

type mockEmptyLister struct{}

func (l *mockEmptyLister) ListCompletedByConversation(conversationID string) ([]*model.Attachment, error) {
	return nil, nil
}

// fakeOrchestrator 按固定脚本回放事件
type fakeOrchestrator struct {
	events []*orchestrator.Event
	answer string
	err    error
}

func (o *fakeOrchestrator) ProcessQuery(ctx context.Context, req *orchestrator.Request, emit func(*orchestrator.Event)) (*orchestrator.Result, error) {
	for _, ev := range o.events {
		emit(ev)
	}
	if o.err != nil {
		return nil, o.err
	}
	return &orchestrator.Result{Answer: o.answer}, nil
}

// ========== 测试辅助 ==========

func newChatTestServer(t *testing.T, repo *mockChatRepository, orch orchestrator.Orchestrator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	convSvc := conversation.NewService(
		repo,
		conversation.NewTurnCache(nil),
		conversation.NewAssembler(&mockEmptyLister{}),
		nil,
	)
	svc := &service.Services{
		Conversation: convSvc,
		Orchestrator: orch,
	}
	h := NewChatHandler(svc)

	r := gin.New()
	r.POST("/conversations/:id/chat", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	}, h.Stream)
	return r
}

func seedChatConversation(t *testing.T, repo *mockChatRepository) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{ID: "conv-1", UserID: "user-1", Title: conversation.DefaultTitle}
	if err := repo.Create(conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func postChat(r *gin.Engine, conversationID, message string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"message": message})
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/conversations/%s/chat", conversationID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseSSEEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("invalid event payload %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

// ========== 测试用例 ==========

func TestChatStreamRelaysEventsInOrder(t *testing.T) {
	repo := newMockChatRepository()
	seedChatConversation(t, repo)

	orch := &fakeOrchestrator{
		events: []*orchestrator.Event{
			{Type: "start"},
			{Type: "message", Data: "Hello"},
			{Type: "tool_call", ToolName: "web_search"},
			{Type: "message", Data: " world"},
		},
		answer: "Hello world",
	}
	r := newChatTestServer(t, repo, orch)

	w := postChat(r, "conv-1", "hi there")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := parseSSEEvents(t, w.Body.String())
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	wantTypes := []string{"start", "message", "tool_call", "message", "complete"}
	for i, want := range wantTypes {
		if events[i]["type"] != want {
			t.Errorf("event[%d].type = %v, want %q", i, events[i]["type"], want)
		}
	}
	if events[2]["tool_name"] != "web_search" {
		t.Errorf("tool_call event tool_name = %v, want web_search", events[2]["tool_name"])
	}

	data, ok := events[4]["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("complete event data = %v, want object", events[4]["data"])
	}
	if data["answer"] != "Hello world" {
		t.Errorf("complete answer = %v, want %q", data["answer"], "Hello world")
	}
}

func TestChatStreamExactlyOneTerminalEvent(t *testing.T) {
	repo := newMockChatRepository()
	seedChatConversation(t, repo)

	r := newChatTestServer(t, repo, &fakeOrchestrator{answer: "done"})
	w := postChat(r, "conv-1", "question")

	events := parseSSEEvents(t, w.Body.String())
	terminal := 0
	for _, ev := range events {
		if ev["type"] == "complete" || ev["type"] == "error" {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminal)
	}
	if events[len(events)-1]["type"] != "complete" {
		t.Errorf("last event = %v, want complete", events[len(events)-1]["type"])
	}
}

func TestChatStreamOrchestratorError(t *testing.T) {
	repo := newMockChatRepository()
	seedChatConversation(t, repo)

	orch := &fakeOrchestrator{
		events: []*orchestrator.Event{{Type: "start"}},
		err:    errors.New("model unavailable"),
	}
	r := newChatTestServer(t, repo, orch)
	w := postChat(r, "conv-1", "question")

	events := parseSSEEvents(t, w.Body.String())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	last := events[len(events)-1]
	if last["type"] != "error" {
		t.Fatalf("last event = %v, want error", last["type"])
	}
	if !strings.Contains(last["error"].(string), "model unavailable") {
		t.Errorf("error message = %v, want to mention model unavailable", last["error"])
	}
	// 失败的轮次不写入助手消息
	if n := repo.messageCount("conv-1"); n != 1 {
		t.Errorf("persisted messages = %d, want 1 (user turn only)", n)
	}
}

func TestChatStreamPersistsBothTurns(t *testing.T) {
	repo := newMockChatRepository()
	seedChatConversation(t, repo)

	r := newChatTestServer(t, repo, &fakeOrchestrator{answer: "the answer"})
	w := postChat(r, "conv-1", "the question")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	msgs, _ := repo.GetMessages("conv-1")
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "the question" {
		t.Errorf("first message = %s %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "the answer" {
		t.Errorf("second message = %s %q", msgs[1].Role, msgs[1].Content)
	}
}

func TestChatStreamUnknownConversation(t *testing.T) {
	repo := newMockChatRepository()
	r := newChatTestServer(t, repo, &fakeOrchestrator{answer: "x"})

	w := postChat(r, "missing", "hi")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestChatStreamOwnershipMismatch(t *testing.T) {
	repo := newMockChatRepository()
	conv := &model.Conversation{ID: "conv-2", UserID: "someone-else", Title: conversation.DefaultTitle}
	if err := repo.Create(conv); err != nil {
		t.Fatal(err)
	}
	r := newChatTestServer(t, repo, &fakeOrchestrator{answer: "x"})

	w := postChat(r, "conv-2", "hi")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d (ownership mismatch hides existence)", w.Code, http.StatusNotFound)
	}
}

func TestChatStreamMissingMessage(t *testing.T) {
	repo := newMockChatRepository()
	seedChatConversation(t, repo)
	r := newChatTestServer(t, repo, &fakeOrchestrator{answer: "x"})

	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/chat",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
