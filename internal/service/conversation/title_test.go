package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

// fakeChatModel 返回预设内容的模型
type fakeChatModel struct {
	content string
	err     error
	calls   int
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...ecomodel.Option) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

// mockConversationRepository Mock Conversation Repository
type mockConversationRepository struct {
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
	titleUpdates  []string
	updateError   error
}

func newMockConversationRepo() *mockConversationRepository {
	return &mockConversationRepository{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
	}
}

func (m *mockConversationRepository) Create(conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	m.conversations[conv.ID] = conv
	return nil
}

func (m *mockConversationRepository) GetByID(id string) (*model.Conversation, error) {
	if conv, ok := m.conversations[id]; ok {
		cp := *conv
		return &cp, nil
	}
	return nil, errors.New("conversation not found")
}

func (m *mockConversationRepository) List(userID string, offset, limit int) ([]*model.Conversation, error) {
	result := make([]*model.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			result = append(result, conv)
		}
	}
	return result, nil
}

func (m *mockConversationRepository) UpdateTitle(id, title string) error {
	if m.updateError != nil {
		return m.updateError
	}
	conv, ok := m.conversations[id]
	if !ok {
		return errors.New("conversation not found")
	}
	conv.Title = title
	m.titleUpdates = append(m.titleUpdates, title)
	return nil
}

func (m *mockConversationRepository) Delete(id string) error {
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *mockConversationRepository) CreateMessage(msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *mockConversationRepository) GetMessages(conversationID string) ([]*model.Message, error) {
	return m.messages[conversationID], nil
}

func (m *mockConversationRepository) GetMessagesBefore(conversationID, beforeTime string, limit int) ([]*model.Message, error) {
	return m.GetRecentMessages(conversationID, limit)
}

func (m *mockConversationRepository) GetRecentMessages(conversationID string, limit int) ([]*model.Message, error) {
	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	// 按仓库约定倒序返回
	out := make([]*model.Message, len(msgs))
	for i, msg := range msgs {
		out[len(msgs)-1-i] = msg
	}
	return out, nil
}

func (m *mockConversationRepository) CountMessages(conversationID string) (int64, error) {
	return int64(len(m.messages[conversationID])), nil
}

func seedConversation(repo *mockConversationRepository, title string, turns int) *model.Conversation {
	conv := &model.Conversation{UserID: "user-1", Title: title}
	repo.Create(conv)
	for i := 0; i < turns; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		repo.CreateMessage(&model.Message{ConversationID: conv.ID, Role: role, Content: "turn"})
	}
	return conv
}

func TestGenerateTitleSanitizes(t *testing.T) {
	g := NewTitleGenerator(&fakeChatModel{content: `  "Portfolio Review"  `}, time.Second)
	title, err := g.Generate(context.Background(), []*model.Message{{Role: "user", Content: "review my portfolio"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if title != "Portfolio Review" {
		t.Errorf("expected sanitized title, got %q", title)
	}
}

func TestGenerateTitleEmptyTurns(t *testing.T) {
	fake := &fakeChatModel{content: "anything"}
	g := NewTitleGenerator(fake, time.Second)
	title, err := g.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if title != "" {
		t.Errorf("expected empty title for no turns, got %q", title)
	}
	if fake.calls != 0 {
		t.Error("model must not be called without turns")
	}
}

func TestMaybeGenerateTitleUpdatesDefault(t *testing.T) {
	repo := newMockConversationRepo()
	conv := seedConversation(repo, DefaultTitle, 2)
	svc := NewService(repo, nil, nil, NewTitleGenerator(&fakeChatModel{content: "Retirement Plan"}, time.Second))

	svc.MaybeGenerateTitle(context.Background(), conv.ID)

	got, _ := repo.GetByID(conv.ID)
	if got.Title != "Retirement Plan" {
		t.Errorf("expected updated title, got %q", got.Title)
	}
}

func TestMaybeGenerateTitleSkipsCustomTitle(t *testing.T) {
	repo := newMockConversationRepo()
	conv := seedConversation(repo, "My Advisor Chat", 4)
	fake := &fakeChatModel{content: "Should Not Apply"}
	svc := NewService(repo, nil, nil, NewTitleGenerator(fake, time.Second))

	svc.MaybeGenerateTitle(context.Background(), conv.ID)

	if fake.calls != 0 {
		t.Error("title model must not run for a non-default title")
	}
	got, _ := repo.GetByID(conv.ID)
	if got.Title != "My Advisor Chat" {
		t.Errorf("title must be untouched, got %q", got.Title)
	}
}

func TestMaybeGenerateTitleNeedsTwoTurns(t *testing.T) {
	repo := newMockConversationRepo()
	conv := seedConversation(repo, DefaultTitle, 1)
	fake := &fakeChatModel{content: "Too Early"}
	svc := NewService(repo, nil, nil, NewTitleGenerator(fake, time.Second))

	svc.MaybeGenerateTitle(context.Background(), conv.ID)

	if fake.calls != 0 {
		t.Error("title model must not run with fewer than two turns")
	}
}

func TestMaybeGenerateTitleSwallowsModelFailure(t *testing.T) {
	repo := newMockConversationRepo()
	conv := seedConversation(repo, DefaultTitle, 2)
	svc := NewService(repo, nil, nil, NewTitleGenerator(&fakeChatModel{err: errors.New("model down")}, time.Second))

	svc.MaybeGenerateTitle(context.Background(), conv.ID)

	got, _ := repo.GetByID(conv.ID)
	if got.Title != DefaultTitle {
		t.Errorf("title must stay default after failure, got %q", got.Title)
	}
}

func TestMaybeGenerateTitleSkipsEmptyResult(t *testing.T) {
	repo := newMockConversationRepo()
	conv := seedConversation(repo, DefaultTitle, 2)
	svc := NewService(repo, nil, nil, NewTitleGenerator(&fakeChatModel{content: "   "}, time.Second))

	svc.MaybeGenerateTitle(context.Background(), conv.ID)

	if len(repo.titleUpdates) != 0 {
		t.Errorf("empty generation must not update the title, got %v", repo.titleUpdates)
	}
}
