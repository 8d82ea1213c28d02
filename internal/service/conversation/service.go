// Package conversation 提供会话管理、上下文拼装和自动标题
package conversation

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

// DefaultTitle 新会话的占位标题
const DefaultTitle = "New Conversation"

// Repository 会话数据访问接口
// 接口定义使 Service 层可以轻松 mock 进行单元测试
type Repository interface {
	Create(conv *model.Conversation) error
	GetByID(id string) (*model.Conversation, error)
	List(userID string, offset, limit int) ([]*model.Conversation, error)
	UpdateTitle(id, title string) error
	Delete(id string) error
	CreateMessage(msg *model.Message) error
	GetMessages(conversationID string) ([]*model.Message, error)
	GetRecentMessages(conversationID string, limit int) ([]*model.Message, error)
	GetMessagesBefore(conversationID, beforeTime string, limit int) ([]*model.Message, error)
	CountMessages(conversationID string) (int64, error)
}

// Service 会话服务
type Service struct {
	repo      Repository
	cache     *TurnCache
	assembler *Assembler
	titler    *TitleGenerator
}

// NewService 创建会话服务
func NewService(repo Repository, cache *TurnCache, assembler *Assembler, titler *TitleGenerator) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		assembler: assembler,
		titler:    titler,
	}
}

// Create 创建会话
func (s *Service) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	conv := &model.Conversation{
		UserID: userID,
		Title:  title,
	}
	if err := s.repo.Create(conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Get 获取会话
func (s *Service) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.repo.GetByID(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("conversation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetOwned 获取会话并校验归属
// 归属不符按 not found 处理，避免泄露会话是否存在
func (s *Service) GetOwned(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	return conv, nil
}

// List 列出用户的会话
func (s *Service) List(ctx context.Context, userID string, offset, limit int) ([]*model.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	convs, err := s.repo.List(userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// Rename 更新会话标题
func (s *Service) Rename(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if err := s.repo.UpdateTitle(id, title); err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// Delete 删除会话
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return nil
}

// AddMessage 持久化一条消息并更新缓存
func (s *Service) AddMessage(ctx context.Context, conversationID, role, content string) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := s.repo.CreateMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if s.cache != nil {
		s.cache.Append(ctx, conversationID, msg)
	}
	return msg, nil
}

// GetMessages 获取会话消息
func (s *Service) GetMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	msgs, err := s.repo.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// LoadMessages 分页加载消息历史
// beforeTime 为空时从最新开始；返回按时间正序
func (s *Service) LoadMessages(ctx context.Context, conversationID, beforeTime string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	msgs, err := s.repo.GetMessagesBefore(conversationID, beforeTime, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetRecentTurns 获取最近的对话轮次，优先走缓存
func (s *Service) GetRecentTurns(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	if s.cache != nil {
		if msgs, ok := s.cache.Get(ctx, conversationID); ok {
			if len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}
			return msgs, nil
		}
	}

	msgs, err := s.repo.GetRecentMessages(conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	// GetRecentMessages 按时间倒序返回，翻转为正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if s.cache != nil {
		s.cache.Set(ctx, conversationID, msgs)
	}
	return msgs, nil
}

// BuildContext 为出站用户消息拼装附件上下文
func (s *Service) BuildContext(ctx context.Context, conversationID, userQuery string) (string, error) {
	if s.assembler == nil {
		return userQuery, nil
	}
	return s.assembler.Build(ctx, conversationID, userQuery)
}

// MaybeGenerateTitle 流结束后的自动标题任务
// 只在标题仍是占位标题且至少有两条持久化消息时触发；任何失败只记日志
func (s *Service) MaybeGenerateTitle(ctx context.Context, conversationID string) {
	if s.titler == nil {
		return
	}

	conv, err := s.repo.GetByID(conversationID)
	if err != nil {
		log.Printf("Warning: title task failed to load conversation %s: %v", conversationID, err)
		return
	}
	if conv.Title != DefaultTitle {
		return
	}

	count, err := s.repo.CountMessages(conversationID)
	if err != nil {
		log.Printf("Warning: title task failed to count messages: %v", err)
		return
	}
	if count < 2 {
		return
	}

	msgs, err := s.repo.GetMessages(conversationID)
	if err != nil {
		log.Printf("Warning: title task failed to load messages: %v", err)
		return
	}
	if len(msgs) > 4 {
		msgs = msgs[:4]
	}

	title, err := s.titler.Generate(ctx, msgs)
	if err != nil {
		log.Printf("Warning: title generation failed for %s: %v", conversationID, err)
		return
	}
	if title == "" {
		return
	}

	// 生成期间标题可能已被手工修改，写之前再确认一次
	conv, err = s.repo.GetByID(conversationID)
	if err != nil || conv.Title != DefaultTitle {
		return
	}
	if err := s.repo.UpdateTitle(conversationID, title); err != nil {
		log.Printf("Warning: failed to update title for %s: %v", conversationID, err)
	}
}
