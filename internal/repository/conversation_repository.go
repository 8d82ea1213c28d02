package repository

import (
	"github.com/ashwinyue/advisor-ai/internal/model"
	"gorm.io/gorm"
)

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建会话
func (r *ConversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// GetByID 获取会话
func (r *ConversationRepository) GetByID(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// List 列出用户的会话
func (r *ConversationRepository) List(userID string, offset, limit int) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&convs).Error
	return convs, err
}

// Update 更新会话
func (r *ConversationRepository) Update(conv *model.Conversation) error {
	return r.db.Save(conv).Error
}

// UpdateTitle 更新会话标题
func (r *ConversationRepository) UpdateTitle(id, title string) error {
	return r.db.Model(&model.Conversation{}).Where("id = ?", id).Update("title", title).Error
}

// Delete 删除会话及其消息和附件
func (r *ConversationRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Message{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Attachment{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, "id = ?", id).Error
	})
}

// CreateMessage 创建消息
func (r *ConversationRepository) CreateMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// GetMessages 获取会话消息（按时间正序）
func (r *ConversationRepository) GetMessages(conversationID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// GetRecentMessages 获取会话最近的 N 条消息
func (r *ConversationRepository) GetRecentMessages(conversationID string, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// GetMessagesBefore 获取指定时间之前的消息（按时间倒序）
func (r *ConversationRepository) GetMessagesBefore(conversationID, beforeTime string, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	query := r.db.Where("conversation_id = ?", conversationID)
	if beforeTime != "" {
		query = query.Where("created_at < ?", beforeTime)
	}
	err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// CountMessages 统计会话消息数
func (r *ConversationRepository) CountMessages(conversationID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}
