package repository

import (
	"time"

	"github.com/ashwinyue/advisor-ai/internal/model"
	"gorm.io/gorm"
)

// AttachmentRepository 附件数据访问
type AttachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建附件仓库
func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create 创建附件
func (r *AttachmentRepository) Create(att *model.Attachment) error {
	return r.db.Create(att).Error
}

// GetByID 获取附件
func (r *AttachmentRepository) GetByID(id string) (*model.Attachment, error) {
	var att model.Attachment
	err := r.db.Where("id = ?", id).First(&att).Error
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByConversation 列出会话的附件（创建顺序）
func (r *AttachmentRepository) ListByConversation(conversationID string) ([]*model.Attachment, error) {
	var atts []*model.Attachment
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&atts).Error
	return atts, err
}

// ListCompletedByConversation 列出会话中提取完成的附件（创建顺序）
func (r *AttachmentRepository) ListCompletedByConversation(conversationID string) ([]*model.Attachment, error) {
	var atts []*model.Attachment
	err := r.db.Where("conversation_id = ? AND processing_status = ?", conversationID, model.StatusCompleted).
		Order("created_at ASC").
		Find(&atts).Error
	return atts, err
}

// Update 更新附件
func (r *AttachmentRepository) Update(att *model.Attachment) error {
	return r.db.Save(att).Error
}

// Delete 删除附件
func (r *AttachmentRepository) Delete(id string) error {
	return r.db.Delete(&model.Attachment{}, "id = ?", id).Error
}

// MarkProcessing 标记附件进入处理中
func (r *AttachmentRepository) MarkProcessing(id string) error {
	return r.db.Model(&model.Attachment{}).Where("id = ?", id).
		Update("processing_status", model.StatusProcessing).Error
}

// MarkCompleted 标记附件处理完成并写入提取结果
func (r *AttachmentRepository) MarkCompleted(id, content string, metadata *model.AttachmentMetadata) error {
	return r.db.Model(&model.Attachment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": model.StatusCompleted,
			"extracted_content": content,
			"metadata":          metadata,
			"error_message":     "",
			"processed_at":      time.Now(),
		}).Error
}

// MarkFailed 标记附件处理失败
// 占位内容一并写入，保证 failed 行不缺少提取内容
func (r *AttachmentRepository) MarkFailed(id, content, errMsg string) error {
	return r.db.Model(&model.Attachment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": model.StatusFailed,
			"extracted_content": content,
			"metadata":          &model.AttachmentMetadata{},
			"error_message":     errMsg,
			"processed_at":      time.Now(),
		}).Error
}

// ListStuckProcessing 列出卡在 processing 超过阈值的附件
func (r *AttachmentRepository) ListStuckProcessing(threshold time.Duration) ([]*model.Attachment, error) {
	var atts []*model.Attachment
	cutoff := time.Now().Add(-threshold)
	err := r.db.Where("processing_status = ? AND updated_at < ?", model.StatusProcessing, cutoff).
		Find(&atts).Error
	return atts, err
}
