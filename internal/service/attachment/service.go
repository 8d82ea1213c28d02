// Package attachment 提供附件上传和提取流水线
package attachment

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ashwinyue/advisor-ai/internal/extract"
	"github.com/ashwinyue/advisor-ai/internal/model"
	"github.com/ashwinyue/advisor-ai/internal/service/file"
)

// Repository 附件数据访问接口
// 接口定义使 Service 层可以轻松 mock 进行单元测试
type Repository interface {
	Create(att *model.Attachment) error
	GetByID(id string) (*model.Attachment, error)
	ListByConversation(conversationID string) ([]*model.Attachment, error)
	Delete(id string) error
	MarkProcessing(id string) error
	MarkCompleted(id, content string, metadata *model.AttachmentMetadata) error
	MarkFailed(id, content, errMsg string) error
	ListStuckProcessing(threshold time.Duration) ([]*model.Attachment, error)
}

// Extractor 内容提取接口
type Extractor interface {
	ProcessFile(ctx context.Context, fileName, mimeType string, data []byte) *extract.Result
}

// Service 附件服务
type Service struct {
	repo    Repository
	storage file.Storage
	pool    *Pool
}

// NewService 创建附件服务
func NewService(repo Repository, storage file.Storage, pool *Pool) *Service {
	return &Service{
		repo:    repo,
		storage: storage,
		pool:    pool,
	}
}

// UploadRequest 上传请求
type UploadRequest struct {
	ConversationID string
	UserID         string
	FileName       string
	ContentType    string
	Size           int64
	Reader         io.Reader
}

// Upload 接收附件上传
// 同步落盘并创建 processing 行，提取工作交给后台池，立即返回
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*model.Attachment, error) {
	storagePath, err := s.storage.Save(ctx, &file.SaveRequest{
		FileName:       req.FileName,
		ContentType:    req.ContentType,
		Size:           req.Size,
		Reader:         req.Reader,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	att := &model.Attachment{
		ConversationID:   req.ConversationID,
		UserID:           req.UserID,
		FileName:         req.FileName,
		OriginalName:     req.FileName,
		FileType:         req.ContentType,
		FileSize:         req.Size,
		StoragePath:      storagePath,
		ProcessingStatus: model.StatusProcessing,
	}
	if err := s.repo.Create(att); err != nil {
		// 落库失败时清掉已写入的文件
		if derr := s.storage.Delete(ctx, storagePath); derr != nil {
			log.Printf("Warning: failed to clean up orphan file %s: %v", storagePath, derr)
		}
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}

	if !s.pool.Enqueue(&Job{
		AttachmentID: att.ID,
		FileName:     att.FileName,
		MimeType:     att.FileType,
		StoragePath:  att.StoragePath,
	}) {
		// 队列满时直接标记失败，不丢进 limbo
		msg := "extraction queue is full"
		if err := s.repo.MarkFailed(att.ID, fmt.Sprintf("[Error processing file: %s]", msg), msg); err != nil {
			log.Printf("Warning: failed to mark attachment %s failed: %v", att.ID, err)
		}
		att.ProcessingStatus = model.StatusFailed
		att.ErrorMessage = msg
	}

	return att, nil
}

// Get 获取附件
func (s *Service) Get(ctx context.Context, id string) (*model.Attachment, error) {
	att, err := s.repo.GetByID(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("attachment not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// List 列出会话的附件
func (s *Service) List(ctx context.Context, conversationID string) ([]*model.Attachment, error) {
	atts, err := s.repo.ListByConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return atts, nil
}

// Delete 删除附件及其存储文件
func (s *Service) Delete(ctx context.Context, id string) error {
	att, err := s.repo.GetByID(id)
	if err != nil {
		return fmt.Errorf("failed to get attachment: %w", err)
	}
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if err := s.storage.Delete(ctx, att.StoragePath); err != nil {
		log.Printf("Warning: failed to delete file %s: %v", att.StoragePath, err)
	}
	return nil
}
