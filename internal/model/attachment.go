package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 附件处理状态
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AttachmentMetadata 按内容格式区分的提取元数据
type AttachmentMetadata struct {
	Format string `json:"format,omitempty"` // image, pdf, document, text, json, csv, audio, video

	// image
	ByteSize int64 `json:"byte_size,omitempty"`

	// pdf
	PageCount int `json:"page_count,omitempty"`

	// json
	JSONType    string   `json:"json_type,omitempty"` // object, array
	ArrayLength int      `json:"array_length,omitempty"`
	Keys        []string `json:"keys,omitempty"`

	// csv
	RowCount int `json:"row_count,omitempty"`

	// audio
	Duration float64 `json:"duration_seconds,omitempty"`
	Language string  `json:"language,omitempty"`
}

// Value 实现 driver.Valuer
func (m *AttachmentMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner
func (m *AttachmentMetadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for AttachmentMetadata: %T", value)
	}
	return json.Unmarshal(data, m)
}

// Attachment 会话附件
type Attachment struct {
	ID               string              `gorm:"primaryKey;size:36" json:"id"`
	ConversationID   string              `gorm:"index;size:36;not null" json:"conversation_id"`
	UserID           string              `gorm:"index;size:36;not null" json:"user_id"`
	FileName         string              `gorm:"size:255;not null" json:"file_name"`
	OriginalName     string              `gorm:"size:255;not null" json:"original_name"`
	FileType         string              `gorm:"size:100" json:"file_type"` // MIME 类型
	FileSize         int64               `json:"file_size"`
	StoragePath      string              `gorm:"size:500" json:"-"`
	ProcessingStatus string              `gorm:"size:20;default:'processing';index" json:"processing_status"`
	ExtractedContent string              `gorm:"type:text" json:"extracted_content,omitempty"`
	Metadata         *AttachmentMetadata `gorm:"type:jsonb" json:"metadata,omitempty"`
	ErrorMessage     string              `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt      *time.Time          `json:"processed_at,omitempty"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt      `gorm:"index" json:"-"`
}

// BeforeCreate GORM 钩子
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = StatusProcessing
	}
	return nil
}

// TableName 指定表名
func (Attachment) TableName() string {
	return "attachments"
}

// IsTerminal 判断处理状态是否为终态
func (a *Attachment) IsTerminal() bool {
	return a.ProcessingStatus == StatusCompleted || a.ProcessingStatus == StatusFailed
}

// AttachmentInfo 上传响应中的附件信息（不含提取结果）
type AttachmentInfo struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	OriginalName     string    `json:"original_name"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToInfo 转换为 AttachmentInfo
func (a *Attachment) ToInfo() *AttachmentInfo {
	return &AttachmentInfo{
		ID:               a.ID,
		FileName:         a.FileName,
		OriginalName:     a.OriginalName,
		FileType:         a.FileType,
		FileSize:         a.FileSize,
		ProcessingStatus: a.ProcessingStatus,
		CreatedAt:        a.CreatedAt,
	}
}
