package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

// 上下文块的定界符
const (
	contextOpen      = "=== Attached Files ==="
	contextClose     = "=== End Attached Files ==="
	contextSeparator = "---"
)

// AttachmentLister 提供会话中提取完成的附件
type AttachmentLister interface {
	ListCompletedByConversation(conversationID string) ([]*model.Attachment, error)
}

// Assembler 附件上下文拼装器
// 把提取完成的附件内容拼成一个定界文本块，前置到出站用户消息
type Assembler struct {
	attachments AttachmentLister
}

// NewAssembler 创建上下文拼装器
func NewAssembler(attachments AttachmentLister) *Assembler {
	return &Assembler{attachments: attachments}
}

// Build 拼装出站消息
// 没有符合条件的附件时原样返回 userQuery
// 只纳入 completed 且提取内容非空的附件，按创建时间升序
func (a *Assembler) Build(ctx context.Context, conversationID, userQuery string) (string, error) {
	atts, err := a.attachments.ListCompletedByConversation(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to list completed attachments: %w", err)
	}

	qualified := atts[:0]
	for _, att := range atts {
		if att.ExtractedContent != "" {
			qualified = append(qualified, att)
		}
	}
	if len(qualified) == 0 {
		return userQuery, nil
	}

	var sb strings.Builder
	sb.WriteString(contextOpen)
	sb.WriteString("\n\n")
	for _, att := range qualified {
		sb.WriteString(fmt.Sprintf("[File: %s]\n", att.OriginalName))
		sb.WriteString(att.ExtractedContent)
		sb.WriteString("\n\n")
		sb.WriteString(contextSeparator)
		sb.WriteString("\n\n")
	}
	sb.WriteString(contextClose)
	sb.WriteString("\n\n")
	sb.WriteString(userQuery)

	return sb.String(), nil
}
