// Package conversation 提供会话服务单元测试
package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

// mockAttachmentLister 按状态过滤的附件列表 mock
type mockAttachmentLister struct {
	attachments []*model.Attachment
	listError   error
}

func (m *mockAttachmentLister) ListCompletedByConversation(conversationID string) ([]*model.Attachment, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	result := make([]*model.Attachment, 0)
	for _, att := range m.attachments {
		if att.ConversationID == conversationID && att.ProcessingStatus == model.StatusCompleted {
			result = append(result, att)
		}
	}
	return result, nil
}

func TestAssemblerPassThroughWithoutAttachments(t *testing.T) {
	a := NewAssembler(&mockAttachmentLister{})

	query := "what is in my files?"
	got, err := a.Build(context.Background(), "conv-1", query)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got != query {
		t.Errorf("expected byte-identical pass-through, got %q", got)
	}
}

func TestAssemblerIncludesCompletedInOrder(t *testing.T) {
	now := time.Now()
	lister := &mockAttachmentLister{attachments: []*model.Attachment{
		{ConversationID: "conv-1", OriginalName: "report.pdf", ProcessingStatus: model.StatusCompleted, ExtractedContent: "quarterly numbers", CreatedAt: now},
		{ConversationID: "conv-1", OriginalName: "notes.txt", ProcessingStatus: model.StatusCompleted, ExtractedContent: "meeting notes", CreatedAt: now.Add(time.Second)},
	}}
	a := NewAssembler(lister)

	got, err := a.Build(context.Background(), "conv-1", "summarize")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if n := strings.Count(got, "[File: "); n != 2 {
		t.Errorf("expected 2 file headers, got %d", n)
	}
	first := strings.Index(got, "[File: report.pdf]")
	second := strings.Index(got, "[File: notes.txt]")
	if first < 0 || second < 0 || first > second {
		t.Errorf("headers missing or out of creation order: %d, %d", first, second)
	}
	if !strings.HasPrefix(got, contextOpen) {
		t.Error("block must start with the opening marker")
	}
	if !strings.HasSuffix(got, "summarize") {
		t.Error("literal user query must come last")
	}
	if !strings.Contains(got, contextClose) {
		t.Error("block must contain the closing marker")
	}
	if strings.Index(got, contextClose) > strings.Index(got, "summarize") {
		t.Error("closing marker must precede the user query")
	}
}

func TestAssemblerExcludesNonTerminalAndFailed(t *testing.T) {
	lister := &mockAttachmentLister{attachments: []*model.Attachment{
		{ConversationID: "conv-1", OriginalName: "done.txt", ProcessingStatus: model.StatusCompleted, ExtractedContent: "ready"},
		{ConversationID: "conv-1", OriginalName: "pending.txt", ProcessingStatus: model.StatusProcessing, ExtractedContent: "partial"},
		{ConversationID: "conv-1", OriginalName: "broken.txt", ProcessingStatus: model.StatusFailed, ExtractedContent: "[Error processing file: x]"},
	}}
	a := NewAssembler(lister)

	got, err := a.Build(context.Background(), "conv-1", "go")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(got, "[File: done.txt]") {
		t.Error("completed attachment missing from block")
	}
	if strings.Contains(got, "pending.txt") || strings.Contains(got, "broken.txt") {
		t.Error("processing/failed attachments must not appear in the block")
	}
}

func TestAssemblerSkipsEmptyContent(t *testing.T) {
	lister := &mockAttachmentLister{attachments: []*model.Attachment{
		{ConversationID: "conv-1", OriginalName: "empty.txt", ProcessingStatus: model.StatusCompleted, ExtractedContent: ""},
	}}
	a := NewAssembler(lister)

	got, err := a.Build(context.Background(), "conv-1", "hello")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("empty-content attachment should not produce a block, got %q", got)
	}
}

func TestAssemblerListError(t *testing.T) {
	a := NewAssembler(&mockAttachmentLister{listError: errors.New("db down")})
	if _, err := a.Build(context.Background(), "conv-1", "hello"); err == nil {
		t.Fatal("expected error")
	}
}
