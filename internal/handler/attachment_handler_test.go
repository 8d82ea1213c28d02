package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/advisor-ai/internal/model"
	"github.com/ashwinyue/advisor-ai/internal/service"
	"github.com/ashwinyue/advisor-ai/internal/service/attachment"
	"github.com/ashwinyue/advisor-ai/internal/service/conversation"
	"github.com/ashwinyue/advisor-ai/internal/service/file"
)

// ========== Mock 实现 ==========

type mockUploadRepo struct {
	mu          sync.Mutex
	attachments map[string]*model.Attachment
	createCalls int
}

func newMockUploadRepo() *mockUploadRepo {
	return &mockUploadRepo{attachments: make(map[string]*model.Attachment)}
}

func (r *mockUploadRepo) Create(att *model.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if att.ID == "" {
		att.ID = "att-1"
	}
	cp := *att
	r.attachments[att.ID] = &cp
	return nil
}

func (r *mockUploadRepo) GetByID(id string) (*model.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.attachments[id]
	if !ok {
		return nil, errors.New("attachment not found")
	}
	cp := *att
	return &cp, nil
}

func (r *mockUploadRepo) ListByConversation(conversationID string) ([]*model.Attachment, error) {
	return nil, nil
}

func (r *mockUploadRepo) Delete(id string) error { return nil }

func (r *mockUploadRepo) MarkProcessing(id string) error { return nil }

func (r *mockUploadRepo) MarkCompleted(id, content string, metadata *model.AttachmentMetadata) error {
	return nil
}

func (r *mockUploadRepo) MarkFailed(id, content, errMsg string) error { return nil }

func (r *mockUploadRepo) ListStuckProcessing(threshold time.Duration) ([]*model.Attachment, error) {
	return nil, nil
}

func (r *mockUploadRepo) creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createCalls
}

type mockBlobStorage struct{}

func (s *mockBlobStorage) Save(_ context.Context, req *file.SaveRequest) (string, error) {
	io.Copy(io.Discard, req.Reader)
	return "conv-1/blob.txt", nil
}

func (s *mockBlobStorage) Get(_ context.Context, filePath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (s *mockBlobStorage) Delete(_ context.Context, filePath string) error { return nil }

func (s *mockBlobStorage) GetURL(filePath string) string { return "/files/" + filePath }

// ========== 测试辅助 ==========

func newUploadTestServer(t *testing.T, repo *mockUploadRepo) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage := &mockBlobStorage{}
	pool := attachment.NewPool(repo, storage, nil, 1, 4, 0) // 不启动，任务停留在队列
	convRepo := newMockChatRepository()
	convRepo.Create(&model.Conversation{ID: "conv-1", UserID: "user-1", Title: conversation.DefaultTitle})

	svc := &service.Services{
		Conversation: conversation.NewService(
			convRepo,
			conversation.NewTurnCache(nil),
			conversation.NewAssembler(&mockEmptyLister{}),
			nil,
		),
		Attachment: attachment.NewService(repo, storage, pool),
	}
	h := NewAttachmentHandler(svc)

	r := gin.New()
	r.POST("/conversations/:id/attachments", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	}, h.Upload)
	return r
}

func postFile(r *gin.Engine, conversationID, fileName, contentType, content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, _ := writer.CreatePart(header)
	part.Write([]byte(content))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost,
		"/conversations/"+conversationID+"/attachments", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ========== 测试用例 ==========

func TestUploadResponseShape(t *testing.T) {
	repo := newMockUploadRepo()
	r := newUploadTestServer(t, repo)

	w := postFile(r, "conv-1", "notes.txt", "text/plain", "hello")

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	// attachment 必须在顶层，不嵌套在 data 里
	if _, ok := resp["data"]; ok {
		t.Error("response must not nest the attachment under data")
	}
	var success bool
	if err := json.Unmarshal(resp["success"], &success); err != nil || !success {
		t.Errorf("success = %s, want true", resp["success"])
	}

	var att struct {
		ID               string `json:"id"`
		FileName         string `json:"file_name"`
		OriginalName     string `json:"original_name"`
		FileType         string `json:"file_type"`
		ProcessingStatus string `json:"processing_status"`
		ExtractedContent string `json:"extracted_content"`
	}
	if err := json.Unmarshal(resp["attachment"], &att); err != nil {
		t.Fatalf("attachment not at top level: %v", err)
	}
	if att.ID == "" || att.FileName != "notes.txt" || att.FileType != "text/plain" {
		t.Errorf("attachment = %+v", att)
	}
	if att.ProcessingStatus != model.StatusProcessing {
		t.Errorf("processing_status = %q, want %q", att.ProcessingStatus, model.StatusProcessing)
	}
	if att.ExtractedContent != "" {
		t.Error("upload response must not carry extracted content")
	}
}

func TestUploadRejectsDisallowedMIME(t *testing.T) {
	repo := newMockUploadRepo()
	r := newUploadTestServer(t, repo)

	w := postFile(r, "conv-1", "data.bin", "application/octet-stream", "blob")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	// 准入拒绝发生在建行之前
	if n := repo.creates(); n != 0 {
		t.Errorf("create calls = %d, want 0", n)
	}
}

func TestUploadOwnershipMismatch(t *testing.T) {
	repo := newMockUploadRepo()
	r := newUploadTestServer(t, repo)

	w := postFile(r, "someone-elses-conv", "notes.txt", "text/plain", "hello")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if n := repo.creates(); n != 0 {
		t.Errorf("create calls = %d, want 0", n)
	}
}

func TestUploadMissingFile(t *testing.T) {
	repo := newMockUploadRepo()
	r := newUploadTestServer(t, repo)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/attachments", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
