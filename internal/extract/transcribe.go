package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ashwinyue/advisor-ai/internal/config"
)

// Transcription 转写结果
type Transcription struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// Transcriber 语音转写接口
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, data []byte) (*Transcription, error)
}

// HTTPTranscriber 基于 OpenAI 兼容接口的转写客户端
type HTTPTranscriber struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPTranscriber 创建转写客户端
// 未配置 APIKey 时返回 nil，调用方据此走降级路径
func NewHTTPTranscriber(cfg *config.TranscriptionConfig) *HTTPTranscriber {
	if cfg.APIKey == "" {
		return nil
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPTranscriber{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient 替换底层 HTTP 客户端，测试用
func (t *HTTPTranscriber) WithHTTPClient(client *http.Client) *HTTPTranscriber {
	t.client = client
	return t
}

// Transcribe 调用转写服务
func (t *HTTPTranscriber) Transcribe(ctx context.Context, fileName string, data []byte) (*Transcription, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("failed to write format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	url := t.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, string(msg))
	}

	var tr Transcription
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode transcription: %w", err)
	}
	return &tr, nil
}
