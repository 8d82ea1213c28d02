// Package extract 提供附件内容提取
// 按内容格式分派到对应的提取策略，失败统一收敛为 failed 结果
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

// Result 提取结果
// Status 只会是 completed 或 failed；failed 时 Content 为占位文本，ErrorMessage 非空
type Result struct {
	Content      string
	Metadata     *model.AttachmentMetadata
	Status       string
	ErrorMessage string
}

// Coordinator 提取协调器
type Coordinator struct {
	transcriber Transcriber // 为 nil 时音频附件降级为占位内容
}

// NewCoordinator 创建提取协调器
func NewCoordinator(transcriber Transcriber) *Coordinator {
	return &Coordinator{transcriber: transcriber}
}

// 文本和音视频的扩展名白名单
var (
	textExts  = map[string]bool{".txt": true, ".md": true, ".json": true, ".csv": true}
	audioExts = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".ogg": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true}
)

// ProcessFile 提取单个附件的内容
// 唯一的失败边界：任何策略的错误都在这里转换为 failed 结果，不向外抛出
func (c *Coordinator) ProcessFile(ctx context.Context, fileName, mimeType string, data []byte) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: panic extracting %s: %v", fileName, r)
			result = failedResult(fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := c.dispatch(ctx, fileName, mimeType, data)
	if err != nil {
		return failedResult(err.Error())
	}
	return res
}

func failedResult(msg string) *Result {
	return &Result{
		Content:      fmt.Sprintf("[Error processing file: %s]", msg),
		Metadata:     &model.AttachmentMetadata{},
		Status:       model.StatusFailed,
		ErrorMessage: msg,
	}
}

// dispatch 按 MIME 类型和扩展名选择提取策略
func (c *Coordinator) dispatch(ctx context.Context, fileName, mimeType string, data []byte) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return c.extractImage(fileName, data), nil
	case mimeType == "application/pdf":
		return c.extractPDF(ctx, data)
	case isWordProcessorMIME(mimeType):
		return c.extractDocument(ctx, data)
	case strings.HasPrefix(mimeType, "text/") || textExts[ext]:
		return c.extractText(fileName, ext, data), nil
	case strings.HasPrefix(mimeType, "audio/") || audioExts[ext]:
		return c.extractAudio(ctx, fileName, data)
	case strings.HasPrefix(mimeType, "video/") || videoExts[ext]:
		return c.extractVideo(fileName), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", mimeType)
	}
}

func isWordProcessorMIME(mimeType string) bool {
	return mimeType == "application/msword" ||
		mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// extractImage 图片策略
// 未接入 OCR，只生成描述性占位内容
func (c *Coordinator) extractImage(fileName string, data []byte) *Result {
	return &Result{
		Content: fmt.Sprintf("[Image: %s]\nThis attachment is a visual reference. No text was extracted because OCR is not enabled.", fileName),
		Metadata: &model.AttachmentMetadata{
			Format:   "image",
			ByteSize: int64(len(data)),
		},
		Status: model.StatusCompleted,
	}
}

// extractPDF PDF策略
func (c *Coordinator) extractPDF(ctx context.Context, data []byte) (*Result, error) {
	parser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}

	docs, err := parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.Content)
	}

	// 底层解析器不暴露 PDF 文档信息（标题、作者），元数据只有页数和大小
	return &Result{
		Content: CleanText(strings.Join(pages, "\n\n")),
		Metadata: &model.AttachmentMetadata{
			Format:    "pdf",
			PageCount: len(docs),
			ByteSize:  int64(len(data)),
		},
		Status: model.StatusCompleted,
	}, nil
}

// extractDocument Word文档策略，只取纯文本
func (c *Coordinator) extractDocument(ctx context.Context, data []byte) (*Result, error) {
	parser, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  true,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create docx parser: %w", err)
	}

	docs, err := parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.Content)
	}

	return &Result{
		Content:  CleanText(sb.String()),
		Metadata: &model.AttachmentMetadata{Format: "document"},
		Status:   model.StatusCompleted,
	}, nil
}

// extractText 文本策略
// json 扩展名额外尝试解析出浅层结构摘要；解析失败时按纯文本处理
func (c *Coordinator) extractText(fileName, ext string, data []byte) *Result {
	content := CleanText(string(data))
	meta := &model.AttachmentMetadata{Format: "text"}

	switch ext {
	case ".json":
		if m := summarizeJSON(data); m != nil {
			meta = m
		}
	case ".csv":
		meta.Format = "csv"
		meta.RowCount = countLines(content)
	}

	return &Result{
		Content:  content,
		Metadata: meta,
		Status:   model.StatusCompleted,
	}
}

// summarizeJSON 生成 JSON 的浅层结构摘要，解析失败返回 nil
func summarizeJSON(data []byte) *model.AttachmentMetadata {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	meta := &model.AttachmentMetadata{Format: "json"}
	switch t := v.(type) {
	case map[string]interface{}:
		meta.JSONType = "object"
		meta.Keys = sortedKeys(t)
	case []interface{}:
		meta.JSONType = "array"
		meta.ArrayLength = len(t)
		if len(t) > 0 {
			if obj, ok := t[0].(map[string]interface{}); ok {
				meta.Keys = sortedKeys(obj)
			}
		}
	default:
		meta.JSONType = fmt.Sprintf("%T", v)
	}
	return meta
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// extractAudio 音频策略
// 未配置转写服务时降级为占位内容（completed，不算失败）
// 转写服务出错时返回 failed，但仍写入占位内容，保证行不缺内容
func (c *Coordinator) extractAudio(ctx context.Context, fileName string, data []byte) (*Result, error) {
	if c.transcriber == nil {
		return &Result{
			Content:  fmt.Sprintf("[Audio: %s]\nTranscription is unavailable because no transcription service is configured.", fileName),
			Metadata: &model.AttachmentMetadata{Format: "audio"},
			Status:   model.StatusCompleted,
		}, nil
	}

	tr, err := c.transcriber.Transcribe(ctx, fileName, data)
	if err != nil {
		return &Result{
			Content:      fmt.Sprintf("[Audio: %s]\nTranscription failed.", fileName),
			Metadata:     &model.AttachmentMetadata{},
			Status:       model.StatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	return &Result{
		Content: fmt.Sprintf("[Audio transcript: %s]\n\n%s", fileName, CleanText(tr.Text)),
		Metadata: &model.AttachmentMetadata{
			Format:   "audio",
			Duration: tr.Duration,
			Language: tr.Language,
		},
		Status: model.StatusCompleted,
	}, nil
}

// extractVideo 视频策略，只生成占位内容
func (c *Coordinator) extractVideo(fileName string) *Result {
	return &Result{
		Content:  fmt.Sprintf("[Video: %s]\nVideo content extraction is not supported.", fileName),
		Metadata: &model.AttachmentMetadata{Format: "video"},
		Status:   model.StatusCompleted,
	}
}
