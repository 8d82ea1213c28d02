package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

const titlePrompt = "Generate a short title (at most 8 words) for the conversation below. " +
	"Reply with the title only, no quotes, no punctuation at the end."

// ChatModel 标题生成所需的最小模型接口
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...ecomodel.Option) (*schema.Message, error)
}

// TitleGenerator 会话标题生成器
type TitleGenerator struct {
	model   ChatModel
	timeout time.Duration
}

// NewTitleGenerator 创建标题生成器
func NewTitleGenerator(chatModel ChatModel, timeout time.Duration) *TitleGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TitleGenerator{model: chatModel, timeout: timeout}
}

// Generate 根据前几轮对话生成标题
// 模型输出为空或只有空白时返回空字符串，调用方据此跳过更新
func (g *TitleGenerator) Generate(ctx context.Context, turns []*model.Message) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, msg := range turns {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(titlePrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		return "", fmt.Errorf("title model failed: %w", err)
	}

	return sanitizeTitle(out.Content), nil
}

// sanitizeTitle 清理模型输出
func sanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > 60 {
		s = string(runes[:60])
	}
	return s
}
