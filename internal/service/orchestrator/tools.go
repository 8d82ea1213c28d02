package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino/components/tool"
)

// newWebSearchTool 创建网络搜索工具
func newWebSearchTool(ctx context.Context) (tool.InvokableTool, error) {
	searchTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search",
		ToolDesc:   "Search the web for current information using DuckDuckGo. Use this when you need up-to-date information.",
		MaxResults: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web search tool: %w", err)
	}
	return searchTool, nil
}
