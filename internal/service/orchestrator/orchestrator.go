// Package orchestrator 封装对话 Agent 的单轮执行
// 直接使用 eino ADK，不做额外封装
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/advisor-ai/internal/config"
	"github.com/ashwinyue/advisor-ai/internal/model"
)

const systemPrompt = "You are a knowledgeable financial advisor assistant. " +
	"Answer using the conversation history and any attached file context the user provides. " +
	"Be precise, cite file names when referencing attached content, and say so when you do not know."

// Event 单个增量事件
type Event struct {
	Type     string `json:"type"` // start, message, tool_call
	Data     string `json:"data,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

// Request 单轮请求
type Request struct {
	ConversationID string
	UserID         string
	Message        string // 已拼装附件上下文的出站消息
	History        []*model.Message
}

// Result 最终结果
type Result struct {
	Answer string `json:"answer"`
}

// Orchestrator 对话编排接口
// emit 按事件产生顺序被调用，调用方负责转发
type Orchestrator interface {
	ProcessQuery(ctx context.Context, req *Request, emit func(*Event)) (*Result, error)
}

// AgentOrchestrator 基于 eino ADK 的编排实现
type AgentOrchestrator struct {
	cfg     *config.Config
	tools   []tool.BaseTool
	timeout time.Duration
}

// NewAgentOrchestrator 创建编排器
func NewAgentOrchestrator(ctx context.Context, cfg *config.Config) (*AgentOrchestrator, error) {
	var tools []tool.BaseTool
	if cfg.AI.EnableSearch {
		if t, err := newWebSearchTool(ctx); err == nil {
			tools = append(tools, t)
		}
	}

	timeout := time.Duration(cfg.AI.OpenAI.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &AgentOrchestrator{
		cfg:     cfg,
		tools:   tools,
		timeout: timeout,
	}, nil
}

// newChatModel 创建支持工具调用的 ChatModel
func (o *AgentOrchestrator) newChatModel(ctx context.Context) (ecomodel.ToolCallingChatModel, error) {
	aiCfg := o.cfg.AI

	var apiKey, baseURL, modelName string
	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	temperature := float32(0.7)
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
}

// newAgent 创建 eino Agent
func (o *AgentOrchestrator) newAgent(ctx context.Context) (*adk.ChatModelAgent, error) {
	chatModel, err := o.newChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	agentCfg := &adk.ChatModelAgentConfig{
		Name:          "advisor",
		Description:   "Financial advisor chat agent",
		Instruction:   systemPrompt,
		Model:         chatModel,
		MaxIterations: 10,
	}
	if len(o.tools) > 0 {
		agentCfg.ToolsConfig = adk.ToolsConfig{
			ToolsNodeConfig: compose.ToolsNodeConfig{
				Tools: o.tools,
			},
		}
	}

	return adk.NewChatModelAgent(ctx, agentCfg)
}

// buildMessages 构建输入消息
func buildMessages(history []*model.Message, query string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case model.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		case model.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Content))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}
	return append(messages, schema.UserMessage(query))
}

// ProcessQuery 执行单轮对话
// 每个增量事件按产生顺序通过 emit 回调交给调用方；返回最终答案
func (o *AgentOrchestrator) ProcessQuery(ctx context.Context, req *Request, emit func(*Event)) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	einoAgent, err := o.newAgent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	iter := einoAgent.Run(ctx, &adk.AgentInput{
		Messages:        buildMessages(req.History, req.Message),
		EnableStreaming: true,
	})

	var fullAnswer string
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}

		if event.Err != nil {
			if event.Err == io.EOF {
				break
			}
			return nil, fmt.Errorf("agent event error: %w", event.Err)
		}

		if event.Output != nil && event.Output.MessageOutput != nil {
			msgVar := event.Output.MessageOutput

			if msgVar.IsStreaming && msgVar.MessageStream != nil {
				emit(&Event{Type: "start"})
				for {
					chunk, err := msgVar.MessageStream.Recv()
					if err == io.EOF {
						break
					}
					if err != nil {
						return nil, fmt.Errorf("agent stream error: %w", err)
					}
					emit(&Event{Type: "message", Data: chunk.Content})
					fullAnswer += chunk.Content
				}
			} else if msgVar.Message != nil {
				if msgVar.Role == schema.Assistant {
					emit(&Event{Type: "message", Data: msgVar.Message.Content})
					fullAnswer = msgVar.Message.Content
				} else if msgVar.Role == schema.Tool {
					emit(&Event{Type: "tool_call", ToolName: msgVar.ToolName, Data: msgVar.Message.Content})
				}
			}
		}

		if event.Action != nil && event.Action.Exit {
			break
		}
	}

	return &Result{Answer: fullAnswer}, nil
}
