package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/advisor-ai/internal/config"
	"github.com/ashwinyue/advisor-ai/internal/extract"
	"github.com/ashwinyue/advisor-ai/internal/repository"
	"github.com/ashwinyue/advisor-ai/internal/service/attachment"
	"github.com/ashwinyue/advisor-ai/internal/service/auth"
	"github.com/ashwinyue/advisor-ai/internal/service/conversation"
	"github.com/ashwinyue/advisor-ai/internal/service/file"
	"github.com/ashwinyue/advisor-ai/internal/service/orchestrator"
)

// Services 服务集合
type Services struct {
	Auth         *auth.Service
	Conversation *conversation.Service
	Attachment   *attachment.Service
	Orchestrator orchestrator.Orchestrator

	Config  *config.Config
	Storage file.Storage

	pool       *attachment.Pool
	reconciler *attachment.Reconciler
	cancel     context.CancelFunc
}

// NewServices 创建所有服务
func NewServices(repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client) (*Services, error) {
	ctx := context.Background()

	// 文件存储
	storage, err := file.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	// 提取协调器（未配置转写服务时音频走降级路径）
	var transcriber extract.Transcriber
	if t := extract.NewHTTPTranscriber(&cfg.AI.Transcription); t != nil {
		transcriber = t
	} else {
		log.Printf("Warning: transcription credential not configured, audio attachments will be degraded")
	}
	coordinator := extract.NewCoordinator(transcriber)

	// 提取工作池和巡检
	extCfg := cfg.Extraction
	pool := attachment.NewPool(repo.Attachment, storage, coordinator,
		extCfg.Workers, extCfg.QueueSize, time.Duration(extCfg.JobTimeout)*time.Second)
	reconciler := attachment.NewReconciler(repo.Attachment, pool,
		time.Duration(extCfg.SweepInterval)*time.Second,
		time.Duration(extCfg.StuckThreshold)*time.Second)

	attachmentSvc := attachment.NewService(repo.Attachment, storage, pool)

	// 标题生成模型
	var titler *conversation.TitleGenerator
	if chatModel, err := newTitleChatModel(ctx, cfg); err != nil {
		log.Printf("Warning: failed to create title chat model: %v", err)
	} else {
		titler = conversation.NewTitleGenerator(chatModel, 30*time.Second)
	}

	conversationSvc := conversation.NewService(
		repo.Conversation,
		conversation.NewTurnCache(redisClient),
		conversation.NewAssembler(repo.Attachment),
		titler,
	)

	// 对话编排器
	orch, err := orchestrator.NewAgentOrchestrator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &Services{
		Auth:         auth.NewService(repo),
		Conversation: conversationSvc,
		Attachment:   attachmentSvc,
		Orchestrator: orch,
		Config:       cfg,
		Storage:      storage,
		pool:         pool,
		reconciler:   reconciler,
	}, nil
}

// Start 启动后台任务（提取工作池和巡检）
func (s *Services) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.pool.Start(ctx)
	go s.reconciler.Run(ctx)
	log.Printf("Extraction pool started with %d workers", s.Config.Extraction.Workers)
}

// Stop 停止后台任务，等待在途提取完成
func (s *Services) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.pool.Stop()
}

// newTitleChatModel 创建标题生成用的 ChatModel
func newTitleChatModel(ctx context.Context, cfg *config.Config) (conversation.ChatModel, error) {
	aiCfg := cfg.AI

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

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
}
