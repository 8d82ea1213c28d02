package conversation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/advisor-ai/internal/model"
)

const (
	// 会话轮次在 Redis 中的过期时间
	turnTTL = 24 * time.Hour
	// Redis key 前缀
	turnKeyPrefix = "conversation:turns:"
)

// TurnCache 会话轮次缓存
// 缓存未命中时调用方回源数据库；所有缓存错误只记日志
type TurnCache struct {
	redis *redis.Client
}

// NewTurnCache 创建轮次缓存
func NewTurnCache(redisClient *redis.Client) *TurnCache {
	return &TurnCache{redis: redisClient}
}

// Get 读取缓存的轮次
func (c *TurnCache) Get(ctx context.Context, conversationID string) ([]*model.Message, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, turnKeyPrefix+conversationID).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Warning: failed to read turn cache: %v", err)
		}
		return nil, false
	}
	var msgs []*model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Printf("Warning: corrupt turn cache for %s: %v", conversationID, err)
		return nil, false
	}
	return msgs, true
}

// Set 写入轮次缓存
func (c *TurnCache) Set(ctx context.Context, conversationID string, msgs []*model.Message) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, turnKeyPrefix+conversationID, data, turnTTL).Err(); err != nil {
		log.Printf("Warning: failed to write turn cache: %v", err)
	}
}

// Append 追加一条消息到缓存
// 缓存不存在时不做回填，等下次读取回源
func (c *TurnCache) Append(ctx context.Context, conversationID string, msg *model.Message) {
	if c.redis == nil {
		return
	}
	msgs, ok := c.Get(ctx, conversationID)
	if !ok {
		return
	}
	msgs = append(msgs, msg)
	c.Set(ctx, conversationID, msgs)
}

// Invalidate 删除轮次缓存
func (c *TurnCache) Invalidate(ctx context.Context, conversationID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, turnKeyPrefix+conversationID).Err(); err != nil {
		log.Printf("Warning: failed to invalidate turn cache: %v", err)
	}
}
