// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pdf-chat-go/internal/model"
)

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	NewSessionID() string
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	UpdateHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// NewSessionID 生成一个新的会话标识。
func (r *redisConversationRepository) NewSessionID() string {
	return uuid.NewString()
}

// GetHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	key := fmt.Sprintf("conversation:%s", sessionID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // 还没有历史记录
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateHistory 在 Redis 中更新对话历史记录。
func (r *redisConversationRepository) UpdateHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	key := fmt.Sprintf("conversation:%s", sessionID)
	// 保留最近 20 条
	if len(messages) > 20 {
		messages = messages[len(messages)-20:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, key, jsonData, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}
