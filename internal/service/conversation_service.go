// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/repository"
)

// ConversationService 定义了对话会话业务逻辑的接口。
type ConversationService interface {
	NewSession() string
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// NewSession 开启一个新的对话会话，返回会话标识。
func (s *conversationService) NewSession() string {
	return s.repo.NewSessionID()
}

// GetConversationHistory 获取指定会话的完整消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.repo.GetHistory(ctx, sessionID)
}
