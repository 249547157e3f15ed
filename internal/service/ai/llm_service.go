package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-tavern/chatsync/internal/config"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

const historyLimit = 10

// Request is everything a responder may use to answer one query.
type Request struct {
	SessionID string
	Backend   string
	Model     string
	History   []chat.Turn
	Query     string
}

// Responder produces the assistant turn for a query.
type Responder interface {
	Reply(ctx context.Context, req Request) (string, error)
}

// Service answers queries through an Ark chat model.
type Service struct {
	cfg   config.AIConfig
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, cfg)
}

func newServiceWithModel(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		cfg:   cfg,
		chain: runnable,
	}, nil
}

// Reply runs the chain over the recent history and the new query.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	input := map[string]any{
		"system":  s.cfg.SystemPrompt,
		"history": buildHistoryMessages(req.History),
		"query":   req.Query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	logger.Info("generated response", "session", req.SessionID, "backend", req.Backend,
		"model", req.Model, "length", len(response.Content))
	return response.Content, nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
