package data

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"
	infra "github.com/lumiware/chatrelay/internal/infra/openai"
)

// chatRepo implements the downstream chat repository over an
// OpenAI-compatible API
type chatRepo struct {
	client       *infra.Client
	systemPrompt string
}

// NewChatRepo creates a chat repository
func NewChatRepo(client *infra.Client, systemPrompt string) repo.ChatRepo {
	return &chatRepo{
		client:       client,
		systemPrompt: systemPrompt,
	}
}

// Complete sends the merged message with prior turns to the model
func (r *chatRepo) Complete(ctx context.Context, chatID, message string, history []domain.HistoryTurn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)

	if r.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.systemPrompt,
		})
	}

	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	return r.client.ChatCompletion(ctx, messages)
}
