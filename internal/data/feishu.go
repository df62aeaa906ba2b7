package data

import (
	"context"

	"github.com/lumiware/chatrelay/internal/biz/repo"
	"github.com/lumiware/chatrelay/internal/infra/feishu"
)

// feishuRepo implements the message delivery repository over Feishu
type feishuRepo struct {
	client *feishu.Client
}

// NewFeishuRepo creates a Feishu-backed message repository
func NewFeishuRepo(client *feishu.Client) repo.MessageRepo {
	return &feishuRepo{client: client}
}

// SendText sends a text message
func (r *feishuRepo) SendText(ctx context.Context, chatID, text string) error {
	return r.client.SendText(ctx, chatID, text)
}
