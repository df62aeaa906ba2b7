package data

import (
	"github.com/lumiware/chatrelay/internal/biz/repo"
	"github.com/lumiware/chatrelay/internal/infra/feishu"
	"github.com/lumiware/chatrelay/internal/infra/openai"
)

// Repositories contains all repositories
type Repositories struct {
	Message repo.MessageRepo
	Chat    repo.ChatRepo
	Archive repo.ArchiveRepo
	Delay   repo.DelayRepo // nil unless the durable queue is configured
	Sheet   repo.SheetRepo // nil unless sheet sync is configured
}

// Options controls which optional repositories are built
type Options struct {
	SystemPrompt  string
	ArchiveDBPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SpreadsheetID string
	SheetID       string
}

// NewRepositories creates all repositories
func NewRepositories(feishuClient *feishu.Client, chatClient *openai.Client, opts Options) (*Repositories, error) {
	archiveRepo, err := NewArchiveRepo(opts.ArchiveDBPath)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{
		Message: NewFeishuRepo(feishuClient),
		Chat:    NewChatRepo(chatClient, opts.SystemPrompt),
		Archive: archiveRepo,
	}

	if opts.RedisAddr != "" {
		repos.Delay = NewDelayRepo(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	}
	if opts.SpreadsheetID != "" {
		repos.Sheet = NewSheetRepo(feishuClient, opts.SpreadsheetID, opts.SheetID)
	}

	return repos, nil
}
