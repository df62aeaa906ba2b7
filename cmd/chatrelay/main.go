package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lumiware/chatrelay/internal/api"
	"github.com/lumiware/chatrelay/internal/biz/usecase"
	"github.com/lumiware/chatrelay/internal/conf"
	"github.com/lumiware/chatrelay/internal/data"
	"github.com/lumiware/chatrelay/internal/infra/feishu"
	"github.com/lumiware/chatrelay/internal/infra/openai"
	"github.com/lumiware/chatrelay/internal/server"
	"github.com/lumiware/chatrelay/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	chatClient := openai.NewClient(cfg.Chat.APIKey, cfg.Chat.BaseURL, cfg.Chat.Model)

	// Initialize repository layer
	repos, err := data.NewRepositories(feishuClient, chatClient, data.Options{
		SystemPrompt:  cfg.Prompts.BuildSystemPrompt(),
		ArchiveDBPath: cfg.Archive.DBPath,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		SpreadsheetID: cfg.Sheet.SpreadsheetID,
		SheetID:       cfg.Sheet.SheetID,
	})
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}

	fmt.Printf("[Relay] Archive DB: %s\n", cfg.Archive.DBPath)

	// Initialize usecase layer
	dedupe := usecase.NewExpiringKeySet(cfg.Pipeline.ToDedupeConfig())
	history := usecase.NewHistoryLog(cfg.Pipeline.ToHistoryConfig())
	processor := usecase.NewBatchProcessor(dedupe, history, repos.Chat, repos.Message, repos.Archive, usecase.ProcessorConfig{
		GroupChatsEnabled: cfg.Pipeline.GroupChatsEnabled,
	})
	pipeline := usecase.NewPipeline(dedupe, history, processor,
		cfg.Pipeline.ToMergeQueueConfig(), repos.Delay, cfg.Pipeline.ToPipelineConfig())

	if cfg.Pipeline.MergeEnabled {
		fmt.Printf("[Relay] Merge window: %dms, max batch %d\n",
			cfg.Pipeline.MergeWindowMs, cfg.Pipeline.MergeMaxBatch)
	}
	if cfg.Pipeline.DurableEnabled {
		fmt.Printf("[Relay] Durable merge queue on %s\n", cfg.Redis.Addr)
	}

	// Initialize service layer
	sweeper := service.NewSweeper(dedupe, history, cfg.Pipeline.SweepInterval())

	var sheetSync *service.SheetSync
	if cfg.Sheet.Enabled && repos.Sheet != nil {
		interval := time.Duration(cfg.Sheet.IntervalMinutes) * time.Minute
		sheetSync = service.NewSheetSync(repos.Archive, repos.Sheet, interval)
		fmt.Printf("[Relay] Sheet sync enabled for %s\n", cfg.Sheet.SpreadsheetID)
	}

	// Initialize HTTP API server for ops tooling
	apiServer := api.NewServer(pipeline, repos.Archive, repos.Message, cfg.APIPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			fmt.Printf("[Relay] API server error: %v\n", err)
		}
	}()

	// Initialize server
	srv := server.NewFeishuServer(feishuClient, pipeline, sweeper, sheetSync)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		srv.Stop()
		apiServer.Stop()
		repos.Archive.Close()
		os.Exit(0)
	}()

	fmt.Println("Starting chatrelay...")
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
