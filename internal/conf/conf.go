package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// OpenAI-compatible chat backend configuration
	Chat ChatConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// Redis durable queue configuration
	Redis RedisConfig

	// Exchange archive configuration
	Archive ArchiveConfig

	// Spreadsheet sync configuration
	Sheet SheetConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	// Ops HTTP API port
	APIPort int

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
	BotName   string
}

// ChatConfig contains the downstream chat model configuration
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// PipelineConfig contains the inbound pipeline knobs
type PipelineConfig struct {
	MergeEnabled      bool
	MergeWindowMs     int
	MergeMaxBatch     int
	MaxConcurrent     int
	HistoryMaxEntries int
	HistoryTTLMinutes int
	DedupTTLMinutes   int
	DedupCapacity     int
	DedupEvictPercent int
	SweepIntervalSecs int
	GroupChatsEnabled bool
	DurableEnabled    bool
}

// RedisConfig contains the durable delayed-queue configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ArchiveConfig contains exchange archive configuration
type ArchiveConfig struct {
	DBPath string
}

// SheetConfig contains spreadsheet sync configuration
type SheetConfig struct {
	Enabled         bool
	SpreadsheetID   string
	SheetID         string
	IntervalMinutes int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	archiveDBPath := os.Getenv("ARCHIVE_DB_PATH")
	if archiveDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		archiveDBPath = filepath.Join(homeDir, ".chatrelay", "exchanges.db")
	}

	promptsConfig, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("[Config] Failed to load prompts config, using defaults: %v\n", err)
		promptsConfig = DefaultPromptsConfig()
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
			BotName:   os.Getenv("BOT_NAME"),
		},
		Chat: ChatConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Pipeline: PipelineConfig{
			MergeEnabled:      envBool("MERGE_ENABLED", true),
			MergeWindowMs:     envInt("MERGE_WINDOW_MS", 2500),
			MergeMaxBatch:     envInt("MERGE_MAX_BATCH", 5),
			MaxConcurrent:     envInt("MAX_CONCURRENT", 8),
			HistoryMaxEntries: envInt("HISTORY_MAX_ENTRIES", 20),
			HistoryTTLMinutes: envInt("HISTORY_TTL_MINUTES", 120),
			DedupTTLMinutes:   envInt("DEDUP_TTL_MINUTES", 10),
			DedupCapacity:     envInt("DEDUP_CAPACITY", 4096),
			DedupEvictPercent: envInt("DEDUP_EVICT_PERCENT", 20),
			SweepIntervalSecs: envInt("SWEEP_INTERVAL_SECONDS", 60),
			GroupChatsEnabled: envBool("GROUP_CHATS_ENABLED", true),
			DurableEnabled:    envBool("DURABLE_QUEUE_ENABLED", false),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Archive: ArchiveConfig{
			DBPath: archiveDBPath,
		},
		Sheet: SheetConfig{
			Enabled:         envBool("SHEET_SYNC_ENABLED", false),
			SpreadsheetID:   os.Getenv("SHEET_SPREADSHEET_ID"),
			SheetID:         os.Getenv("SHEET_ID"),
			IntervalMinutes: envInt("SHEET_SYNC_INTERVAL_MINUTES", 5),
		},
		Prompts: promptsConfig,
		APIPort: envInt("API_PORT", 9876),
		Debug:   os.Getenv("DEBUG") == "true",
	}
}

// ToDedupeConfig converts to the dedup cache configuration
func (c *PipelineConfig) ToDedupeConfig() usecase.DedupeConfig {
	return usecase.DedupeConfig{
		TTL:          time.Duration(c.DedupTTLMinutes) * time.Minute,
		Capacity:     c.DedupCapacity,
		EvictPercent: c.DedupEvictPercent,
	}
}

// ToHistoryConfig converts to the history log configuration
func (c *PipelineConfig) ToHistoryConfig() usecase.HistoryConfig {
	return usecase.HistoryConfig{
		MaxEntries: c.HistoryMaxEntries,
		TTL:        time.Duration(c.HistoryTTLMinutes) * time.Minute,
	}
}

// ToMergeQueueConfig converts to the merge window configuration
func (c *PipelineConfig) ToMergeQueueConfig() usecase.MergeQueueConfig {
	return usecase.MergeQueueConfig{
		Window:   time.Duration(c.MergeWindowMs) * time.Millisecond,
		MaxBatch: c.MergeMaxBatch,
	}
}

// ToPipelineConfig converts to the orchestrator configuration
func (c *PipelineConfig) ToPipelineConfig() usecase.PipelineConfig {
	return usecase.PipelineConfig{
		MergeEnabled:   c.MergeEnabled,
		MergeWindow:    time.Duration(c.MergeWindowMs) * time.Millisecond,
		MaxConcurrent:  c.MaxConcurrent,
		DurableEnabled: c.DurableEnabled,
	}
}

// SweepInterval returns the sweep interval as a duration
func (c *PipelineConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.Chat.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if c.Pipeline.DurableEnabled && c.Redis.Addr == "" {
		return &ConfigError{Field: "REDIS_ADDR", Message: "required when DURABLE_QUEUE_ENABLED=true"}
	}
	if c.Sheet.Enabled && c.Sheet.SpreadsheetID == "" {
		return &ConfigError{Field: "SHEET_SPREADSHEET_ID", Message: "required when SHEET_SYNC_ENABLED=true"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}
