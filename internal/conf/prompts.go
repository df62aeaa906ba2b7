package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptsConfig contains prompt configurations loaded from YAML
type PromptsConfig struct {
	Chat ChatPrompts `yaml:"chat"`
}

// ChatPrompts contains the downstream chat model prompts
type ChatPrompts struct {
	SystemPrompt string `yaml:"system_prompt"`
	ReplyStyle   string `yaml:"reply_style"`
}

// LoadPromptsConfig loads prompts configuration from a YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"./configs/prompts.yaml",
			"/etc/chatrelay/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	if data == nil {
		fmt.Println("[Config] No prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	fmt.Printf("[Config] Loading prompts from: %s\n", loadedPath)

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	config.fillDefaults()
	return &config, nil
}

// DefaultPromptsConfig returns built-in prompt defaults
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Chat: ChatPrompts{
			SystemPrompt: "You are a helpful assistant replying inside an instant-messaging chat. " +
				"The user may have sent several short messages at once, merged into one. " +
				"Answer naturally as a single reply.",
			ReplyStyle: "Keep replies short and conversational. Do not use markdown headings.",
		},
	}
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = defaults.Chat.SystemPrompt
	}
	if c.Chat.ReplyStyle == "" {
		c.Chat.ReplyStyle = defaults.Chat.ReplyStyle
	}
}

// BuildSystemPrompt combines the system prompt with the reply style
func (c *PromptsConfig) BuildSystemPrompt() string {
	parts := []string{c.Chat.SystemPrompt}
	if c.Chat.ReplyStyle != "" {
		parts = append(parts, c.Chat.ReplyStyle)
	}
	return strings.Join(parts, "\n\n")
}
