package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// OpsMCPServer exposes pipeline operations as MCP tools. It talks to a
// running chatrelay process over its local HTTP API, so the tools work
// without linking against the pipeline itself.
type OpsMCPServer struct {
	server *mcp.Server
	api    *apiClient
}

// apiClient is a thin client for the backend ops API
type apiClient struct {
	baseURL string
	client  *http.Client
}

// NewServer creates a new ops MCP server pointed at the backend API
func NewServer() *OpsMCPServer {
	apiURL := os.Getenv("CHATRELAY_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:9876"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "chatrelay-ops",
		Version: "v1.0.0",
	}, nil)

	s := &OpsMCPServer{
		server: server,
		api: &apiClient{
			baseURL: apiURL,
			client:  &http.Client{Timeout: 10 * time.Second},
		},
	}

	s.registerTools()
	return s
}

// registerTools registers all pipeline ops tools
func (s *OpsMCPServer) registerTools() {
	// Tool: pipeline stats - dedup size, history conversations, gate usage, buffers
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chatrelay_pipeline_stats",
		Description: "Get a snapshot of the inbound pipeline: dedup cache size, history conversations, concurrency gate usage and active merge buffers.",
	}, s.handleStats)

	// Tool: clear cache - wipe one of the in-memory caches
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chatrelay_clear_cache",
		Description: "Clear one of the pipeline caches: dedupe, history or buffers. history and buffers accept an optional chat_id to clear a single conversation.",
	}, s.handleClearCache)

	// Tool: list exchanges - recent archived request/reply pairs
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chatrelay_list_exchanges",
		Description: "List recently archived exchanges (merged inbound message plus the reply that was sent).",
	}, s.handleListExchanges)

	// Tool: send message - manual outbound send
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chatrelay_send_message",
		Description: "Send a text message to a chat through the running backend. Bypasses the pipeline, use for operational announcements.",
	}, s.handleSendMessage)
}

// StatsInput is empty, the stats tool takes no arguments
type StatsInput struct{}

// StatsOutput carries the raw pipeline snapshot
type StatsOutput struct {
	Stats json.RawMessage `json:"stats,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (s *OpsMCPServer) handleStats(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	body, err := s.api.do(ctx, http.MethodGet, "/api/stats", nil)
	if err != nil {
		return nil, StatsOutput{Error: err.Error()}, nil
	}
	return nil, StatsOutput{Stats: body}, nil
}

// ClearCacheInput selects which cache to clear
type ClearCacheInput struct {
	Cache  string `json:"cache" jsonschema:"description=Which cache to clear: dedupe, history or buffers"`
	ChatID string `json:"chat_id,omitempty" jsonschema:"description=Limit the clear to one chat (history and buffers only)"`
}

// ClearCacheOutput is the result of a cache clear
type ClearCacheOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *OpsMCPServer) handleClearCache(ctx context.Context, req *mcp.CallToolRequest, input ClearCacheInput) (*mcp.CallToolResult, ClearCacheOutput, error) {
	switch input.Cache {
	case "dedupe", "history", "buffers":
	default:
		return nil, ClearCacheOutput{Error: fmt.Sprintf("unknown cache %q", input.Cache)}, nil
	}

	path := "/api/caches/" + input.Cache
	if input.ChatID != "" {
		path += "?chat_id=" + url.QueryEscape(input.ChatID)
	}

	if _, err := s.api.do(ctx, http.MethodDelete, path, nil); err != nil {
		return nil, ClearCacheOutput{Error: err.Error()}, nil
	}
	return nil, ClearCacheOutput{Success: true}, nil
}

// ListExchangesInput limits how many exchanges to return
type ListExchangesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Maximum number of exchanges to return (default 20)"`
}

// ListExchangesOutput carries the archived exchanges
type ListExchangesOutput struct {
	Exchanges json.RawMessage `json:"exchanges,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (s *OpsMCPServer) handleListExchanges(ctx context.Context, req *mcp.CallToolRequest, input ListExchangesInput) (*mcp.CallToolResult, ListExchangesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	body, err := s.api.do(ctx, http.MethodGet, fmt.Sprintf("/api/exchanges?limit=%d", limit), nil)
	if err != nil {
		return nil, ListExchangesOutput{Error: err.Error()}, nil
	}
	return nil, ListExchangesOutput{Exchanges: body}, nil
}

// SendMessageInput is the input for the send tool
type SendMessageInput struct {
	ChatID string `json:"chat_id" jsonschema:"description=The chat to send to"`
	Text   string `json:"text" jsonschema:"description=The message text"`
}

// SendMessageOutput is the result of a send
type SendMessageOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *OpsMCPServer) handleSendMessage(ctx context.Context, req *mcp.CallToolRequest, input SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	if input.ChatID == "" || input.Text == "" {
		return nil, SendMessageOutput{Error: "chat_id and text are required"}, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"chat_id": input.ChatID,
		"text":    input.Text,
	})
	if _, err := s.api.do(ctx, http.MethodPost, "/api/send", payload); err != nil {
		return nil, SendMessageOutput{Error: err.Error()}, nil
	}
	return nil, SendMessageOutput{Success: true}, nil
}

// Run starts the MCP server with stdio transport
func (s *OpsMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *OpsMCPServer) GetServer() *mcp.Server {
	return s.server
}

func (c *apiClient) do(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
