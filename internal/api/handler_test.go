package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/usecase"
)

// MockChatRepo implements repo.ChatRepo for testing
type MockChatRepo struct{}

func (m *MockChatRepo) Complete(ctx context.Context, chatID, message string, history []domain.HistoryTurn) (string, error) {
	return "ok", nil
}

// MockMessageRepo implements repo.MessageRepo for testing
type MockMessageRepo struct {
	sent []string
	err  error
}

func (m *MockMessageRepo) SendText(ctx context.Context, chatID, text string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, text)
	return nil
}

// MockArchiveRepo implements repo.ArchiveRepo for testing
type MockArchiveRepo struct {
	exchanges []*domain.Exchange
}

func (m *MockArchiveRepo) SaveExchange(ctx context.Context, ex *domain.Exchange) error { return nil }

func (m *MockArchiveRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	if len(m.exchanges) > limit {
		return m.exchanges[:limit], nil
	}
	return m.exchanges, nil
}

func (m *MockArchiveRepo) GetUnsynced(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	return nil, nil
}

func (m *MockArchiveRepo) MarkSynced(ctx context.Context, ids []int64) error { return nil }

func (m *MockArchiveRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *MockArchiveRepo) Close() error { return nil }

func newTestServer(message *MockMessageRepo, archive *MockArchiveRepo) *Server {
	dedupe := usecase.NewExpiringKeySet(usecase.DefaultDedupeConfig())
	history := usecase.NewHistoryLog(usecase.DefaultHistoryConfig())
	processor := usecase.NewBatchProcessor(dedupe, history, &MockChatRepo{}, message, nil, usecase.ProcessorConfig{GroupChatsEnabled: true})
	pipeline := usecase.NewPipeline(dedupe, history, processor, usecase.DefaultMergeQueueConfig(), nil, usecase.DefaultPipelineConfig())

	return &Server{
		pipeline:    pipeline,
		archiveRepo: archive,
		messageRepo: message,
	}
}

func TestHandleStats(t *testing.T) {
	server := newTestServer(&MockMessageRepo{}, &MockArchiveRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	server.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var stats usecase.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.ConcurrencyMax != 8 {
		t.Errorf("Expected default max concurrency 8, got %d", stats.ConcurrencyMax)
	}
	if stats.DedupeCapacity != 4096 {
		t.Errorf("Expected default dedup capacity 4096, got %d", stats.DedupeCapacity)
	}
}

func TestHandleStats_WrongMethod(t *testing.T) {
	server := newTestServer(&MockMessageRepo{}, &MockArchiveRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/stats", nil)
	w := httptest.NewRecorder()
	server.handleStats(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestHandleClearDedupe(t *testing.T) {
	server := newTestServer(&MockMessageRepo{}, &MockArchiveRepo{})
	server.pipeline.Dedupe().Admit("msg-1")

	req := httptest.NewRequest(http.MethodDelete, "/api/caches/dedupe", nil)
	w := httptest.NewRecorder()
	server.handleClearDedupe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if server.pipeline.Dedupe().Len() != 0 {
		t.Error("Expected dedup cache cleared")
	}
}

func TestHandleClearHistory_SingleChat(t *testing.T) {
	server := newTestServer(&MockMessageRepo{}, &MockArchiveRepo{})
	server.pipeline.History().Append("chat-1", domain.RoleUser, "hello")
	server.pipeline.History().Append("chat-2", domain.RoleUser, "other")

	req := httptest.NewRequest(http.MethodDelete, "/api/caches/history?chat_id=chat-1", nil)
	w := httptest.NewRecorder()
	server.handleClearHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if server.pipeline.History().Conversations() != 1 {
		t.Errorf("Expected only chat-2 to remain, got %d conversations", server.pipeline.History().Conversations())
	}
}

func TestHandleExchanges(t *testing.T) {
	archive := &MockArchiveRepo{exchanges: []*domain.Exchange{
		{ID: 1, BatchID: "b1", ChatID: "chat-1", Merged: "hello", Reply: "hi", BatchSize: 2, CreatedAt: time.Now()},
	}}
	server := newTestServer(&MockMessageRepo{}, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/exchanges?limit=10", nil)
	w := httptest.NewRecorder()
	server.handleExchanges(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Exchanges []struct {
			BatchID   string `json:"batch_id"`
			ChatID    string `json:"chat_id"`
			BatchSize int    `json:"batch_size"`
		} `json:"exchanges"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Exchanges) != 1 {
		t.Fatalf("Expected 1 exchange, got %d", len(resp.Exchanges))
	}
	if resp.Exchanges[0].ChatID != "chat-1" || resp.Exchanges[0].BatchSize != 2 {
		t.Errorf("Unexpected exchange: %+v", resp.Exchanges[0])
	}
}

func TestHandleSend(t *testing.T) {
	message := &MockMessageRepo{}
	server := newTestServer(message, &MockArchiveRepo{})

	body, _ := json.Marshal(map[string]string{"chat_id": "chat-1", "text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.handleSend(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(message.sent) != 1 || message.sent[0] != "hello" {
		t.Errorf("Expected the text to be sent, got %v", message.sent)
	}
}

func TestHandleSend_MissingFields(t *testing.T) {
	server := newTestServer(&MockMessageRepo{}, &MockArchiveRepo{})

	body, _ := json.Marshal(map[string]string{"chat_id": "chat-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.handleSend(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
