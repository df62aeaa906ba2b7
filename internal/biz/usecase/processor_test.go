package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// Mock implementations

type mockChatRepo struct {
	mu      sync.Mutex
	calls   []chatCall
	reply   string
	err     error
	blockCh chan struct{} // when set, Complete blocks until closed
}

type chatCall struct {
	chatID  string
	message string
	history []domain.HistoryTurn
}

func (m *mockChatRepo) Complete(ctx context.Context, chatID, message string, history []domain.HistoryTurn) (string, error) {
	if m.blockCh != nil {
		<-m.blockCh
	}
	m.mu.Lock()
	m.calls = append(m.calls, chatCall{chatID: chatID, message: message, history: history})
	m.mu.Unlock()
	return m.reply, m.err
}

func (m *mockChatRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockChatRepo) call(i int) chatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

type mockMessageRepo struct {
	mu    sync.Mutex
	sent  []string
	chats []string
	err   error
}

func (m *mockMessageRepo) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, text)
	m.chats = append(m.chats, chatID)
	m.mu.Unlock()
	return m.err
}

func (m *mockMessageRepo) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockArchiveRepo struct {
	mu    sync.Mutex
	saved []*domain.Exchange
	err   error
}

func (m *mockArchiveRepo) SaveExchange(ctx context.Context, ex *domain.Exchange) error {
	m.mu.Lock()
	m.saved = append(m.saved, ex)
	m.mu.Unlock()
	return m.err
}

func (m *mockArchiveRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	return nil, nil
}

func (m *mockArchiveRepo) GetUnsynced(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	return nil, nil
}

func (m *mockArchiveRepo) MarkSynced(ctx context.Context, ids []int64) error { return nil }

func (m *mockArchiveRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockArchiveRepo) Close() error { return nil }

func newTestProcessor(chat *mockChatRepo, message *mockMessageRepo, archive *mockArchiveRepo) (*BatchProcessor, *ExpiringKeySet, *HistoryLog) {
	dedupe := NewExpiringKeySet(DedupeConfig{TTL: time.Minute, Capacity: 100})
	history := NewHistoryLog(HistoryConfig{MaxEntries: 20, TTL: time.Hour})
	cfg := ProcessorConfig{GroupChatsEnabled: true}
	if archive == nil {
		return NewBatchProcessor(dedupe, history, chat, message, nil, cfg), dedupe, history
	}
	return NewBatchProcessor(dedupe, history, chat, message, archive, cfg), dedupe, history
}

// Tests

func TestProcess_MergesInArrivalOrder(t *testing.T) {
	chat := &mockChatRepo{reply: "got it"}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{
		event("chat-1", "m1", "hi"),
		event("chat-1", "m2", "there"),
	})

	if chat.callCount() != 1 {
		t.Fatalf("Expected 1 completion call, got %d", chat.callCount())
	}
	if got := chat.call(0).message; got != "hi\nthere" {
		t.Errorf("Expected merged message %q, got %q", "hi\nthere", got)
	}
	if message.sentCount() != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", message.sentCount())
	}
	if message.sent[0] != "got it" {
		t.Errorf("Expected reply dispatched, got %q", message.sent[0])
	}
}

func TestProcess_FiltersSelfSentAndEmpty(t *testing.T) {
	chat := &mockChatRepo{reply: "ok"}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	self := event("chat-1", "m1", "from the bot")
	self.FromSelf = true
	empty := event("chat-1", "m2", "   ")

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{
		self,
		empty,
		event("chat-1", "m3", "real message"),
	})

	if chat.callCount() != 1 {
		t.Fatalf("Expected 1 completion call, got %d", chat.callCount())
	}
	if got := chat.call(0).message; got != "real message" {
		t.Errorf("Expected only the real message to survive, got %q", got)
	}
}

func TestProcess_AllFilteredMeansNoCompletion(t *testing.T) {
	chat := &mockChatRepo{reply: "ok"}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	self := event("chat-1", "m1", "bot text")
	self.FromSelf = true

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{self})

	if chat.callCount() != 0 {
		t.Errorf("Expected no completion for a fully filtered batch, got %d", chat.callCount())
	}
	if message.sentCount() != 0 {
		t.Errorf("Expected no dispatch, got %d", message.sentCount())
	}
}

func TestProcess_GroupChatsDisabled(t *testing.T) {
	chat := &mockChatRepo{reply: "ok"}
	message := &mockMessageRepo{}
	dedupe := NewExpiringKeySet(DedupeConfig{TTL: time.Minute, Capacity: 100})
	history := NewHistoryLog(HistoryConfig{MaxEntries: 20, TTL: time.Hour})
	p := NewBatchProcessor(dedupe, history, chat, message, nil, ProcessorConfig{GroupChatsEnabled: false})

	group := event("chat-1", "m1", "group talk")
	group.ChatType = domain.ChatTypeGroup

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{group})

	if chat.callCount() != 0 {
		t.Errorf("Expected group event dropped when group chats are disabled")
	}
}

func TestProcess_DuplicateProcessedOnce(t *testing.T) {
	chat := &mockChatRepo{reply: "ok"}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "hello")})
	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "hello")})

	if chat.callCount() != 1 {
		t.Errorf("Expected the duplicate to be dropped, got %d completions", chat.callCount())
	}
	if message.sentCount() != 1 {
		t.Errorf("Expected 1 dispatch, got %d", message.sentCount())
	}
}

func TestProcess_HistoryExcludesCurrentMessage(t *testing.T) {
	chat := &mockChatRepo{reply: "first reply"}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "first")})
	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m2", "second")})

	if chat.callCount() != 2 {
		t.Fatalf("Expected 2 completions, got %d", chat.callCount())
	}
	if len(chat.call(0).history) != 0 {
		t.Errorf("Expected empty history on first exchange, got %d turns", len(chat.call(0).history))
	}

	second := chat.call(1).history
	if len(second) != 2 {
		t.Fatalf("Expected 2 prior turns on second exchange, got %d", len(second))
	}
	if second[0].Text != "first" || second[1].Text != "first reply" {
		t.Errorf("Unexpected prior turns: %q, %q", second[0].Text, second[1].Text)
	}
	for _, turn := range second {
		if turn.Text == "second" {
			t.Error("Expected the in-flight message to be excluded from prior turns")
		}
	}
}

func TestProcess_ChatErrorSkipsDispatch(t *testing.T) {
	chat := &mockChatRepo{err: errors.New("model unavailable")}
	message := &mockMessageRepo{}
	p, _, history := newTestProcessor(chat, message, nil)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "hello")})

	if message.sentCount() != 0 {
		t.Errorf("Expected no dispatch on chat error, got %d", message.sentCount())
	}
	// The user turn stays recorded even though no reply was produced.
	turns := history.Read("chat-1")
	if len(turns) != 1 || turns[0].Role != domain.RoleUser {
		t.Errorf("Expected only the user turn in history, got %+v", turns)
	}
}

func TestProcess_EmptyReplySkipsDispatch(t *testing.T) {
	chat := &mockChatRepo{reply: "   "}
	message := &mockMessageRepo{}
	p, _, _ := newTestProcessor(chat, message, nil)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "hello")})

	if message.sentCount() != 0 {
		t.Errorf("Expected no dispatch for an empty reply, got %d", message.sentCount())
	}
}

func TestProcess_ArchivesExchange(t *testing.T) {
	chat := &mockChatRepo{reply: "archived reply"}
	message := &mockMessageRepo{}
	archive := &mockArchiveRepo{}
	p, _, _ := newTestProcessor(chat, message, archive)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{
		event("chat-1", "m1", "one"),
		event("chat-1", "m2", "two"),
	})

	if len(archive.saved) != 1 {
		t.Fatalf("Expected 1 archived exchange, got %d", len(archive.saved))
	}
	ex := archive.saved[0]
	if ex.ChatID != "chat-1" || ex.Merged != "one\ntwo" || ex.Reply != "archived reply" {
		t.Errorf("Unexpected archived exchange: %+v", ex)
	}
	if ex.BatchSize != 2 {
		t.Errorf("Expected batch size 2, got %d", ex.BatchSize)
	}
	if ex.BatchID == "" {
		t.Error("Expected a batch id")
	}
}

func TestProcess_ArchiveErrorDoesNotBlockDispatch(t *testing.T) {
	chat := &mockChatRepo{reply: "ok"}
	message := &mockMessageRepo{}
	archive := &mockArchiveRepo{err: errors.New("disk full")}
	p, _, _ := newTestProcessor(chat, message, archive)

	p.Process(context.Background(), "chat-1", []*domain.InboundEvent{event("chat-1", "m1", "hello")})

	if message.sentCount() != 1 {
		t.Errorf("Expected dispatch despite archive error, got %d", message.sentCount())
	}
}
