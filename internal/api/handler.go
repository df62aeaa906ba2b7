package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/lumiware/chatrelay/internal/biz/repo"
	"github.com/lumiware/chatrelay/internal/biz/usecase"
)

// Server provides the operational HTTP API: pipeline introspection,
// cache clearing, exchange listing, and manual sends. Used by tooling
// (including chatrelay-mcp), not by the pipeline itself.
type Server struct {
	pipeline    *usecase.Pipeline
	archiveRepo repo.ArchiveRepo
	messageRepo repo.MessageRepo

	server *http.Server
	port   int
}

// NewServer creates a new API server
func NewServer(pipeline *usecase.Pipeline, archiveRepo repo.ArchiveRepo, messageRepo repo.MessageRepo, port int) *Server {
	return &Server{
		pipeline:    pipeline,
		archiveRepo: archiveRepo,
		messageRepo: messageRepo,
		port:        port,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Pipeline introspection
	mux.HandleFunc("/api/stats", s.handleStats)

	// Cache management
	mux.HandleFunc("/api/caches/dedupe", s.handleClearDedupe)
	mux.HandleFunc("/api/caches/history", s.handleClearHistory)
	mux.HandleFunc("/api/caches/buffers", s.handleClearBuffers)

	// Exchange archive
	mux.HandleFunc("/api/exchanges", s.handleExchanges)

	// Manual send
	mux.HandleFunc("/api/send", s.handleSend)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: mux,
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.pipeline.Snapshot())
}

func (s *Server) handleClearDedupe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.pipeline.ClearDedupe()
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.pipeline.ClearHistory(r.URL.Query().Get("chat_id"))
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleClearBuffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.pipeline.ClearBuffers(r.URL.Query().Get("chat_id"))
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	exchanges, err := s.archiveRepo.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type exchangeView struct {
		ID        int64  `json:"id"`
		BatchID   string `json:"batch_id"`
		ChatID    string `json:"chat_id"`
		Merged    string `json:"merged"`
		Reply     string `json:"reply"`
		BatchSize int    `json:"batch_size"`
		CreatedAt string `json:"created_at"`
		Synced    bool   `json:"synced"`
	}

	views := make([]exchangeView, 0, len(exchanges))
	for _, ex := range exchanges {
		views = append(views, exchangeView{
			ID:        ex.ID,
			BatchID:   ex.BatchID,
			ChatID:    ex.ChatID,
			Merged:    ex.Merged,
			Reply:     ex.Reply,
			BatchSize: ex.BatchSize,
			CreatedAt: ex.CreatedAt.Format("2006-01-02 15:04:05"),
			Synced:    ex.Synced,
		})
	}

	s.writeJSON(w, map[string]interface{}{"exchanges": views})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || req.Text == "" {
		http.Error(w, "chat_id and text are required", http.StatusBadRequest)
		return
	}

	if err := s.messageRepo.SendText(r.Context(), req.ChatID, req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Printf("[API] Failed to encode response: %v\n", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
