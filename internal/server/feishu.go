package server

import (
	"context"
	"fmt"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/usecase"
	"github.com/lumiware/chatrelay/internal/infra/feishu"
	"github.com/lumiware/chatrelay/internal/service"
)

// FeishuServer receives Feishu messages and feeds the inbound pipeline
type FeishuServer struct {
	feishuClient *feishu.Client
	pipeline     *usecase.Pipeline
	sweeper      *service.Sweeper
	sheetSync    *service.SheetSync // optional
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(
	feishuClient *feishu.Client,
	pipeline *usecase.Pipeline,
	sweeper *service.Sweeper,
	sheetSync *service.SheetSync,
) *FeishuServer {
	return &FeishuServer{
		feishuClient: feishuClient,
		pipeline:     pipeline,
		sweeper:      sweeper,
		sheetSync:    sheetSync,
	}
}

// Start starts the background services and the Feishu connection
func (s *FeishuServer) Start() error {
	s.pipeline.Start()
	s.sweeper.Start(context.Background())
	if s.sheetSync != nil {
		s.sheetSync.Start(context.Background())
	}

	s.feishuClient.OnMessage(s.handleMessage)
	return s.feishuClient.Start()
}

// Stop stops the server
func (s *FeishuServer) Stop() {
	s.feishuClient.Stop()
	if s.sheetSync != nil {
		s.sheetSync.Stop()
	}
	s.sweeper.Stop()
	s.pipeline.Stop()
}

// handleMessage normalizes a Feishu message and hands it to the
// pipeline. The webhook was already acknowledged by the SDK; from here
// everything is the pipeline's decision.
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	fmt.Printf("[Server] Received %s from %s (chatType=%s): %s\n",
		msg.MsgType, msg.ChatID, msg.ChatType, truncate(msg.Content, 50))

	chatType := domain.ChatTypeP2P
	if msg.ChatType == "group" {
		chatType = domain.ChatTypeGroup
	}

	receivedAt := time.Now()
	if msg.CreateTime > 0 {
		receivedAt = time.UnixMilli(msg.CreateTime)
	}

	event := &domain.InboundEvent{
		MsgID:      msg.MsgID,
		ChatID:     msg.ChatID,
		FromSelf:   msg.FromBot,
		ChatType:   chatType,
		Channel:    "feishu",
		Text:       msg.Content,
		ReceivedAt: receivedAt,
		Raw:        msg,
	}

	s.pipeline.Handle(event)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
