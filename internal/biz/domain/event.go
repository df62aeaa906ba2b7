package domain

import (
	"strings"
	"time"
)

// ChatType represents the chat type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// InboundEvent is one normalized inbound webhook occurrence.
// It is immutable once built by the server layer: the pipeline never
// mutates it, it is either processed once or folded into one batch.
type InboundEvent struct {
	MsgID      string
	ChatID     string
	FromSelf   bool // sent by the bot itself
	ChatType   ChatType
	Channel    string // originating channel tag, e.g. "feishu"
	Text       string // extracted text, empty for unsupported content types
	ReceivedAt time.Time
	Raw        interface{} // opaque payload passed through for downstream use
}

// HasText reports whether the event carries non-blank text
func (e *InboundEvent) HasText() bool {
	return strings.TrimSpace(e.Text) != ""
}

// IsGroup checks if the event comes from a group chat
func (e *InboundEvent) IsGroup() bool {
	return e.ChatType == ChatTypeGroup
}
