package repo

import (
	"context"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// SheetRepo appends exchange rows to the ops spreadsheet
type SheetRepo interface {
	AppendExchanges(ctx context.Context, exchanges []*domain.Exchange) error
}
