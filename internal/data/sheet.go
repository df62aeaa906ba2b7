package data

import (
	"context"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"
	"github.com/lumiware/chatrelay/internal/infra/feishu"
)

// sheetRepo implements the spreadsheet repository over Feishu sheets
type sheetRepo struct {
	client        *feishu.Client
	spreadsheetID string
	sheetID       string
}

// NewSheetRepo creates a Feishu-sheets-backed spreadsheet repository
func NewSheetRepo(client *feishu.Client, spreadsheetID, sheetID string) repo.SheetRepo {
	return &sheetRepo{
		client:        client,
		spreadsheetID: spreadsheetID,
		sheetID:       sheetID,
	}
}

// AppendExchanges appends one row per exchange:
// time, chat id, batch size, merged message, reply
func (r *sheetRepo) AppendExchanges(ctx context.Context, exchanges []*domain.Exchange) error {
	rows := make([][]interface{}, 0, len(exchanges))
	for _, ex := range exchanges {
		rows = append(rows, []interface{}{
			ex.CreatedAt.Format("2006-01-02 15:04:05"),
			ex.ChatID,
			ex.BatchSize,
			ex.Merged,
			ex.Reply,
		})
	}
	return r.client.AppendSheetValues(ctx, r.spreadsheetID, r.sheetID, rows)
}
