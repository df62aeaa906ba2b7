package repo

import (
	"context"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// ArchiveRepo is the exchange archive interface.
// Records completed exchanges for the ops API and the spreadsheet sync.
type ArchiveRepo interface {
	SaveExchange(ctx context.Context, ex *domain.Exchange) error
	ListRecent(ctx context.Context, limit int) ([]*domain.Exchange, error)
	GetUnsynced(ctx context.Context, limit int) ([]*domain.Exchange, error)
	MarkSynced(ctx context.Context, ids []int64) error
	CleanupOld(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
