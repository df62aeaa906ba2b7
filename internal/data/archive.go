package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// archiveRepo implements the exchange archive repository
type archiveRepo struct {
	db *sql.DB
}

// NewArchiveRepo creates a new exchange archive repository
func NewArchiveRepo(dbPath string) (repo.ArchiveRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			merged TEXT NOT NULL,
			reply TEXT NOT NULL,
			batch_size INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			synced INTEGER DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_exchanges_chat ON exchanges(chat_id, created_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_exchanges_synced ON exchanges(synced)`)

	fmt.Println("[Archive] Database initialized")
	return &archiveRepo{db: db}, nil
}

// SaveExchange records one completed exchange
func (r *archiveRepo) SaveExchange(ctx context.Context, ex *domain.Exchange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchanges (batch_id, chat_id, merged, reply, batch_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ex.BatchID, ex.ChatID, ex.Merged, ex.Reply, ex.BatchSize, ex.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	return nil
}

// ListRecent returns the most recent exchanges, newest first
func (r *archiveRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, chat_id, merged, reply, batch_size, created_at, synced
		FROM exchanges
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	return scanExchanges(rows)
}

// GetUnsynced returns exchanges not yet pushed to the spreadsheet,
// oldest first
func (r *archiveRepo) GetUnsynced(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, chat_id, merged, reply, batch_size, created_at, synced
		FROM exchanges
		WHERE synced = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced exchanges: %w", err)
	}
	defer rows.Close()

	return scanExchanges(rows)
}

func scanExchanges(rows *sql.Rows) ([]*domain.Exchange, error) {
	var exchanges []*domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var createdAt int64
		var synced int
		if err := rows.Scan(&ex.ID, &ex.BatchID, &ex.ChatID, &ex.Merged, &ex.Reply, &ex.BatchSize, &createdAt, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.CreatedAt = time.Unix(createdAt, 0)
		ex.Synced = synced != 0
		exchanges = append(exchanges, &ex)
	}
	return exchanges, nil
}

// MarkSynced marks exchanges as pushed to the spreadsheet
func (r *archiveRepo) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE exchanges SET synced = 1 WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark exchanges synced: %w", err)
	}
	return nil
}

// CleanupOld removes synced exchanges older than the cutoff
func (r *archiveRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM exchanges WHERE created_at < ? AND synced = 1
	`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old exchanges: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *archiveRepo) Close() error {
	return r.db.Close()
}
