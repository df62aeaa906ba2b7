package domain

import "time"

// Exchange records one completed downstream exchange: the merged user
// message that was sent to the model and the reply that came back.
type Exchange struct {
	ID        int64
	BatchID   string
	ChatID    string
	Merged    string
	Reply     string
	BatchSize int
	CreatedAt time.Time
	Synced    bool // appended to the ops spreadsheet
}
