package model

import (
	"time"

	"github.com/google/uuid"
)

// Upload represents one ingested file. Checksum is the SHA-256 of the
// exact file bytes and is unique; a row with Inserted == 0 is treated
// as a failed attempt and may be deleted and retried on a later upload
// of the same content.
type Upload struct {
	ID         uuid.UUID `db:"id"`
	Filename   string    `db:"filename"`
	Checksum   string    `db:"checksum"`
	Size       int64     `db:"size"`
	UploadedAt time.Time `db:"uploaded_at"`
	RawKey     string    `db:"raw_key"` // blob-store key; empty when retention was off
	Total      int64     `db:"total"`
	Inserted   int64     `db:"inserted"`
	Deduped    int64     `db:"deduped"`
}
