package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waflens/waflens/internal/model"
)

// EventRepository persists canonical events.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository returns an EventRepository using the given pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const insertEventSQL = `
	INSERT INTO events (
		correlation_id, event_ts, src_ip, src_country, src_asn, colo,
		host, path, method, status, rule_id, rule_name, rule_type,
		action, service, mitigation_reason, ua, tls_fingerprint, bytes,
		threat_score, file_id
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21)
	ON CONFLICT (correlation_id, event_ts) DO NOTHING`

// InsertBatch writes one chunk of events for a file in a single round
// trip. Rows suppressed by the (correlation_id, event_ts) uniqueness
// constraint count as deduped; ingested_at is assigned server-side.
// The chunk is all-or-nothing: on error no rows were retained and both
// counts are zero.
func (r *EventRepository) InsertBatch(ctx context.Context, fileID uuid.UUID, events []model.Event) (inserted, deduped int64, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEventSQL,
			ev.CorrelationID,
			ev.EventTS,
			ev.SrcIP,
			ev.SrcCountry,
			ev.SrcASN,
			ev.Colo,
			ev.Host,
			ev.Path,
			ev.Method,
			ev.Status,
			ev.RuleID,
			ev.RuleName,
			ev.RuleType,
			ev.Action,
			ev.Service,
			ev.MitigationReason,
			ev.UserAgent,
			ev.TLSFingerprint,
			ev.Bytes,
			ev.ThreatScore,
			fileID,
		)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		tag, execErr := results.Exec()
		if execErr != nil {
			// The batch runs in one implicit transaction, so a statement
			// failure rolls back every row in the chunk. Rows tallied
			// before the failure were not retained.
			return 0, 0, execErr
		}
		if tag.RowsAffected() > 0 {
			inserted++
		} else {
			deduped++
		}
	}
	if err := results.Close(); err != nil {
		return 0, 0, err
	}
	return inserted, deduped, nil
}

// DeleteByFile removes all events owned by the given upload.
func (r *EventRepository) DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountAll returns the total number of stored events.
func (r *EventRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&n)
	return n, err
}
