// Package ingest runs the upload pipeline: checksum-gated file dedup,
// parsing, batched idempotent inserts, and rollup maintenance. Each
// call runs to completion inside the caller's request context; there is
// no background queue. Concurrent requests coordinate only through the
// storage layer's uniqueness and upsert semantics.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/waflens/waflens/internal/model"
	"github.com/waflens/waflens/internal/parser"
)

// ErrNotFound reports an unknown checksum or file id on reindex.
var ErrNotFound = errors.New("upload not found")

// ErrNotRetrievable reports a reindex attempt against a file whose raw
// bytes were never retained or whose blob has gone missing.
var ErrNotRetrievable = errors.New("raw content not retrievable")

// UploadStore persists upload records and their running counters.
type UploadStore interface {
	Create(ctx context.Context, up *model.Upload) error
	GetByChecksum(ctx context.Context, checksum string) (*model.Upload, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Upload, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddStats(ctx context.Context, id uuid.UUID, total, inserted, deduped int64) error
	SetStats(ctx context.Context, id uuid.UUID, total, inserted, deduped int64) error
}

// EventStore persists canonical events in idempotent chunks.
type EventStore interface {
	InsertBatch(ctx context.Context, fileID uuid.UUID, events []model.Event) (inserted, deduped int64, err error)
	DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error)
}

// RollupStore maintains the derived aggregate tables.
type RollupStore interface {
	MergeForFile(ctx context.Context, fileID uuid.UUID) error
	RebuildAll(ctx context.Context) error
}

// RawStore retains and serves original file bytes for reindexing.
type RawStore interface {
	PutRaw(ctx context.Context, checksum string, content []byte) (string, error)
	GetRaw(ctx context.Context, key string) ([]byte, error)
}

// Status classifies the outcome of one file's ingestion.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusAlreadyProcessed Status = "already_processed"
	StatusNoValidEvents    Status = "no_valid_events"
	StatusError            Status = "error"
)

// TimeRange spans the event timestamps seen in one file, in millis.
type TimeRange struct {
	Earliest int64 `json:"earliest"`
	Latest   int64 `json:"latest"`
}

// Result is the per-file statistics shape returned to callers. Counts
// reflect actual partial completion when a batch failed mid-file.
type Result struct {
	Filename  string     `json:"filename"`
	Checksum  string     `json:"checksum"`
	FileID    string     `json:"file_id,omitempty"`
	Status    Status     `json:"status"`
	Total     int64      `json:"total"`
	Inserted  int64      `json:"inserted"`
	Deduped   int64      `json:"deduped"`
	Errors    []string   `json:"errors,omitempty"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
}

// Pipeline wires the ingestion stages together. Raw may be nil when no
// blob store is configured; retention is then off and reindex of new
// uploads is impossible.
type Pipeline struct {
	uploads   UploadStore
	events    EventStore
	rollups   RollupStore
	raw       RawStore
	batchSize int
	maxErrors int
	retainRaw bool
	log       zerolog.Logger
}

// New returns a Pipeline. batchSize and maxErrors fall back to sane
// values when non-positive.
func New(uploads UploadStore, events EventStore, rollups RollupStore, raw RawStore, batchSize, maxErrors int, retainRaw bool, log zerolog.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxErrors <= 0 {
		maxErrors = 10
	}
	return &Pipeline{
		uploads:   uploads,
		events:    events,
		rollups:   rollups,
		raw:       raw,
		batchSize: batchSize,
		maxErrors: maxErrors,
		retainRaw: retainRaw,
		log:       log,
	}
}

// Checksum returns the content-addressed identity of a file: the hex
// SHA-256 of its exact bytes.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IngestFile runs the full pipeline for one file. Byte-identical
// content that previously inserted at least one row short-circuits to
// already_processed; a prior attempt with zero inserted rows is deleted
// and retried. A storage failure mid-file keeps the completed chunks
// and reports truthful partial counts with status error.
//
// Known limitation: a file that genuinely yields zero events is never
// marked complete, so rescanning it reprocesses it every time.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, content []byte) (*Result, error) {
	checksum := Checksum(content)
	res := &Result{Filename: filename, Checksum: checksum}

	existing, err := p.uploads.GetByChecksum(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("lookup checksum: %w", err)
	}
	if existing != nil {
		if existing.Inserted > 0 {
			res.FileID = existing.ID.String()
			res.Status = StatusAlreadyProcessed
			res.Total = existing.Total
			res.Inserted = existing.Inserted
			res.Deduped = existing.Deduped
			return res, nil
		}
		// Prior attempt inserted nothing; treat it as failed and retry.
		p.log.Info().Str("checksum", checksum).Msg("retrying upload with zero inserted rows")
		if err := p.uploads.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("delete stale upload: %w", err)
		}
	}

	parsed := parser.Parse(content)
	res.Total = int64(len(parsed.Events))
	res.TimeRange = timeRange(parsed.Events)

	var rawKey string
	if p.retainRaw && p.raw != nil {
		rawKey, err = p.raw.PutRaw(ctx, checksum, content)
		if err != nil {
			// Retention is best effort; the upload still goes through,
			// it just cannot be reindexed later.
			p.log.Warn().Err(err).Str("checksum", checksum).Msg("raw retention failed")
			rawKey = ""
		}
	}

	up := &model.Upload{
		Filename: filename,
		Checksum: checksum,
		Size:     int64(len(content)),
		RawKey:   rawKey,
	}
	if err := p.uploads.Create(ctx, up); err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	res.FileID = up.ID.String()

	inserted, deduped, batchErrs := p.insertBatches(ctx, up.ID, parsed.Events)
	res.Inserted = inserted
	res.Deduped = deduped

	allErrs := append(parsed.Errors, batchErrs...)
	res.Errors = capErrors(allErrs, p.maxErrors)

	switch {
	case len(batchErrs) > 0:
		res.Status = StatusError
	case res.Total == 0:
		res.Status = StatusNoValidEvents
	default:
		res.Status = StatusSuccess
	}

	if inserted > 0 {
		if err := p.rollups.MergeForFile(ctx, up.ID); err != nil {
			p.log.Error().Err(err).Str("file_id", up.ID.String()).Msg("rollup merge failed")
			res.Status = StatusError
			res.Errors = capErrors(append(allErrs, fmt.Sprintf("rollup update: %v", err)), p.maxErrors)
		}
	}

	p.log.Info().
		Str("filename", filename).
		Str("checksum", checksum).
		Str("status", string(res.Status)).
		Int64("total", res.Total).
		Int64("inserted", res.Inserted).
		Int64("deduped", res.Deduped).
		Msg("file ingested")
	return res, nil
}

// insertBatches writes events in fixed-size chunks, updating the
// upload's running counters after each chunk. A chunk failure aborts
// the remaining events for this file; completed chunks stay.
func (p *Pipeline) insertBatches(ctx context.Context, fileID uuid.UUID, events []model.Event) (inserted, deduped int64, errs []string) {
	for start := 0; start < len(events); start += p.batchSize {
		end := start + p.batchSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]

		ins, ded, err := p.events.InsertBatch(ctx, fileID, chunk)
		if err != nil {
			// The chunk rolled back as a unit; nothing from it was
			// retained, so the counters stay at the completed chunks.
			errs = append(errs, fmt.Sprintf("batch insert at record %d: %v", start, err))
			return inserted, deduped, errs
		}
		inserted += ins
		deduped += ded
		if statsErr := p.uploads.AddStats(ctx, fileID, ins+ded, ins, ded); statsErr != nil {
			p.log.Warn().Err(statsErr).Str("file_id", fileID.String()).Msg("upload stats update failed")
		}
	}
	return inserted, deduped, nil
}

func timeRange(events []model.Event) *TimeRange {
	if len(events) == 0 {
		return nil
	}
	tr := &TimeRange{Earliest: events[0].EventTS, Latest: events[0].EventTS}
	for _, ev := range events[1:] {
		if ev.EventTS < tr.Earliest {
			tr.Earliest = ev.EventTS
		}
		if ev.EventTS > tr.Latest {
			tr.Latest = ev.EventTS
		}
	}
	return tr
}

func capErrors(errs []string, limit int) []string {
	if len(errs) <= limit {
		return errs
	}
	return errs[:limit]
}
