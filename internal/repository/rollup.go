package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waflens/waflens/internal/model"
)

// RollupRepository maintains the pre-aggregated dashboard tables. The
// rollups are derived caches: MergeForFile folds one file's rows in
// incrementally, and RebuildAll can always regenerate every table from
// the events table alone.
type RollupRepository struct {
	pool *pgxpool.Pool
}

// NewRollupRepository returns a RollupRepository using the given pool.
func NewRollupRepository(pool *pgxpool.Pool) *RollupRepository {
	return &RollupRepository{pool: pool}
}

// Each statement aggregates events and merges with accumulate-on-conflict
// semantics: counts add, last_seen takes the max, distinct sets union.
// $1 scopes the aggregation to one file; NULL means the whole table.
var rollupMergeSQL = []string{
	`INSERT INTO rollup_daily_actions (day, action, count)
	 SELECT (to_timestamp(event_ts / 1000.0) AT TIME ZONE 'utc')::date, action, count(*)
	 FROM events
	 WHERE ($1::uuid IS NULL OR file_id = $1)
	 GROUP BY 1, 2
	 ON CONFLICT (day, action) DO UPDATE
	 SET count = rollup_daily_actions.count + EXCLUDED.count`,

	`INSERT INTO rollup_rules (rule_id, rule_name, rule_type, count, last_seen)
	 SELECT rule_id, max(rule_name), max(rule_type), count(*), max(event_ts)
	 FROM events
	 WHERE ($1::uuid IS NULL OR file_id = $1) AND rule_id <> ''
	 GROUP BY rule_id
	 ON CONFLICT (rule_id) DO UPDATE
	 SET rule_name = CASE WHEN EXCLUDED.rule_name <> '' THEN EXCLUDED.rule_name ELSE rollup_rules.rule_name END,
	     rule_type = EXCLUDED.rule_type,
	     count = rollup_rules.count + EXCLUDED.count,
	     last_seen = greatest(rollup_rules.last_seen, EXCLUDED.last_seen)`,

	`INSERT INTO rollup_sources (src_ip, count, countries, asns, last_seen)
	 SELECT src_ip, count(*),
	        array_remove(array_agg(DISTINCT nullif(src_country, '')), NULL),
	        array_remove(array_agg(DISTINCT src_asn), NULL),
	        max(event_ts)
	 FROM events
	 WHERE ($1::uuid IS NULL OR file_id = $1) AND src_ip <> ''
	 GROUP BY src_ip
	 ON CONFLICT (src_ip) DO UPDATE
	 SET count = rollup_sources.count + EXCLUDED.count,
	     countries = (SELECT coalesce(array_agg(DISTINCT c), '{}') FROM unnest(rollup_sources.countries || EXCLUDED.countries) AS c),
	     asns = (SELECT coalesce(array_agg(DISTINCT a), '{}') FROM unnest(rollup_sources.asns || EXCLUDED.asns) AS a),
	     last_seen = greatest(rollup_sources.last_seen, EXCLUDED.last_seen)`,

	`INSERT INTO rollup_paths (path, method, status, count, last_seen)
	 SELECT path, method, coalesce(status, 0), count(*), max(event_ts)
	 FROM events
	 WHERE ($1::uuid IS NULL OR file_id = $1) AND path <> ''
	 GROUP BY 1, 2, 3
	 ON CONFLICT (path, method, status) DO UPDATE
	 SET count = rollup_paths.count + EXCLUDED.count,
	     last_seen = greatest(rollup_paths.last_seen, EXCLUDED.last_seen)`,
}

func (r *RollupRepository) runMerges(ctx context.Context, tx pgx.Tx, fileID *uuid.UUID) error {
	for _, stmt := range rollupMergeSQL {
		if _, err := tx.Exec(ctx, stmt, fileID); err != nil {
			return err
		}
	}
	return nil
}

// MergeForFile folds one file's stored events into all four rollups.
func (r *RollupRepository) MergeForFile(ctx context.Context, fileID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollup merge: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.runMerges(ctx, tx, &fileID); err != nil {
		return fmt.Errorf("rollup merge: %w", err)
	}
	return tx.Commit(ctx)
}

// RebuildAll regenerates every rollup from scratch out of the events
// table. The delete and the re-aggregation commit together, so readers
// never observe empty rollups.
func (r *RollupRepository) RebuildAll(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollup rebuild: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"rollup_daily_actions", "rollup_rules", "rollup_sources", "rollup_paths"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := r.runMerges(ctx, tx, nil); err != nil {
		return fmt.Errorf("rollup rebuild: %w", err)
	}
	return tx.Commit(ctx)
}

// Daily returns daily action counts within [from, to], oldest first.
func (r *RollupRepository) Daily(ctx context.Context, from, to time.Time) ([]model.DailyActionCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, action, count
		FROM rollup_daily_actions
		WHERE day BETWEEN $1 AND $2
		ORDER BY day, action`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.DailyActionCount
	for rows.Next() {
		var d model.DailyActionCount
		if err := rows.Scan(&d.Day, &d.Action, &d.Count); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// TopRules returns the most-hit rules.
func (r *RollupRepository) TopRules(ctx context.Context, limit int) ([]model.RuleCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rule_id, rule_name, rule_type, count, last_seen
		FROM rollup_rules
		ORDER BY count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.RuleCount
	for rows.Next() {
		var rc model.RuleCount
		if err := rows.Scan(&rc.RuleID, &rc.RuleName, &rc.RuleType, &rc.Count, &rc.LastSeen); err != nil {
			return nil, err
		}
		list = append(list, rc)
	}
	return list, rows.Err()
}

// TopSources returns the most active source IPs.
func (r *RollupRepository) TopSources(ctx context.Context, limit int) ([]model.SourceCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT src_ip, count, countries, asns, last_seen
		FROM rollup_sources
		ORDER BY count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SourceCount
	for rows.Next() {
		var sc model.SourceCount
		if err := rows.Scan(&sc.SrcIP, &sc.Count, &sc.Countries, &sc.ASNs, &sc.LastSeen); err != nil {
			return nil, err
		}
		list = append(list, sc)
	}
	return list, rows.Err()
}

// TopPaths returns the most-hit path/method/status combinations.
func (r *RollupRepository) TopPaths(ctx context.Context, limit int) ([]model.PathCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT path, method, status, count, last_seen
		FROM rollup_paths
		ORDER BY count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.PathCount
	for rows.Next() {
		var pc model.PathCount
		if err := rows.Scan(&pc.Path, &pc.Method, &pc.Status, &pc.Count, &pc.LastSeen); err != nil {
			return nil, err
		}
		list = append(list, pc)
	}
	return list, rows.Err()
}

// ActionTotals sums the daily rollup per action for the summary view.
func (r *RollupRepository) ActionTotals(ctx context.Context) (map[model.Action]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action, sum(count)
		FROM rollup_daily_actions
		GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[model.Action]int64)
	for rows.Next() {
		var a model.Action
		var n int64
		if err := rows.Scan(&a, &n); err != nil {
			return nil, err
		}
		totals[a] = n
	}
	return totals, rows.Err()
}
