// Package demo seeds a synthetic events table so the gate and executor can be
// exercised end to end without real data. DuckDB only; seeding is an
// operator action and runs directly on the warehouse handle, not through the
// safety gate.
package demo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Stats struct {
	Table string
	Rows  int64
	MinTS time.Time
	MaxTS time.Time
}

// Seed rebuilds the events table with n synthetic rows spread over the last
// 180 days: views, clicks, purchases, signups, and refunds across a handful
// of countries, devices, and acquisition sources.
func Seed(ctx context.Context, db *sql.DB, n int) (Stats, error) {
	if n <= 0 {
		n = 100_000
	}

	seedSQL := fmt.Sprintf(`
CREATE OR REPLACE TABLE events AS
WITH base AS (
  SELECT
    i::BIGINT AS event_id,
    CAST(1 + floor(random()*1000000) AS BIGINT) AS user_id,
    random() AS r1,
    random() AS r2,
    random() AS r3,
    random() AS r4,
    random() AS r5
  FROM range(%d) t(i)
)
SELECT
  event_id,
  user_id,
  CASE
    WHEN r1 < 0.50 THEN 'view'
    WHEN r1 < 0.80 THEN 'click'
    WHEN r1 < 0.95 THEN 'purchase'
    WHEN r1 < 0.98 THEN 'signup'
    ELSE 'refund'
  END AS event_type,
  CASE
    WHEN r1 >= 0.80 AND r1 < 0.95 THEN round(r5 * 200, 2)
    WHEN r1 >= 0.98 THEN round(r5 * 100, 2)
    ELSE 0
  END AS amount,
  dateadd('second', -CAST(floor(random()*86400) AS INTEGER),
    dateadd('day', -CAST(floor(random()*180) AS INTEGER), now())
  )::TIMESTAMP AS event_ts,
  CASE
    WHEN r2 < 0.25 THEN 'PL'
    WHEN r2 < 0.45 THEN 'DE'
    WHEN r2 < 0.60 THEN 'FR'
    WHEN r2 < 0.75 THEN 'US'
    WHEN r2 < 0.90 THEN 'GB'
    ELSE 'ES'
  END AS country,
  CASE
    WHEN r3 < 0.70 THEN 'mobile'
    WHEN r3 < 0.90 THEN 'desktop'
    ELSE 'tablet'
  END AS device,
  CASE
    WHEN r4 < 0.30 THEN 'search'
    WHEN r4 < 0.55 THEN 'ads'
    WHEN r4 < 0.75 THEN 'direct'
    WHEN r4 < 0.90 THEN 'social'
    ELSE 'email'
  END AS source
FROM base`, n)

	if _, err := db.ExecContext(ctx, seedSQL); err != nil {
		return Stats{}, fmt.Errorf("seed events table: %w", err)
	}

	stats := Stats{Table: "events"}
	row := db.QueryRowContext(ctx, "SELECT COUNT(*), min(event_ts), max(event_ts) FROM events")
	if err := row.Scan(&stats.Rows, &stats.MinTS, &stats.MaxTS); err != nil {
		return Stats{}, fmt.Errorf("read seed stats: %w", err)
	}
	return stats, nil
}
