package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"enterprise-chatbot/internal/coordinator"
	"enterprise-chatbot/internal/scaler"
)

// Recorder persists handled queries and committed scaling decisions to
// SQLite. The running service only writes; the report command reads.
type Recorder struct {
	db *sql.DB
}

// New opens the audit database at dbPath and creates the schema.
func New(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// A single connection keeps concurrent handlers from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &Recorder{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS queries (
		query_id   TEXT PRIMARY KEY,
		query      TEXT NOT NULL,
		category   TEXT NOT NULL,
		optimized  INTEGER NOT NULL,
		cache_hit  INTEGER NOT NULL,
		latency_ms REAL NOT NULL,
		response   TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS scaling_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		seq            INTEGER NOT NULL,
		direction      TEXT NOT NULL,
		decision       TEXT NOT NULL,
		from_instances INTEGER NOT NULL,
		to_instances   INTEGER NOT NULL,
		load           REAL NOT NULL,
		created_at     DATETIME NOT NULL
	)`)
	return err
}

// RecordQuery stores one history record.
func (r *Recorder) RecordQuery(ctx context.Context, rec coordinator.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queries (query_id, query, category, optimized, cache_hit, latency_ms, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueryID, rec.Query, string(rec.Category), rec.Optimized, rec.CacheHit, rec.LatencyMs, rec.Response, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// RecordScaling stores one committed scaling decision.
func (r *Recorder) RecordScaling(ctx context.Context, d scaler.Decision) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scaling_events (seq, direction, decision, from_instances, to_instances, load, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Seq, string(d.Direction), d.Text, d.From, d.Instances, d.Load, d.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record scaling event: %w", err)
	}
	return nil
}

// CategorySummary aggregates recorded queries per category.
type CategorySummary struct {
	Category         string  `json:"category"`
	Queries          int64   `json:"queries"`
	Optimized        int64   `json:"optimized"`
	CacheHits        int64   `json:"cache_hits"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Summary returns per-category totals recorded since the given time.
func (r *Recorder) Summary(ctx context.Context, since time.Time) ([]CategorySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, COUNT(*), SUM(optimized), SUM(cache_hit), AVG(latency_ms)
		 FROM queries WHERE created_at >= ?
		 GROUP BY category ORDER BY category`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []CategorySummary
	for rows.Next() {
		var s CategorySummary
		if err := rows.Scan(&s.Category, &s.Queries, &s.Optimized, &s.CacheHits, &s.AverageLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ScalingEvent is a stored scaling decision.
type ScalingEvent struct {
	ID        int64     `json:"id"`
	Seq       int       `json:"seq"`
	Direction string    `json:"direction"`
	Decision  string    `json:"decision"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	Load      float64   `json:"load"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentScaling returns the newest limit scaling events, newest first.
// Rows are ordered by decision time and commit sequence rather than insert
// order, since concurrent queries may write them out of order.
func (r *Recorder) RecentScaling(ctx context.Context, limit int) ([]ScalingEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, direction, decision, from_instances, to_instances, load, created_at
		 FROM scaling_events ORDER BY created_at DESC, seq DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query scaling events: %w", err)
	}
	defer rows.Close()

	var out []ScalingEvent
	for rows.Next() {
		var e ScalingEvent
		if err := rows.Scan(&e.ID, &e.Seq, &e.Direction, &e.Decision, &e.From, &e.To, &e.Load, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scaling event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
