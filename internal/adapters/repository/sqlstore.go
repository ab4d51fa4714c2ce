package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/metrics"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS participants (
	id             TEXT PRIMARY KEY,
	total          REAL NOT NULL DEFAULT 0,
	region         TEXT NOT NULL DEFAULT '',
	sub_region     TEXT NOT NULL DEFAULT '',
	activity_count INTEGER NOT NULL DEFAULT 0,
	activity_avg   REAL NOT NULL DEFAULT 0,
	last_activity  TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS participants_total_idx ON participants (total DESC, id ASC)`,
}

// participantRow maps the participants table.
type participantRow struct {
	ID            string       `db:"id"`
	Total         float64      `db:"total"`
	Region        string       `db:"region"`
	SubRegion     string       `db:"sub_region"`
	ActivityCount int          `db:"activity_count"`
	ActivityAvg   float64      `db:"activity_avg"`
	LastActivity  sql.NullTime `db:"last_activity"`
}

func (r participantRow) participant() model.Participant {
	p := model.Participant{
		ID:       r.ID,
		Total:    r.Total,
		Location: model.Location{Region: r.Region, SubRegion: r.SubRegion},
		Activity: model.ActivityStats{Count: r.ActivityCount, Average: r.ActivityAvg},
	}
	if r.LastActivity.Valid {
		p.Activity.LastActivity = r.LastActivity.Time
	}
	return p
}

// SQLStore keeps participants in a SQL database through sqlx.
type SQLStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenSQLite opens dsn with the pure Go SQLite driver and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := NewSQLStore(db, defaultQueryTimeout)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sqlx.DB, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &SQLStore{db: db, timeout: timeout}
}

// Migrate creates the table and index if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", ErrQuery, err)
		}
	}
	return nil
}

// Snapshot returns all participants in rank order.
func (s *SQLStore) Snapshot(ctx context.Context) ([]model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendSQLite, "snapshot", time.Now())

	var rows []participantRow
	query := `
		SELECT id, total, region, sub_region, activity_count, activity_avg, last_activity
		FROM participants
		ORDER BY total DESC, id ASC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		metrics.RecordErrorByComponent("repository", "query_failed")
		return nil, fmt.Errorf("%w: snapshot: %w", ErrQuery, err)
	}

	out := make([]model.Participant, len(rows))
	for i, r := range rows {
		out[i] = r.participant()
	}
	return out, nil
}

// Get returns one participant.
func (s *SQLStore) Get(ctx context.Context, id string) (model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendSQLite, "get", time.Now())

	var row participantRow
	query := `
		SELECT id, total, region, sub_region, activity_count, activity_avg, last_activity
		FROM participants
		WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Participant{}, ErrNotFound
		}
		metrics.RecordErrorByComponent("repository", "query_failed")
		return model.Participant{}, fmt.Errorf("%w: get %s: %w", ErrQuery, id, err)
	}
	return row.participant(), nil
}

// Record upserts p keeping the larger total.
func (s *SQLStore) Record(ctx context.Context, p model.Participant) (bool, error) {
	if err := validate(p); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendSQLite, "record", time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", ErrQuery, err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous float64
	err = tx.GetContext(ctx, &previous, `SELECT total FROM participants WHERE id = ?`, p.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: read %s: %w", ErrQuery, p.ID, err)
	}

	row := participantRow{
		ID:            p.ID,
		Total:         max(p.Total, previous),
		Region:        p.Location.Region,
		SubRegion:     p.Location.SubRegion,
		ActivityCount: p.Activity.Count,
		ActivityAvg:   p.Activity.Average,
	}
	if !p.Activity.LastActivity.IsZero() {
		row.LastActivity = sql.NullTime{Time: p.Activity.LastActivity.UTC(), Valid: true}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO participants (id, total, region, sub_region, activity_count, activity_avg, last_activity)
		VALUES (:id, :total, :region, :sub_region, :activity_count, :activity_avg, :last_activity)
		ON CONFLICT (id) DO UPDATE SET
			total = excluded.total,
			region = excluded.region,
			sub_region = excluded.sub_region,
			activity_count = excluded.activity_count,
			activity_avg = excluded.activity_avg,
			last_activity = excluded.last_activity`, row)
	if err != nil {
		return false, fmt.Errorf("%w: upsert %s: %w", ErrQuery, p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrQuery, err)
	}
	return !exists || p.Total > previous, nil
}

// Count returns the number of participants.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM participants`); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrQuery, err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func observe(backend, op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(backend, op, float64(time.Since(start).Milliseconds()))
}
