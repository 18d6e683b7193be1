// Package store provides the durable pipeline state: the notified-set,
// per-site failure streaks, run logs, and small meta values.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-alert/internal/types"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a connection pool and ensures the schema exists. Schema
// creation is idempotent and safe to run against existing storage.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notified_posts (
			source            TEXT        NOT NULL,
			source_post_id    TEXT        NOT NULL,
			url               TEXT        NOT NULL,
			title             TEXT        NOT NULL DEFAULT '',
			first_notified_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (source, source_post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS site_failure_streaks (
			source          TEXT        PRIMARY KEY,
			streak          INTEGER     NOT NULL DEFAULT 0,
			last_outcome_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id                UUID        PRIMARY KEY,
			run_at            TIMESTAMPTZ NOT NULL,
			new_count         INTEGER     NOT NULL,
			failed_site_count INTEGER     NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// IsNotified reports whether the key is already in the notified-set.
func (s *Store) IsNotified(ctx context.Context, key types.PostKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notified_posts WHERE source = $1 AND source_post_id = $2
		)`,
		key.Source, key.SourcePostID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query notified-set: %w", err)
	}
	return exists, nil
}

// FilterUnnotified returns the candidates whose keys are not yet in the
// notified-set, preserving order. Duplicate keys within the batch are
// collapsed to their first occurrence, and membership is checked in a single
// round trip.
func (s *Store) FilterUnnotified(ctx context.Context, candidates []types.Posting) ([]types.Posting, error) {
	candidates = types.DedupePostings(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	sources := make([]string, len(candidates))
	ids := make([]string, len(candidates))
	for i, p := range candidates {
		sources[i] = p.Source
		ids[i] = p.SourcePostID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT n.source, n.source_post_id
		 FROM notified_posts n
		 JOIN unnest($1::text[], $2::text[]) AS c(source, source_post_id)
		   ON n.source = c.source AND n.source_post_id = c.source_post_id`,
		sources, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notified-set: %w", err)
	}
	defer rows.Close()

	notified := make(map[types.PostKey]struct{})
	for rows.Next() {
		var key types.PostKey
		if err := rows.Scan(&key.Source, &key.SourcePostID); err != nil {
			return nil, fmt.Errorf("failed to scan notified key: %w", err)
		}
		notified[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notified-set: %w", err)
	}

	var unnotified []types.Posting
	for _, p := range candidates {
		if _, ok := notified[p.Key()]; !ok {
			unnotified = append(unnotified, p)
		}
	}
	return unnotified, nil
}

// MarkNotified inserts the postings into the notified-set. Existing keys are
// left untouched: marking an already-notified posting is a no-op success, and
// a row, once written, is never overwritten.
func (s *Store) MarkNotified(ctx context.Context, postings []types.Posting, notifiedAt time.Time) error {
	if len(postings) == 0 {
		return nil
	}

	sources := make([]string, len(postings))
	ids := make([]string, len(postings))
	urls := make([]string, len(postings))
	titles := make([]string, len(postings))
	for i, p := range postings {
		sources[i] = p.Source
		ids[i] = p.SourcePostID
		urls[i] = p.URL
		titles[i] = p.Title
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO notified_posts (source, source_post_id, url, title, first_notified_at)
		 SELECT c.source, c.source_post_id, c.url, c.title, $5
		 FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
		   AS c(source, source_post_id, url, title)
		 ON CONFLICT (source, source_post_id) DO NOTHING`,
		sources, ids, urls, titles, notifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark postings notified: %w", err)
	}
	return nil
}

// FailureStreak returns the consecutive-failure count for a source, zero when
// the source has never been recorded.
func (s *Store) FailureStreak(ctx context.Context, source string) (int, error) {
	var streak int
	err := s.pool.QueryRow(ctx,
		`SELECT streak FROM site_failure_streaks WHERE source = $1`,
		source,
	).Scan(&streak)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query failure streak for %s: %w", source, err)
	}
	return streak, nil
}

// RecordSiteOutcome updates the source's failure streak in one atomic upsert:
// success resets to zero, failure increments. Returns the resulting streak.
func (s *Store) RecordSiteOutcome(ctx context.Context, source string, succeeded bool, at time.Time) (int, error) {
	var streak int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO site_failure_streaks (source, streak, last_outcome_at)
		 VALUES ($1, CASE WHEN $2 THEN 0 ELSE 1 END, $3)
		 ON CONFLICT (source) DO UPDATE
		   SET streak = CASE WHEN $2 THEN 0 ELSE site_failure_streaks.streak + 1 END,
		       last_outcome_at = $3
		 RETURNING streak`,
		source, succeeded, at,
	).Scan(&streak)
	if err != nil {
		return 0, fmt.Errorf("failed to record outcome for %s: %w", source, err)
	}
	return streak, nil
}

// LogRun appends one run-log row. Observability only; failures here do not
// affect dedupe correctness.
func (s *Store) LogRun(ctx context.Context, runAt time.Time, newCount, failedSiteCount int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (id, run_at, new_count, failed_site_count)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), runAt, newCount, failedSiteCount,
	)
	if err != nil {
		return fmt.Errorf("failed to log run: %w", err)
	}
	return nil
}

// GetMeta returns the stored meta value, or empty when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM meta WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a meta value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meta (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// CountNotified returns the size of the notified-set.
func (s *Store) CountNotified(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notified_posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notified posts: %w", err)
	}
	return count, nil
}
