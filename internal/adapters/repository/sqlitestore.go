package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/pkg/metrics"
)

const memoryPath = ":memory:"

const schema = `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		score REAL NOT NULL,
		created_at INTEGER NOT NULL,
		client_key TEXT NOT NULL DEFAULT '',
		form_data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_score ON evaluations(score);
	CREATE INDEX IF NOT EXISTS idx_evaluations_client ON evaluations(client_key, created_at DESC);
`

// SQLiteStore persists evaluations in a SQLite database.
type SQLiteStore struct {
	conn   *sql.DB
	path   string
	opts   options
	closed chan struct{}
}

// OpenSQLiteStore opens or creates the evaluations database at path.
// The special path ":memory:" keeps everything in a single in-process connection.
func OpenSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: create data directory: %w", ErrPersistence, err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrPersistence, path, err)
	}
	if path == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-16000", // 16MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: set pragma: %w", ErrPersistence, err)
		}
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: initialize schema: %w", ErrPersistence, err)
	}

	s := &SQLiteStore{
		conn:   conn,
		path:   path,
		opts:   defaultOptions(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	go s.metricsLoop(ctx)
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	return s.conn.Close()
}

func (s *SQLiteStore) fail(op string, err error) error {
	metrics.RecordStoreError(op)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Insert appends a sample.
func (s *SQLiteStore) Insert(ctx context.Context, sample model.ScoreSample) (string, error) {
	defer observe(opInsert, time.Now())

	sample, err := prepare(sample, s.opts)
	if err != nil {
		return "", err
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO evaluations (id, score, created_at, client_key, form_data) VALUES (?, ?, ?, ?, ?)`,
		sample.ID,
		sample.Score,
		sample.OccurredAt.UnixNano(),
		sample.ClientKey,
		nullJSON(sample.FormData),
	)
	if err != nil {
		return "", s.fail(opInsert, err)
	}
	return sample.ID, nil
}

// FetchByID returns the sample stored under id.
func (s *SQLiteStore) FetchByID(ctx context.Context, id string) (model.ScoreSample, error) {
	defer observe(opFetch, time.Now())

	row := s.conn.QueryRowContext(ctx,
		`SELECT id, score, created_at, client_key, form_data FROM evaluations WHERE id = ?`, id)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreSample{}, ErrNotFound
	}
	if err != nil {
		return model.ScoreSample{}, s.fail(opFetch, err)
	}
	return sample, nil
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	defer observe(opCount, time.Now())

	var n int64
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.fail(opCount, err)
	}
	return n, nil
}

// CountTotal returns the number of samples.
func (s *SQLiteStore) CountTotal(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM evaluations`)
}

// CountBelow counts samples strictly below score.
func (s *SQLiteStore) CountBelow(ctx context.Context, score float64) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM evaluations WHERE score < ?`, score)
}

// CountAbove counts samples strictly above score.
func (s *SQLiteStore) CountAbove(ctx context.Context, score float64) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM evaluations WHERE score > ?`, score)
}

// RecentByClient returns the client's samples at or after since, newest first.
func (s *SQLiteStore) RecentByClient(ctx context.Context, clientKey string, since time.Time) ([]model.ScoreSample, error) {
	defer observe(opRecent, time.Now())

	if !dedupe.KnownClient(clientKey) {
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, score, created_at, client_key, form_data FROM evaluations
		 WHERE client_key = ? AND created_at >= ? ORDER BY created_at DESC`,
		clientKey, since.UnixNano())
	if err != nil {
		return nil, s.fail(opRecent, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScoreSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, s.fail(opRecent, err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(opRecent, err)
	}
	return out, nil
}

// Summary computes the total, mean and range counts in one query.
func (s *SQLiteStore) Summary(ctx context.Context) (model.StoreSummary, error) {
	defer observe(opSummary, time.Now())

	var b strings.Builder
	b.WriteString(`SELECT COUNT(*), COALESCE(AVG(score), 0)`)
	args := make([]any, 0, 2*len(model.SummaryRanges))
	for _, r := range model.SummaryRanges {
		b.WriteString(`, COALESCE(SUM(CASE WHEN score >= ? AND score < ? THEN 1 ELSE 0 END), 0)`)
		args = append(args, r.Min, r.Max)
	}
	b.WriteString(` FROM evaluations`)

	sum := model.NewStoreSummary()
	dest := make([]any, 0, 2+len(sum.Ranges))
	dest = append(dest, &sum.Total, &sum.AverageScore)
	for i := range sum.Ranges {
		dest = append(dest, &sum.Ranges[i].Count)
	}
	if err := s.conn.QueryRowContext(ctx, b.String(), args...).Scan(dest...); err != nil {
		return model.StoreSummary{}, s.fail(opSummary, err)
	}
	return sum, nil
}

// Scan visits samples in ascending score order.
func (s *SQLiteStore) Scan(ctx context.Context, fn func(model.ScoreSample) error) error {
	defer observe(opScan, time.Now())

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, score, created_at, client_key, form_data FROM evaluations ORDER BY score, id`)
	if err != nil {
		return s.fail(opScan, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return s.fail(opScan, err)
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return s.fail(opScan, err)
	}
	return nil
}

func (s *SQLiteStore) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			if n, err := s.CountTotal(ctx); err == nil {
				metrics.UpdateStoreSamples(n)
			}
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (model.ScoreSample, error) {
	var (
		sample    model.ScoreSample
		createdAt int64
		formData  sql.NullString
	)
	if err := row.Scan(&sample.ID, &sample.Score, &createdAt, &sample.ClientKey, &formData); err != nil {
		return model.ScoreSample{}, err
	}
	sample.OccurredAt = time.Unix(0, createdAt)
	if formData.Valid {
		sample.FormData = []byte(formData.String)
	}
	return sample, nil
}

func nullJSON(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
