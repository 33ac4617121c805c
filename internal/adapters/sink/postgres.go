package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

const createTable = `CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT        NOT NULL,
	scope        TEXT        NOT NULL,
	job_id       TEXT        NOT NULL DEFAULT '',
	class        TEXT        NOT NULL DEFAULT '',
	status       TEXT        NOT NULL DEFAULT '',
	pipeline     TEXT        NOT NULL DEFAULT '',
	cache_key    TEXT        NOT NULL DEFAULT '',
	rebuilt      BOOLEAN     NOT NULL DEFAULT FALSE,
	axes         JSONB,
	lines        INTEGER     NOT NULL,
	covered      INTEGER     NOT NULL,
	percent      DOUBLE PRECISION NOT NULL,
	coverage     JSONB       NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, scope, class, job_id)
)`

const insertReport = `INSERT INTO %s
	(run_id, scope, job_id, class, status, pipeline, cache_key, rebuilt, axes, lines, covered, percent, coverage, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (run_id, scope, class, job_id) DO NOTHING`

// PostgresSink inserts one row per report into a PostgreSQL table.
type PostgresSink struct {
	db    *sql.DB
	table string

	once    sync.Once
	initErr error
}

// OpenPostgresSink opens the database named by the DSN environment variable of cfg.
// The table is created on first publish.
func OpenPostgresSink(cfg domain.SinkConfig) (*PostgresSink, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, zerr.With(zerr.Wrap(domain.ErrMissingCredentials, "database URL variable is not set"), "dsn_env", cfg.DSNEnv)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrConfig, err), "dsn_env", cfg.DSNEnv)
	}
	return NewPostgresSink(db, cfg.Table), nil
}

// NewPostgresSink creates a sink writing to table through db. The table name must be
// a plain SQL identifier.
func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, table: table}
}

// Close closes the database handle.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Publish implements ports.ReportSink.
func (s *PostgresSink) Publish(ctx context.Context, report *domain.CoverageReport, meta domain.ReportMetadata) error {
	s.once.Do(func() {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createTable, s.table)); err != nil {
			s.initErr = zerr.With(domain.Classify(domain.ErrPublishFailed, err), "table", s.table)
		}
	})
	if s.initErr != nil {
		return s.initErr
	}

	coverage, err := json.Marshal(report)
	if err != nil {
		return domain.Classify(domain.ErrPublishFailed, err)
	}
	var axes []byte
	if len(meta.Axes) > 0 {
		if axes, err = json.Marshal(meta.Axes); err != nil {
			return domain.Classify(domain.ErrPublishFailed, err)
		}
	}
	sum := report.Summary()

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(insertReport, s.table),
		meta.RunID, string(meta.Scope), meta.JobID, string(meta.Class), string(meta.Status),
		string(meta.Pipeline), meta.CacheKey.String(), meta.Rebuilt, axes,
		sum.Lines, sum.CoveredLines, sum.Percent, coverage, meta.Timestamp,
	)
	if err != nil {
		return zerr.With(domain.Classify(domain.ErrPublishFailed, err), "table", s.table)
	}
	return nil
}
